package notify

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flightclaims/claims-engine/internal/platform/config"
)

func TestMailer_Send_NoopWhenHostUnconfigured(t *testing.T) {
	m := NewMailer(config.SMTPConfig{}, nil)
	err := m.Send(context.Background(), "customer@example.com", "subject", "body")
	require.NoError(t, err)
}

// fakeSMTPServer accepts a single connection and speaks just enough SMTP to
// let net/smtp.SendMail complete a plain, unauthenticated exchange.
func fakeSMTPServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 localhost ESMTP\r\n")
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				fmt.Fprintf(conn, "250 localhost\r\n")
			case strings.HasPrefix(cmd, "MAIL FROM"):
				fmt.Fprintf(conn, "250 OK\r\n")
			case strings.HasPrefix(cmd, "RCPT TO"):
				fmt.Fprintf(conn, "250 OK\r\n")
			case cmd == "DATA":
				fmt.Fprintf(conn, "354 Send data\r\n")
				for {
					dataLine, err := reader.ReadString('\n')
					if err != nil {
						return
					}
					if strings.TrimRight(dataLine, "\r\n") == "." {
						break
					}
				}
				fmt.Fprintf(conn, "250 OK\r\n")
			case cmd == "QUIT":
				fmt.Fprintf(conn, "221 Bye\r\n")
				return
			default:
				fmt.Fprintf(conn, "500 unrecognized\r\n")
			}
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestMailer_Send_DialsConfiguredHost(t *testing.T) {
	addr, stop := fakeSMTPServer(t)
	defer stop()

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	cfg := config.SMTPConfig{Host: host, Port: atoiT(t, port), From: "claims@example.com"}
	m := NewMailer(cfg, nil)

	err = m.Send(context.Background(), "customer@example.com", "Your draft claim", "body text")
	require.NoError(t, err)
}

func atoiT(t *testing.T, s string) int {
	t.Helper()
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	require.NoError(t, err)
	return n
}
