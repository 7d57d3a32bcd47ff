package eligibility

import (
	"bufio"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

//go:embed airports.csv
var airportData embed.FS

// Airport is a static reference row: coordinates for great-circle distance,
// plus block-to-gate taxi adjustments used when only departure telemetry
// is available.
type Airport struct {
	IATA           string
	Name           string
	Latitude       float64
	Longitude      float64
	Region         Region
	TaxiInMinutes  int
	TaxiOutMinutes int
}

var (
	airportsOnce sync.Once
	airports     map[string]Airport
	airportsErr  error
)

// Airports returns the immutable, process-wide airport reference table,
// parsing the embedded CSV exactly once.
func Airports() (map[string]Airport, error) {
	airportsOnce.Do(func() {
		airports, airportsErr = loadAirports()
	})
	return airports, airportsErr
}

func loadAirports() (map[string]Airport, error) {
	f, err := airportData.Open("airports.csv")
	if err != nil {
		return nil, fmt.Errorf("eligibility: open airports.csv: %w", err)
	}
	defer f.Close()

	result := make(map[string]Airport)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || lineNo == 1 { // skip header
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 7 {
			return nil, fmt.Errorf("eligibility: airports.csv line %d: expected 7 fields, got %d", lineNo, len(fields))
		}
		lat, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("eligibility: airports.csv line %d: bad latitude: %w", lineNo, err)
		}
		lon, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("eligibility: airports.csv line %d: bad longitude: %w", lineNo, err)
		}
		taxiIn, err := strconv.Atoi(fields[5])
		if err != nil {
			return nil, fmt.Errorf("eligibility: airports.csv line %d: bad taxi-in minutes: %w", lineNo, err)
		}
		taxiOut, err := strconv.Atoi(fields[6])
		if err != nil {
			return nil, fmt.Errorf("eligibility: airports.csv line %d: bad taxi-out minutes: %w", lineNo, err)
		}
		code := strings.ToUpper(strings.TrimSpace(fields[0]))
		result[code] = Airport{
			IATA:           code,
			Name:           fields[1],
			Latitude:       lat,
			Longitude:      lon,
			Region:         Region(strings.ToUpper(fields[4])),
			TaxiInMinutes:  taxiIn,
			TaxiOutMinutes: taxiOut,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eligibility: scan airports.csv: %w", err)
	}
	return result, nil
}
