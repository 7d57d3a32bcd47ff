package config

import "testing"

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Auth.AccessTokenTTL.Minutes() != 15 {
		t.Errorf("Auth.AccessTokenTTL = %v, want 15m", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.BcryptCost != 12 {
		t.Errorf("Auth.BcryptCost = %d, want 12", cfg.Auth.BcryptCost)
	}
}

func TestValidate_DevelopmentSkipsChecks(t *testing.T) {
	cfg := New()
	cfg.Environment = "development"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() in development = %v, want nil", err)
	}
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	cfg := New()
	cfg.Environment = "production"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() in production with no secrets = nil, want error")
	}

	cfg.Auth.JWTSecret = "01234567890123456789012345678901"
	cfg.Encryption.MasterKey = "01234567890123456789012345678901"
	cfg.Encryption.FileKey = "01234567890123456789012345678901"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with secrets set = %v, want nil", err)
	}
}

func TestValidate_RejectsWildcardOriginWithCredentials(t *testing.T) {
	cfg := New()
	cfg.Environment = "production"
	cfg.Auth.JWTSecret = "01234567890123456789012345678901"
	cfg.Encryption.MasterKey = "01234567890123456789012345678901"
	cfg.Encryption.FileKey = "01234567890123456789012345678901"
	cfg.CORS.AllowCredentials = true
	cfg.CORS.AllowedOrigins = []string{"*"}

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with wildcard origin + credentials = nil, want error")
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	dc := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "claims", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=claims sslmode=disable"
	if got := dc.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
