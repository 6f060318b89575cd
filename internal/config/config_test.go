package config

import (
	"log/slog"
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"CALLGATE_DATA_DIR", "CALLGATE_HTTP_PORT", "CALLGATE_SIP_PORT",
		"CALLGATE_SIP_TLS_PORT", "CALLGATE_TLS_CERT", "CALLGATE_TLS_KEY",
		"CALLGATE_LOG_LEVEL", "CALLGATE_UNLOCK_CODE",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	os.Args = []string{"callgate", "--unlock-code", "1234"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.SIPPort != defaultSIPPort {
		t.Errorf("SIPPort = %d, want %d", cfg.SIPPort, defaultSIPPort)
	}
	if cfg.SIPTLSPort != defaultSIPTLSPort {
		t.Errorf("SIPTLSPort = %d, want %d", cfg.SIPTLSPort, defaultSIPTLSPort)
	}
	if cfg.TLSCert != "" {
		t.Errorf("TLSCert = %q, want empty", cfg.TLSCert)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestEnvVarOverride(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"callgate"}
	t.Setenv("CALLGATE_HTTP_PORT", "9090")
	t.Setenv("CALLGATE_DATA_DIR", "/tmp/callgate-test")
	t.Setenv("CALLGATE_LOG_LEVEL", "debug")
	t.Setenv("CALLGATE_UNLOCK_CODE", "1234")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/callgate-test" {
		t.Errorf("DataDir = %q, want /tmp/callgate-test", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"callgate", "--http-port", "3000", "--log-level", "warn", "--unlock-code", "1234"}
	t.Setenv("CALLGATE_HTTP_PORT", "9090")
	t.Setenv("CALLGATE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"callgate", "--http-port", "99999", "--unlock-code", "1234"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"callgate", "--log-level", "verbose", "--unlock-code", "1234"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateTLSMismatch(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"callgate", "--tls-cert", "cert.pem", "--unlock-code", "1234"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when tls-cert provided without tls-key")
	}
}

func TestValidateMissingUnlockCode(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"callgate"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when unlock-code is missing")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
