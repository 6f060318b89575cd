// Package config loads callgate's runtime configuration from CLI flags and
// environment variables, with CLI flags taking precedence over env vars,
// and env vars taking precedence over built-in defaults.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the callgate server.
type Config struct {
	DataDir       string
	HTTPPort      int
	SIPPort       int
	SIPTLSPort    int
	RTPPortMin    int
	RTPPortMax    int
	TLSCert       string
	TLSKey        string
	LogLevel      string
	LogFormat     string // "text" or "json"
	CORSOrigins   string
	ExternalIP    string // public IP for SDP/Contact rewriting
	STUNServers   string // comma-separated fallback-ordered STUN server list
	SIPTrunkHost  string // upstream SIP trunk to REGISTER against
	SIPTrunkUser  string
	SIPTrunkPass  string
	SIPAuthUser   string // digest-auth username for trunk REGISTER (defaults to SIPTrunkUser)
	SIPAuthPass   string
	AIAPIKey      string // realtime AI endpoint API key
	AIBaseURL     string // realtime AI websocket base URL
	AIMainModel   string // model id for the premium tier
	AIMiniModel   string // cheaper model id for the mini tier, the default for every agent
	AIPriceTable  string // JSON: {"<model>": {"input_cents_per_1k":.., "output_cents_per_1k":..}}
	AgentsFile    string // path to the agents.yaml descriptor table
	UnlockCode    string // process-wide security-gate unlock code
	DashboardAddr string // dashboard websocket+REST listen address (defaults to http-port)
}

const (
	defaultDataDir     = "./data"
	defaultHTTPPort    = 8080
	defaultSIPPort     = 5060
	defaultSIPTLSPort  = 5061
	defaultRTPPortMin  = 4000
	defaultRTPPortMax  = 4100
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
	defaultAIBaseURL   = "wss://api.openai.com/v1/realtime"
	defaultAIMainModel = "gpt-realtime"
	defaultAIMiniModel = "gpt-realtime-mini"
)

// envPrefix is the prefix for all callgate environment variables.
const envPrefix = "CALLGATE_"

// Load parses configuration from CLI flags and environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("callgate", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the SQLite database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "dashboard HTTP/WebSocket listen port")
	fs.IntVar(&cfg.SIPPort, "sip-port", defaultSIPPort, "SIP UDP/TCP listen port")
	fs.IntVar(&cfg.SIPTLSPort, "sip-tls-port", defaultSIPTLSPort, "SIP TLS listen port")
	fs.IntVar(&cfg.RTPPortMin, "rtp-port-min", defaultRTPPortMin, "minimum UDP port for RTP media relay")
	fs.IntVar(&cfg.RTPPortMax, "rtp-port-max", defaultRTPPortMax, "maximum UDP port for RTP media relay")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "path to SIP TLS certificate file")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "path to SIP TLS private key file")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed dashboard CORS origins (use * for all)")
	fs.StringVar(&cfg.ExternalIP, "external-ip", "", "public IP address for SDP/Contact rewriting (a local interface address is used if empty)")
	fs.StringVar(&cfg.STUNServers, "stun-servers", "stun.l.google.com:19302", "comma-separated, fallback-ordered STUN server list")
	fs.StringVar(&cfg.SIPTrunkHost, "sip-trunk-host", "", "upstream SIP trunk host:port to REGISTER against")
	fs.StringVar(&cfg.SIPTrunkUser, "sip-trunk-user", "", "SIP trunk registration username")
	fs.StringVar(&cfg.SIPTrunkPass, "sip-trunk-pass", "", "SIP trunk registration password")
	fs.StringVar(&cfg.SIPAuthUser, "sip-auth-user", "", "digest-auth username for trunk REGISTER (defaults to sip-trunk-user)")
	fs.StringVar(&cfg.SIPAuthPass, "sip-auth-pass", "", "digest-auth password (not read: REGISTER digest auth uses sip-trunk-pass)")
	fs.StringVar(&cfg.AIAPIKey, "ai-api-key", "", "realtime AI endpoint API key")
	fs.StringVar(&cfg.AIBaseURL, "ai-base-url", defaultAIBaseURL, "realtime AI websocket base URL")
	fs.StringVar(&cfg.AIMainModel, "ai-main-model", defaultAIMainModel, "model id for the premium tier")
	fs.StringVar(&cfg.AIMiniModel, "ai-mini-model", defaultAIMiniModel, "model id for the mini tier, used by every agent unless premium is selected")
	fs.StringVar(&cfg.AIPriceTable, "ai-price-table", "", "JSON price table: model id -> cents per 1k input/output audio tokens")
	fs.StringVar(&cfg.AgentsFile, "agents-file", "agents.yaml", "path to the agent descriptor table")
	fs.StringVar(&cfg.UnlockCode, "unlock-code", "", "process-wide security-gate unlock code")
	fs.StringVar(&cfg.DashboardAddr, "dashboard-addr", "", "dashboard listen address (defaults to :<http-port>)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line, preserving the precedence
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"data-dir":       envPrefix + "DATA_DIR",
		"http-port":      envPrefix + "HTTP_PORT",
		"sip-port":       envPrefix + "SIP_PORT",
		"sip-tls-port":   envPrefix + "SIP_TLS_PORT",
		"rtp-port-min":   envPrefix + "RTP_PORT_MIN",
		"rtp-port-max":   envPrefix + "RTP_PORT_MAX",
		"tls-cert":       envPrefix + "TLS_CERT",
		"tls-key":        envPrefix + "TLS_KEY",
		"log-level":      envPrefix + "LOG_LEVEL",
		"log-format":     envPrefix + "LOG_FORMAT",
		"cors-origins":   envPrefix + "CORS_ORIGINS",
		"external-ip":    envPrefix + "EXTERNAL_IP",
		"stun-servers":   envPrefix + "STUN_SERVERS",
		"sip-trunk-host": envPrefix + "SIP_TRUNK_HOST",
		"sip-trunk-user": envPrefix + "SIP_TRUNK_USER",
		"sip-trunk-pass": envPrefix + "SIP_TRUNK_PASS",
		"sip-auth-user":  envPrefix + "SIP_AUTH_USER",
		"sip-auth-pass":  envPrefix + "SIP_AUTH_PASS",
		"ai-api-key":     envPrefix + "AI_API_KEY",
		"ai-base-url":    envPrefix + "AI_BASE_URL",
		"ai-main-model":  envPrefix + "AI_MAIN_MODEL",
		"ai-mini-model":  envPrefix + "AI_MINI_MODEL",
		"ai-price-table": envPrefix + "AI_PRICE_TABLE",
		"agents-file":    envPrefix + "AGENTS_FILE",
		"unlock-code":    envPrefix + "UNLOCK_CODE",
		"dashboard-addr": envPrefix + "DASHBOARD_ADDR",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "sip-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SIPPort = v
			}
		case "sip-tls-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SIPTLSPort = v
			}
		case "rtp-port-min":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMin = v
			}
		case "rtp-port-max":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMax = v
			}
		case "tls-cert":
			cfg.TLSCert = val
		case "tls-key":
			cfg.TLSKey = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "external-ip":
			cfg.ExternalIP = val
		case "stun-servers":
			cfg.STUNServers = val
		case "sip-trunk-host":
			cfg.SIPTrunkHost = val
		case "sip-trunk-user":
			cfg.SIPTrunkUser = val
		case "sip-trunk-pass":
			cfg.SIPTrunkPass = val
		case "sip-auth-user":
			cfg.SIPAuthUser = val
		case "sip-auth-pass":
			cfg.SIPAuthPass = val
		case "ai-api-key":
			cfg.AIAPIKey = val
		case "ai-base-url":
			cfg.AIBaseURL = val
		case "ai-main-model":
			cfg.AIMainModel = val
		case "ai-mini-model":
			cfg.AIMiniModel = val
		case "ai-price-table":
			cfg.AIPriceTable = val
		case "agents-file":
			cfg.AgentsFile = val
		case "unlock-code":
			cfg.UnlockCode = val
		case "dashboard-addr":
			cfg.DashboardAddr = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.SIPPort < 1 || c.SIPPort > 65535 {
		return fmt.Errorf("sip-port must be between 1 and 65535, got %d", c.SIPPort)
	}
	if c.SIPTLSPort < 1 || c.SIPTLSPort > 65535 {
		return fmt.Errorf("sip-tls-port must be between 1 and 65535, got %d", c.SIPTLSPort)
	}
	if c.RTPPortMin < 1024 || c.RTPPortMin > 65534 {
		return fmt.Errorf("rtp-port-min must be between 1024 and 65534, got %d", c.RTPPortMin)
	}
	if c.RTPPortMax < c.RTPPortMin+2 || c.RTPPortMax > 65535 {
		return fmt.Errorf("rtp-port-max must be between rtp-port-min+2 and 65535, got %d", c.RTPPortMax)
	}
	if c.RTPPortMin%2 != 0 {
		return fmt.Errorf("rtp-port-min must be even, got %d", c.RTPPortMin)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls-cert and tls-key must both be provided or both be omitted")
	}

	if c.UnlockCode == "" {
		return fmt.Errorf("unlock-code must be set")
	}

	return nil
}

// TLSEnabled returns true if SIP TLS certificates are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != ""
}

// MediaIP returns the IP address to use in SDP for the media relay. If
// ExternalIP is configured, it is returned directly; otherwise the first
// non-loopback IPv4 interface address is used, and "127.0.0.1" if there is
// none. No STUN probe is made here.
func (c *Config) MediaIP() string {
	if c.ExternalIP != "" {
		return c.ExternalIP
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

// STUNServerList splits STUNServers into an ordered slice of host:port
// addresses, trimming whitespace and dropping empty entries.
func (c *Config) STUNServerList() []string {
	var out []string
	for _, s := range strings.Split(c.STUNServers, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DashboardListenAddr returns the configured dashboard address, defaulting
// to ":<http-port>".
func (c *Config) DashboardListenAddr() string {
	if c.DashboardAddr != "" {
		return c.DashboardAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
