package config

import (
	"flag"
	"strings"
)

// Config holds the reference server's settings.
type Config struct {
	ListenAddr string   // e.g. ":8282"
	LogLevel   string   // "info", "debug", etc.
	RPKIURLs   []string // optional live-VRP JSON feed URLs; empty disables the feed
}

// Intervals are the default intervals in seconds if no specific value is configured
const (
	DefaultRefreshInterval = uint32(3600) // 1 - 86400
	DefaultRetryInterval   = uint32(600)  // 1 - 7200
	DefaultExpireInterval  = uint32(7200) // 600 - 172800
)

// Load reads the server config from flags, env vars, or defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr: ":8282",
		LogLevel:   "info",
	}

	listen := flag.String("listen", cfg.ListenAddr, "Address to listen on (e.g. :8282)")
	loglevel := flag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	urls := flag.String("rpki-urls", "", "Comma-separated list of RPKI VRP JSON feed URLs")

	flag.Parse()

	cfg.ListenAddr = *listen
	cfg.LogLevel = *loglevel
	if *urls != "" {
		cfg.RPKIURLs = strings.Split(*urls, ",")
	}

	return cfg, nil
}

// ClientConfig holds one rtrctl invocation's settings. Unlike Config, it
// is populated directly by cmd/rtrctl's cobra persistent flags (pflag,
// not the stdlib flag package), so it carries no Load function here.
type ClientConfig struct {
	Server   string
	Port     string
	Version  int
	StateDir string
	LogLevel string
}

// DefaultClientConfig returns a ClientConfig with the CLI's defaults,
// for cobra flags to override.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Port:     "323",
		Version:  2,
		StateDir: ".",
		LogLevel: "info",
	}
}
