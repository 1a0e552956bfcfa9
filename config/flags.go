package config

import (
	"flag"
	"fmt"
	"os"
)

// Flags holds parsed command-line flags, per spec.md §6: -network,
// -data-dir, -log-level, -no-discovery, -log-json.
type Flags struct {
	Network    string
	DataDir    string
	LogLevel   string
	NoDiscover bool
	LogJSON    bool
}

// ParseFlags parses emberchaind's command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("emberchaind", flag.ExitOnError)

	fs.StringVar(&f.Network, "network", "", "network id, isolates mDNS peer discovery from other emberchain networks")
	fs.StringVar(&f.DataDir, "data-dir", "", "directory for the node's identity key and peer-address cache")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&f.NoDiscover, "no-discovery", false, "disable mDNS peer discovery")
	fs.BoolVar(&f.LogJSON, "log-json", false, "emit logs as JSON instead of colored console output")

	fs.Usage = printUsage
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	return f
}

// ApplyFlags overlays parsed flags onto cfg. Flags take precedence over
// both defaults and environment variables.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.Network != "" {
		cfg.NetworkID = f.Network
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.NoDiscover {
		cfg.NoDiscover = true
	}
	if f.LogJSON {
		cfg.LogJSON = true
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `emberchaind - an educational peer-to-peer blockchain node

Usage:
  emberchaind [options]

Options:
  -network string       network id, isolates mDNS discovery from other networks
  -data-dir string      directory for the node's identity key and peer cache
  -log-level string     log level: debug, info, warn, error (default "info")
  -no-discovery         disable mDNS peer discovery
  -log-json             emit logs as JSON instead of colored console output

Console commands (read from standard input):
  ls p                  list known peer ids
  ls c                  print the local chain as JSON
  create b <data>       mine and broadcast a block carrying <data>
`)
}

// Load builds a Config from defaults, environment variables, then CLI
// flags, in increasing order of precedence.
func Load() *Config {
	cfg := Default()
	cfg.ApplyEnv()
	ApplyFlags(&cfg, ParseFlags())
	return &cfg
}
