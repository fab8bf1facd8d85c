package main

import "github.com/spf13/pflag"

// daemonFlags holds the command-line options sentineld starts with: a
// plain struct populated by spf13/pflag, defaults baked in, no
// sub-commands.
type daemonFlags struct {
	DataDir    string
	ListenAddr string
	LogLevel   string
	DeviceID   string
	Simulated  bool
}

func parseFlags() daemonFlags {
	var f daemonFlags

	pflag.StringVar(&f.DataDir, "data-dir", "/data", "Directory holding the bbolt config store")
	pflag.StringVar(&f.ListenAddr, "listen", ":8080", "HTTP control surface listen address")
	pflag.StringVar(&f.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	pflag.StringVar(&f.DeviceID, "device-id", "", "Override the derived device ID (defaults to LS-<MAC>)")
	pflag.BoolVar(&f.Simulated, "simulated", false, "Run against in-memory Radio/GPIO simulators instead of real hardware")

	pflag.Parse()
	return f
}
