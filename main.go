// ABOUTME: Entry point for the seqplay host
// ABOUTME: Loads config, applies CLI flags and runs the host until shutdown
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/seqplay/internal/app"
	"github.com/harperreed/seqplay/internal/config"
	"github.com/harperreed/seqplay/internal/logging"
	"github.com/harperreed/seqplay/internal/version"
)

var (
	configFile    = flag.String("config", "", "Config file (default: XDG config dir, then ./seqplay.toml)")
	port          = flag.Int("port", 8928, "WebSocket port")
	name          = flag.String("name", "", "Host name for mDNS and handshakes (default: hostname-seqplay)")
	startID       = flag.Int64("start", 0, "First unit id to play")
	device        = flag.String("output", "oto", "Audio output: oto or null")
	mode          = flag.String("mode", "speaker", "Initial output mode: speaker, earpiece or bluetooth")
	logFile       = flag.String("log-file", "", "Log file path (default: XDG state dir)")
	noTUI         = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs    = flag.Bool("stream-logs", false, "Alias for -no-tui")
	noMDNS        = flag.Bool("no-mdns", false, "Do not advertise via mDNS")
	exitOnRelease = flag.Bool("exit-on-release", false, "Exit when a producer releases the player")
	debug         = flag.Bool("debug", false, "Enable debug logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Name == "" || cfg.Name == version.Product {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Name = fmt.Sprintf("%s-%s", hostname, version.Product)
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "log path: %v\n", err)
		os.Exit(1)
	}
	logger, closer, err := logging.Setup(logging.Options{
		File:   logPath,
		Stdout: !cfg.TUI,
		Debug:  cfg.Debug,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	logger.Info("Starting seqplay", "version", version.Version, "name", cfg.Name, "port", cfg.Port, "log", logPath)

	host, err := app.New(app.Config{Settings: cfg, Logger: logger})
	if err != nil {
		logger.Error("Failed to create host", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := host.Run(ctx); err != nil {
		logger.Error("Host failed", "err", err)
		os.Exit(1)
	}
}

// applyFlags overrides config values with flags given on the command line
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "name":
			cfg.Name = *name
		case "start":
			cfg.StartPlayID = *startID
		case "output":
			cfg.Output.Device = *device
		case "mode":
			cfg.Output.Mode = *mode
		case "log-file":
			cfg.LogFile = *logFile
		case "no-tui", "stream-logs":
			cfg.TUI = !(*noTUI || *streamLogs)
		case "no-mdns":
			cfg.MDNS = !*noMDNS
		case "exit-on-release":
			cfg.ExitOnRelease = *exitOnRelease
		case "debug":
			cfg.Debug = *debug
		}
	})
}
