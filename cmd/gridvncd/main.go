package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sameehj/gridvnc/pkg/config"
	"github.com/sameehj/gridvnc/pkg/env"
	"github.com/sameehj/gridvnc/pkg/gateway"
	"github.com/sameehj/gridvnc/pkg/grid"
	"github.com/sameehj/gridvnc/pkg/logging"
	"github.com/sameehj/gridvnc/pkg/metrics"
	"github.com/sameehj/gridvnc/pkg/relay"
	"github.com/sameehj/gridvnc/pkg/version"
)

var (
	cfgFile     string
	addr        string
	gridURL     string
	maxSessions int
	showVersion bool
)

func main() {
	pflag.StringVar(&cfgFile, "config", "", "config file (default: ~/.gridvnc/config.yaml)")
	pflag.StringVar(&addr, "addr", "", "listen address (overrides host and port)")
	pflag.StringVar(&gridURL, "grid-url", "", "Selenium Grid base URL")
	pflag.IntVar(&maxSessions, "max-sessions", -1, "maximum concurrent relays (0 = unlimited)")
	pflag.BoolVar(&showVersion, "version", false, "print version and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println(version.String())
		return
	}

	if err := env.LoadFromDir("."); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load(resolveConfigPath(cfgFile))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if gridURL != "" {
		cfg.GridURL = gridURL
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if maxSessions >= 0 {
		cfg.Relay.MaxSessions = maxSessions
	}
	if addr == "" {
		addr = cfg.Addr()
	}

	logLevel := cfg.LogLevel
	if cfg.Debug {
		logLevel = "debug"
	}
	logger := logging.New(logLevel, cfg.LogFormat)
	m := metrics.New()

	gridClient := grid.NewClient(cfg.GridURL, cfg.GridTimeout())
	gridClient.SetLogger(logger)
	gridClient.SetMetrics(m)

	engine := relay.NewEngine(gridClient, relay.WebsocketDialer{HandshakeTimeout: cfg.DialTimeout()},
		relay.WithLogger(logger),
		relay.WithMetrics(m),
		relay.WithDialTimeout(cfg.DialTimeout()),
	)

	gw := gateway.NewServer(addr, gridClient, engine, gateway.AllowlistAuthorizer{Allowed: cfg.Gateway.AllowedAddrs})
	gw.SetLogger(logger)
	gw.SetMetrics(m)
	gw.SetMaxSessions(cfg.Relay.MaxSessions)
	gw.SetAllowedOrigins(cfg.Relay.AllowedOrigins)
	gw.SetStaticDir(cfg.StaticDir)
	gw.SetPublicConfig(gateway.PublicConfig{
		GridURL:     cfg.GridURL,
		VNCPassword: cfg.VNCPassword,
		Host:        cfg.Host,
		Port:        cfg.Port,
		Debug:       cfg.Debug,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("gridvncd_started", "addr", gw.Addr(), "grid_url", cfg.GridURL, "version", version.Version)
	if err := gw.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Info("gridvncd_stopped")
}

// resolveConfigPath falls back to the default location only when a file
// exists there.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	path = config.DefaultPath()
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
