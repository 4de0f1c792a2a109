// Command ferry announces, discovers and reaches ferry endpoints on the
// local network.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/config"
	"github.com/AriBhuiya/ferry/pkg/discovery"
	"github.com/AriBhuiya/ferry/pkg/observability"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	v          *viper.Viper
	configPath string

	cfg    *config.Config
	logger *zap.Logger

	discoveryMetrics *discovery.Metrics
	transportMetrics *transport.Metrics
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{v: viper.New()}
	err := a.rootCmd().ExecuteContext(ctx)
	stop()
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ferry",
		Short: "Find and reach ferry endpoints on the local network",
		Long: `ferry advertises a file-transfer endpoint over mDNS/DNS-SD, browses for
other endpoints, ranks their addresses by likely reachability, and opens an
encrypted connection to a chosen one.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to YAML config file")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("backend", "zeroconf", "mDNS backend: zeroconf or hashicorp")
	pf.String("transport", "quic", "Transport: quic, tls, tcp or winpipe")
	pf.String("verify", "insecure", "Peer verification: insecure or fingerprint")
	pf.String("fingerprint", "", "Expected server certificate fingerprint (hex SHA-256)")
	pf.Int("interval", 2000, "Discovery time budget in milliseconds")
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("discovery.backend", pf.Lookup("backend"))
	_ = a.v.BindPFlag("transport.kind", pf.Lookup("transport"))
	_ = a.v.BindPFlag("transport.verify", pf.Lookup("verify"))
	_ = a.v.BindPFlag("transport.fingerprint", pf.Lookup("fingerprint"))
	_ = a.v.BindPFlag("discovery.browse_interval_ms", pf.Lookup("interval"))

	root.AddCommand(a.serveCmd(), a.discoverCmd(), a.pingCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWith(a.v, a.configPath)
	if err != nil {
		return err
	}
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	a.cfg, a.logger = cfg, logger
	logger.Debug("effective configuration", zap.Any("config", cfg))

	a.discoveryMetrics = discovery.NopMetrics()
	a.transportMetrics = nil
	if cfg.Metrics.Enabled {
		if _, err := observability.ServeMetrics(cmd.Context(), cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		a.discoveryMetrics = discovery.PrometheusMetrics(cfg.Metrics.Namespace)
		a.transportMetrics = transport.PrometheusMetrics(cfg.Metrics.Namespace)
	}
	return nil
}
