package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	hostwire "github.com/wagiedev/hostwire-go"
)

// version is set at build time via -ldflags "-X main.version=x.y.z"
var version = "0.1.0"

// app holds the state shared by all commands of one invocation.
type app struct {
	cfgFile string

	cfg       Config
	log       *slog.Logger
	logCloser io.Closer
	registry  *prometheus.Registry
	metrics   *http.Server

	// extraOptions are appended to every client's options; tests inject
	// an in-process wire here.
	extraOptions []hostwire.Option
}

// newRootCmd builds the command tree.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "hostwire",
		Short: "Talk to a host application over the hostwire protocol",
		Long: `hostwire connects to a host application, authenticates with the token
handshake and sends actions. It can also stream host events or expose the
host to MCP clients on stdio.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(a.cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			a.cfg = cfg
			a.log, a.logCloser = NewLogger(cfg.Log)

			return a.startMetrics()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.shutdown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ~/.config/hostwire/config.yaml)")
	flags.String("address", "", "host address: ws://, wss:// or exec://")
	flags.String("codec", "", "envelope codec: json or cbor")
	flags.String("name", "", "client name presented to the host")
	flags.Duration("request-timeout", 0, "per-request timeout, 0 disables")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-file", "", "write logs to this rotating file instead of stderr")

	root.AddCommand(
		newConnectCmd(a),
		newSendCmd(a),
		newListenCmd(a),
		newMCPCmd(a),
		newVersionCmd(),
	)

	return root
}

// startMetrics serves the registry on cfg.MetricsAddr when set.
func (a *app) startMetrics() error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if a.cfg.MetricsAddr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.metrics = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.metrics.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			a.log.Error("Metrics server failed", "error", err)
		}
	}()

	a.log.Info("Serving metrics", "address", ln.Addr().String())

	return nil
}

func (a *app) shutdown() error {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.metrics.Shutdown(ctx); err != nil {
			a.log.Warn("Metrics server shutdown failed", "error", err)
		}
	}

	if a.logCloser != nil {
		return a.logCloser.Close()
	}

	return nil
}

// clientOptions turns the loaded config into client options.
func (a *app) clientOptions() []hostwire.Option {
	identity := hostwire.Identity{UUID: a.cfg.UUID, Name: a.cfg.Name}
	if identity.UUID == "" {
		identity = hostwire.NewIdentity(a.cfg.Name)
	}

	opts := []hostwire.Option{
		hostwire.WithLogger(a.log),
		hostwire.WithAddress(a.cfg.Address),
		hostwire.WithCodec(a.cfg.Codec),
		hostwire.WithIdentity(identity),
		hostwire.WithRequestTimeout(a.cfg.RequestTimeout),
		hostwire.WithHandshakeTimeout(a.cfg.HandshakeTimeout),
		hostwire.WithMetrics(a.registry),
		hostwire.WithOnProtocolError(func(err error) {
			a.log.Warn("Protocol error", "error", err)
		}),
	}

	return append(opts, a.extraOptions...)
}

// withClient runs fn with a connected client.
func (a *app) withClient(ctx context.Context, fn func(hostwire.Client) error) error {
	return hostwire.WithClient(ctx, fn, a.clientOptions()...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show hostwire version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "hostwire version %s\n", version)

			return nil
		},
	}
}
