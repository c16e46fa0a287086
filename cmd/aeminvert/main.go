package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"aeminvert/pkg/aeminvert"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "aeminvert"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(-1)
	}
}

// globals are the flags shared by every subcommand.
type globals struct {
	logLevel    string
	storeKind   string
	dbPath      string
	metricsAddr string
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Trans-dimensional inversion of airborne EM data",
		Long: `aeminvert samples conductivity sections of airborne electromagnetic
survey lines with reversible-jump Markov chain Monte Carlo over a wavelet
tree, optionally with parallel tempering across many chains.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.storeKind, "store", "", "Run store backend (memory, badger, sqlite); empty disables it")
	pf.StringVar(&g.dbPath, "db-path", "aeminvert.db", "Database path for the badger or sqlite store")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	cmd.AddCommand(
		invertCmd(g),
		likelihoodCmd(g),
		syntheticCmd(g),
		runsCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// newLogger writes text to terminals and JSON lines everywhere else.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

// session is the client and services one command runs with.
type session struct {
	client *aeminvert.Client
	log    *slog.Logger
	server *http.Server
}

func (g *globals) open(cmd *cobra.Command, store bool) (*session, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), g.logLevel)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	opts := aeminvert.Options{Logger: logger}
	if store {
		opts.StoreKind = g.storeKind
		opts.DBPath = g.dbPath
	}
	s := &session{log: logger}

	var reg *prometheus.Registry
	if g.metricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts.Registerer = reg
	}
	client, err := aeminvert.New(opts)
	if err != nil {
		return nil, err
	}
	if err := client.Init(cmd.Context()); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	s.client = client

	if reg != nil {
		if err := s.serveMetrics(g.metricsAddr, reg); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) serveMetrics(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server stopped", "error", err)
		}
	}()
	s.log.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

func (s *session) Close() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	return s.client.Close()
}
