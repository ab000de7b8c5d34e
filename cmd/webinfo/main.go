package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/velemoonkon/webinfo/pkg/config"
	"github.com/velemoonkon/webinfo/pkg/eventlog"
	"github.com/velemoonkon/webinfo/pkg/input"
	"github.com/velemoonkon/webinfo/pkg/output"
	"github.com/velemoonkon/webinfo/pkg/scanner"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var flags Flags

var rootCmd = &cobra.Command{
	Use:   "webinfo --csv <path> [flags]",
	Short: "Concurrent DNS and TLS prober for web hostnames",
	Long: `webinfo - resolve hostnames and inspect the TLS certificates they serve

For every hostname of the input list:
  • DNS resolution (system resolver, or custom servers over UDP, TCP, DoT, DoH)
  • CNAME chain and name servers of the registrable domain
  • TLS handshake with SNI, certificate and negotiation details

Output formats:
  • JSON (default) - one array, ordered like the input
  • JSONL - one report per line, pipe to jq
  • Parquet - columnar, query with DuckDB`,

	Example: `  # Probe the origins of a CSV file, print JSON to stdout
  webinfo --csv origins.csv

  # 50 targets in flight, save to file
  webinfo --csv origins.csv --size 50 -o report.json

  # Resolve through custom servers, racing them
  webinfo --csv origins.csv --dns 1.1.1.1,8.8.8.8 --dns-strategy parallel

  # DNS over HTTPS
  webinfo --csv origins.csv --dns 1.1.1.1 --dns-proto doh

  # Parquet output for analytics
  webinfo --csv origins.csv --format parquet -o scan.parquet
  # Then query: duckdb -c "SELECT hostname, tls_issuer_organization FROM 'scan.parquet'"

  # Pipe JSONL to jq
  webinfo --csv origins.csv --format jsonl | jq 'select(.state != "completed")'`,

	Args:          cobra.NoArgs,
	RunE:          runScan,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("webinfo %s (commit: %s, built: %s)\n", version, commit, date))
}

// registerFlags binds the command line to flags. Defaults come from the
// package config, so it runs after config.Init.
func registerFlags() {
	cfg := config.Scanner
	f := rootCmd.Flags()

	// Input
	f.StringVar(&flags.CSV, "csv", "", "Input CSV (origin column) or hostname list")

	// Engine
	f.IntVarP(&flags.Size, "size", "s", cfg.DefaultConcurrency, "Targets probed concurrently")
	f.DurationVarP(&flags.Timeout, "timeout", "t", cfg.DefaultTimeout, "Timeout per DNS server, connect and handshake")
	f.IntVarP(&flags.Rate, "rate", "r", cfg.DefaultRateLimit, "Max targets started per second (0 = unlimited)")
	f.IntVar(&flags.Port, "port", cfg.DefaultPort, "TLS port")
	f.IntVar(&flags.ConnectAttempts, "connect-attempts", cfg.DefaultConnectAttempts, "Addresses tried when connecting fails")

	// DNS options
	f.StringVar(&flags.DNS, "dns", "", "Custom DNS servers, comma-separated (default: system resolver)")
	f.StringVar(&flags.DNSProto, "dns-proto", cfg.DefaultDNSProto, "Protocol for custom servers: udp, tcp, dot, doh")
	f.StringVar(&flags.DNSStrategy, "dns-strategy", cfg.DefaultDNSStrategy, "Custom server strategy: sequential, parallel")
	f.BoolVar(&flags.NoExtraRecords, "no-extra-records", !cfg.DefaultExtraRecords, "Skip CNAME and NS lookups")

	// Output
	f.StringVarP(&flags.Output, "output", "o", "-", "Output file (- for stdout)")
	f.StringVar(&flags.Format, "format", string(output.FormatJSON), "Output format: json, jsonl, parquet")
	f.StringVar(&flags.LogFile, "logfile", config.Log.DefaultFile, "Event log file")
	f.StringVar(&flags.Config, "config", "", "YAML profile; explicit flags win over it")

	// Logging
	f.BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress progress output")
	f.BoolVarP(&flags.Verbose, "verbose", "v", false, "Verbose logging")

	// Group flags in help
	rootCmd.SetUsageTemplate(usageTemplate)
}

func runScan(cmd *cobra.Command, args []string) error {
	initLogger()

	var profile *config.Profile
	if flags.Config != "" {
		p, err := config.LoadProfile(flags.Config)
		if err != nil {
			return err
		}
		profile = p
	}

	run, err := ResolveConfig(flags, cmd.Flags().Changed, profile)
	if err != nil {
		return err
	}

	// Parse targets
	slog.Debug("reading targets", "file", run.Input)
	targets, err := input.ParseFile(run.Input)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		slog.Warn("no hostnames found in input", "file", run.Input)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			slog.Info("stopping scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	events, err := eventlog.Open(run.LogFile)
	if err != nil {
		return err
	}
	defer events.Close()

	// Live progress replaces per-report log lines on a terminal
	sinks := scanner.Tee{events}
	var live *progress
	if !flags.Quiet && !flags.Verbose && isatty.IsTerminal(os.Stderr.Fd()) {
		live = newProgress(os.Stderr, len(targets))
		sinks = append(sinks, live)
		run.Scanner.Quiet = true
	}

	s, err := scanner.New(run.Scanner, scanner.WithEventSink(sinks))
	if err != nil {
		return err
	}

	// Setup output writer before probing so a bad path fails fast
	w, err := output.New(run.Output, run.Format)
	if err != nil {
		return err
	}

	slog.Info("starting scan", "targets", len(targets), "concurrency", run.Scanner.Concurrency)
	events.RunStarted(len(targets), run.Scanner)
	startTime := time.Now()

	if live != nil {
		live.Start()
	}
	batch, scanErr := s.Scan(ctx, targets)
	if live != nil {
		live.Stop()
	}

	elapsed := time.Since(startTime)
	events.RunFinished(batch, elapsed, scanErr)

	// Partial results are still written when interrupted
	writeErr := output.WriteBatch(w, batch)
	if closeErr := w.Close(); closeErr != nil && writeErr == nil {
		writeErr = closeErr
	}

	if scanErr != nil {
		if errors.Is(scanErr, scanner.ErrIncomplete) {
			return fmt.Errorf("scan interrupted: %w", scanErr)
		}
		return fmt.Errorf("scan failed: %w", scanErr)
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write output: %w", writeErr)
	}

	slog.Info("scan completed", "reports", len(batch), "duration", elapsed.Round(time.Millisecond))

	return nil
}

func initLogger() {
	var level slog.Level
	switch {
	case flags.Verbose:
		level = slog.LevelDebug
	case flags.Quiet:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func main() {
	config.Init()
	registerFlags()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

const usageTemplate = `Usage:
  {{.UseLine}}

Examples:
{{.Example}}

Input:
      --csv string              Input CSV (origin column) or hostname list

Engine:
  -s, --size int                Targets probed concurrently (default 5)
  -t, --timeout duration        Timeout per DNS server, connect and handshake (default 5s)
  -r, --rate int                Max targets started per second, 0=unlimited (default 0)
      --port int                TLS port (default 443)
      --connect-attempts int    Addresses tried when connecting fails (default 2)

DNS Options:
      --dns string              Custom servers, comma-separated (default: system resolver)
      --dns-proto string        Protocol for custom servers: udp, tcp, dot, doh (default "udp")
      --dns-strategy string     sequential, parallel (default "sequential")
      --no-extra-records        Skip CNAME and NS lookups

Output:
  -o, --output string           Output file, - for stdout (default "-")
      --format string           Format: json, jsonl, parquet (default "json")
      --logfile string          Event log file (default "./webinfo.log")
      --config string           YAML profile; explicit flags win over it

Logging:
  -q, --quiet                   Suppress progress output
  -v, --verbose                 Verbose logging

Other:
  -h, --help                    Show help
      --version                 Show version
`
