package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/velemoonkon/webinfo/pkg/config"
	"github.com/velemoonkon/webinfo/pkg/dns"
	"github.com/velemoonkon/webinfo/pkg/output"
	"github.com/velemoonkon/webinfo/pkg/scanner"
)

var errNoInput = errors.New("requires --csv <path>")

// Flags represents the CLI flags as parsed by cobra
type Flags struct {
	// Input
	CSV string

	// Engine
	Size            int
	Timeout         time.Duration
	Rate            int
	Port            int
	ConnectAttempts int

	// DNS options
	DNS            string // comma-separated server list
	DNSProto       string // "udp", "tcp", "dot" or "doh"
	DNSStrategy    string // "sequential" or "parallel"
	NoExtraRecords bool

	// Output
	Output  string
	Format  string
	LogFile string

	// Profile
	Config string

	// Logging
	Quiet   bool
	Verbose bool
}

// RunConfig is the resolved configuration of one run
type RunConfig struct {
	Input   string
	Output  string
	Format  output.Format
	LogFile string
	Scanner scanner.Config
}

// ResolveConfig merges flags over an optional profile. changed reports
// whether a flag was given on the command line; only those override profile
// values. Flag defaults already carry the WEBINFO_ environment overrides.
func ResolveConfig(flags Flags, changed func(name string) bool, profile *config.Profile) (RunConfig, error) {
	if profile == nil {
		profile = &config.Profile{}
	}
	fromProfile := func(name string, set bool) bool {
		return set && !changed(name)
	}

	if flags.CSV == "" {
		return RunConfig{}, errNoInput
	}

	cfg := scanner.DefaultConfig()
	cfg.Concurrency = flags.Size
	cfg.Timeout = flags.Timeout
	cfg.RateLimit = flags.Rate
	cfg.Port = flags.Port
	cfg.ConnectAttempts = flags.ConnectAttempts
	cfg.ExtraRecords = !flags.NoExtraRecords
	cfg.Quiet = flags.Quiet

	if fromProfile("size", profile.Concurrency != 0) {
		cfg.Concurrency = profile.Concurrency
	}
	if d, err := profile.TimeoutDuration(); err != nil {
		return RunConfig{}, err
	} else if fromProfile("timeout", d != 0) {
		cfg.Timeout = d
	}
	if fromProfile("rate", profile.RateLimit != 0) {
		cfg.RateLimit = profile.RateLimit
	}
	if fromProfile("port", profile.TLS.Port != 0) {
		cfg.Port = profile.TLS.Port
	}
	if fromProfile("connect-attempts", profile.TLS.ConnectAttempts != 0) {
		cfg.ConnectAttempts = profile.TLS.ConnectAttempts
	}
	if fromProfile("no-extra-records", profile.ExtraRecords != nil) {
		cfg.ExtraRecords = *profile.ExtraRecords
	}

	// DNS
	servers, err := dns.ParseServerList(flags.DNS)
	if err != nil {
		return RunConfig{}, err
	}
	if fromProfile("dns", len(profile.DNS.Servers) > 0) {
		if servers, err = dns.ParseServerList(strings.Join(profile.DNS.Servers, ",")); err != nil {
			return RunConfig{}, err
		}
	}
	cfg.DNSServers = servers

	proto := flags.DNSProto
	if fromProfile("dns-proto", profile.DNS.Proto != "") {
		proto = profile.DNS.Proto
	}
	if cfg.DNSProto, err = parseDNSProto(proto); err != nil {
		return RunConfig{}, err
	}

	strategy := flags.DNSStrategy
	if fromProfile("dns-strategy", profile.DNS.Strategy != "") {
		strategy = profile.DNS.Strategy
	}
	if cfg.DNSStrategy, err = dns.ParseStrategy(strategy); err != nil {
		return RunConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return RunConfig{}, fmt.Errorf("invalid port %d", cfg.Port)
	}

	// Output
	run := RunConfig{
		Input:   flags.CSV,
		Output:  flags.Output,
		LogFile: flags.LogFile,
		Scanner: cfg,
	}
	if fromProfile("output", profile.Output.Path != "") {
		run.Output = profile.Output.Path
	}
	if fromProfile("logfile", profile.Output.LogFile != "") {
		run.LogFile = profile.Output.LogFile
	}

	format := flags.Format
	if fromProfile("format", profile.Output.Format != "") {
		format = profile.Output.Format
	}
	if run.Format, err = output.ParseFormat(format); err != nil {
		return RunConfig{}, err
	}
	if run.Format == output.FormatParquet && (run.Output == "" || run.Output == "-") {
		return RunConfig{}, fmt.Errorf("parquet cannot write to stdout, use --output file.parquet")
	}

	return run, nil
}

// parseDNSProto validates the transport used for custom DNS servers
func parseDNSProto(proto string) (string, error) {
	proto = strings.ToLower(strings.TrimSpace(proto))
	switch proto {
	case "":
		return config.Scanner.DefaultDNSProto, nil
	case "udp", "tcp", "dot", "doh":
		return proto, nil
	default:
		return "", fmt.Errorf("%w: %q (want udp, tcp, dot or doh)", dns.ErrUnknownTransport, proto)
	}
}
