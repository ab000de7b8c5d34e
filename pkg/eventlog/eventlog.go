// Package eventlog persists probe state transitions as JSON lines in a
// size-rotated log file.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/velemoonkon/webinfo/pkg/config"
	"github.com/velemoonkon/webinfo/pkg/scanner"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log writes scanner events. It implements scanner.EventSink and is safe for
// concurrent use.
type Log struct {
	logger *zap.Logger
	closer func() error
}

// Open creates (or appends to) the log file at path, rotating it according
// to config.Log
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	cfg := config.Log
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays, // days
		Compress:   cfg.Compress,
	}

	// Fail now rather than on the first event if the file cannot be opened
	if _, err := rotator.Write(nil); err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}

	l := New(zapcore.AddSync(rotator))
	l.closer = rotator.Close
	return l, nil
}

// New creates a log writing to w
func New(w zapcore.WriteSyncer) *Log {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, zap.DebugLevel)
	return &Log{
		logger: zap.New(core),
		closer: func() error { return nil },
	}
}

// Emit records one state transition. Failed terminal states are logged at
// warn level, successful completion at info, intermediate states at debug.
func (l *Log) Emit(e scanner.Event) {
	fields := []zap.Field{
		zap.Int("index", e.Index),
		zap.String("hostname", e.Hostname),
		zap.String("stage", string(e.Stage)),
		zap.String("state", string(e.State)),
		zap.Time("event_time", e.Time),
	}
	if e.Kind != "" {
		fields = append(fields, zap.String("kind", e.Kind))
	}
	if e.Message != "" {
		fields = append(fields, zap.String("message", e.Message))
	}

	switch {
	case e.State == scanner.StateCompleted:
		l.logger.Info("probe_completed", fields...)
	case e.State.Terminal():
		l.logger.Warn("probe_failed", fields...)
	default:
		l.logger.Debug("probe_transition", fields...)
	}
}

// RunStarted records the start of a scan
func (l *Log) RunStarted(targets int, cfg scanner.Config) {
	resolver := "system"
	if len(cfg.DNSServers) > 0 {
		resolver = cfg.DNSProto
	}
	l.logger.Info("run_started",
		zap.Int("targets", targets),
		zap.Int("concurrency", cfg.Concurrency),
		zap.String("resolver", resolver),
		zap.Strings("dns_servers", cfg.DNSServers),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("port", cfg.Port))
}

// RunFinished records per-state totals of a finished scan
func (l *Log) RunFinished(batch scanner.Batch, elapsed time.Duration, runErr error) {
	counts := make(map[scanner.State]int)
	for _, r := range batch {
		counts[r.State]++
	}

	fields := []zap.Field{
		zap.Int("reports", len(batch)),
		zap.Int("completed", counts[scanner.StateCompleted]),
		zap.Int("dns_failed", counts[scanner.StateDNSFailed]),
		zap.Int("tls_failed", counts[scanner.StateTLSFailed]),
		zap.Duration("elapsed", elapsed),
	}
	if runErr != nil {
		l.logger.Error("run_aborted", append(fields, zap.Error(runErr))...)
		return
	}
	l.logger.Info("run_finished", fields...)
}

// Close flushes and closes the log file
func (l *Log) Close() error {
	_ = l.logger.Sync()
	return l.closer()
}
