// Package socfeed forwards third-party SOC events to the MazeRunner ActiveSOC
// API from a spool directory and a CEF syslog listener.
package socfeed

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/mazerunner-sdk/internal/config"
	"github.com/invisible-tech/mazerunner-sdk/internal/types"
)

// Prometheus metrics (registered once).
var (
	eventsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mazerunner_soc_events_submitted_total",
			Help: "SOC events accepted by the MazeRunner server",
		},
		[]string{"input"},
	)
	submitErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mazerunner_soc_submit_errors_total",
			Help: "SOC batches that failed to parse or submit",
		},
		[]string{"input"},
	)
)

func init() {
	prometheus.MustRegister(eventsSubmitted)
	prometheus.MustRegister(submitErrors)
}

const (
	inputSpool  = "spool"
	inputSyslog = "syslog"

	maxResults = 1000
)

// EventSink receives batches of SOC events. The SDK's ActiveSOC collection
// satisfies it.
type EventSink interface {
	SubmitEvents(ctx context.Context, socName string, events []map[string]any) error
}

// Feeder runs the spool watcher and the syslog listener.
type Feeder struct {
	cfg  config.FeederConfig
	sink EventSink
	log  *logrus.Logger

	watcher *fsnotify.Watcher
	conn    net.PacketConn

	resultsMu sync.RWMutex
	results   []types.FeedResult

	wg sync.WaitGroup
}

// New creates a feeder. The spool directory and its processed/ and failed/
// subdirectories are created when missing, and the syslog socket is bound.
func New(cfg config.FeederConfig, sink EventSink, log *logrus.Logger) (*Feeder, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	f := &Feeder{cfg: cfg, sink: sink, log: log}

	if cfg.SpoolDir != "" {
		for _, dir := range []string{cfg.SpoolDir, f.processedDir(), f.failedDir()} {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create spool directory: %w", err)
			}
		}
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := watcher.Add(cfg.SpoolDir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", cfg.SpoolDir, err)
		}
		f.watcher = watcher
	}

	if cfg.SyslogAddr != "" {
		conn, err := net.ListenPacket("udp", cfg.SyslogAddr)
		if err != nil {
			f.closeWatcher()
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.SyslogAddr, err)
		}
		f.conn = conn
	}
	return f, nil
}

// SyslogAddr returns the bound syslog address, or nil when disabled.
func (f *Feeder) SyslogAddr() net.Addr {
	if f.conn == nil {
		return nil
	}
	return f.conn.LocalAddr()
}

// Start processes files already in the spool, then runs the inputs until
// ctx ends.
func (f *Feeder) Start(ctx context.Context) error {
	f.log.WithFields(logrus.Fields{
		"soc": f.cfg.SOCName, "spool": f.cfg.SpoolDir, "syslog": f.cfg.SyslogAddr,
	}).Info("Starting SOC feeder")

	if f.watcher != nil {
		if err := f.processExisting(ctx); err != nil {
			f.log.WithError(err).Warn("Some spooled files failed")
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.watchSpool(ctx)
		}()
	}
	if f.conn != nil {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.serveSyslog(ctx)
		}()
	}

	<-ctx.Done()
	return nil
}

// Shutdown waits for the inputs to stop, up to ctx.
func (f *Feeder) Shutdown(ctx context.Context) error {
	f.closeWatcher()
	if f.conn != nil {
		f.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.log.Info("SOC feeder stopped")
	case <-ctx.Done():
		f.log.Warn("Shutdown timeout, SOC feeder inputs may not have stopped cleanly")
	}
	return nil
}

func (f *Feeder) closeWatcher() {
	if f.watcher != nil {
		f.watcher.Close()
	}
}

// submit sends events in batches of BatchSize and records the outcome.
func (f *Feeder) submit(ctx context.Context, input, source string, events []types.SOCEvent) error {
	var result *multierror.Error
	sent := 0
	for start := 0; start < len(events); start += f.cfg.BatchSize {
		end := start + f.cfg.BatchSize
		if end > len(events) {
			end = len(events)
		}
		batch := make([]map[string]any, 0, end-start)
		for _, ev := range events[start:end] {
			batch = append(batch, ev)
		}
		if err := f.sink.SubmitEvents(ctx, f.cfg.SOCName, batch); err != nil {
			result = multierror.Append(result, fmt.Errorf("events %d-%d: %w", start, end-1, err))
			continue
		}
		sent += len(batch)
	}
	eventsSubmitted.WithLabelValues(input).Add(float64(sent))

	err := result.ErrorOrNil()
	f.record(input, source, len(events), err)
	return err
}

func (f *Feeder) record(input, source string, events int, err error) {
	r := types.FeedResult{Source: source, Events: events, SubmittedAt: time.Now()}
	entry := f.log.WithFields(logrus.Fields{"input": input, "source": source, "events": events})
	if err != nil {
		r.Error = err.Error()
		submitErrors.WithLabelValues(input).Inc()
		entry.WithError(err).Error("Failed to forward SOC events")
	} else {
		entry.Info("Forwarded SOC events")
	}

	f.resultsMu.Lock()
	f.results = append(f.results, r)
	if len(f.results) > maxResults {
		f.results = append([]types.FeedResult(nil), f.results[len(f.results)-maxResults:]...)
	}
	f.resultsMu.Unlock()
}

// Results returns the most recent outcomes, up to limit.
func (f *Feeder) Results(limit int) []types.FeedResult {
	f.resultsMu.RLock()
	defer f.resultsMu.RUnlock()
	n := len(f.results)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.FeedResult, limit)
	copy(out, f.results[n-limit:])
	return out
}

func (f *Feeder) processedDir() string { return filepath.Join(f.cfg.SpoolDir, "processed") }
func (f *Feeder) failedDir() string    { return filepath.Join(f.cfg.SpoolDir, "failed") }
