// Package tracker follows new MazeRunner alerts, classifies them and keeps a
// bounded history for the HTTP API.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/invisible-tech/mazerunner-sdk/internal/config"
	"github.com/invisible-tech/mazerunner-sdk/internal/detection"
	"github.com/invisible-tech/mazerunner-sdk/internal/types"
	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

// Prometheus metrics (registered once).
var (
	alertsTracked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mazerunner_alerts_tracked_total",
			Help: "Total MazeRunner alerts seen by the tracker",
		},
		[]string{"alert_type", "severity"},
	)
	lastAlertID = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mazerunner_last_alert_id",
			Help: "Highest MazeRunner alert id seen",
		},
	)
	runningTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mazerunner_running_background_tasks",
			Help: "Background tasks currently running on the MazeRunner server",
		},
	)
	pollErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mazerunner_tracker_poll_errors_total",
			Help: "Failed tracker polls",
		},
	)
)

func init() {
	prometheus.MustRegister(alertsTracked)
	prometheus.MustRegister(lastAlertID)
	prometheus.MustRegister(runningTasks)
	prometheus.MustRegister(pollErrors)
}

// Tracker polls the alert list for ids above the last one seen.
type Tracker struct {
	cfg    config.TrackerConfig
	log    *logrus.Logger
	client *mazerunner.Client
	engine *detection.Engine

	mu     sync.RWMutex
	alerts []*types.TrackedAlert
	seen   sets.Set[int]
	lastID int
}

// New creates a tracker. A nil engine uses the default rules.
func New(cfg config.TrackerConfig, client *mazerunner.Client, engine *detection.Engine, log *logrus.Logger) *Tracker {
	if engine == nil {
		engine = detection.NewEngine()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 10000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Tracker{
		cfg:    cfg,
		log:    log,
		client: client,
		engine: engine,
		seen:   sets.New[int](),
	}
}

// Start runs the alert and task pollers until ctx ends.
// Caller must run the HTTP server separately.
func (t *Tracker) Start(ctx context.Context) {
	go wait.UntilWithContext(ctx, t.pollOnce, t.cfg.PollInterval)
	if t.cfg.TaskInterval > 0 {
		go wait.UntilWithContext(ctx, t.countTasks, t.cfg.TaskInterval)
	}
}

func (t *Tracker) pollOnce(ctx context.Context) {
	if _, err := t.Poll(ctx); err != nil && ctx.Err() == nil {
		pollErrors.Inc()
		t.log.WithError(err).Warn("Alert poll failed")
	}
}

// Poll fetches alerts newer than the last one seen and records them. It
// returns the number of new alerts.
func (t *Tracker) Poll(ctx context.Context) (int, error) {
	t.mu.RLock()
	since := t.lastID
	t.mu.RUnlock()

	alerts, err := t.client.Alerts().Filter(mazerunner.AlertFilter{
		OnlyAlerts:    !t.cfg.ShowMuted,
		Types:         t.cfg.AlertTypes,
		IDGreaterThan: since,
	}).List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, a := range alerts {
		if t.record(a) {
			n++
		}
	}
	return n, nil
}

func (t *Tracker) record(a *mazerunner.Alert) bool {
	tracked := &types.TrackedAlert{
		ID:        a.ID(),
		AlertType: a.AlertType(),
		DecoyName: a.DecoyName(),
		Status:    a.Status(),
		Timestamp: a.StringField("timestamp"),
		TrackedAt: time.Now(),
		Fields:    a.Fields(),
	}

	t.mu.Lock()
	if t.seen.Has(tracked.ID) {
		t.mu.Unlock()
		return false
	}
	t.engine.Classify(tracked)
	t.seen.Insert(tracked.ID)
	t.alerts = append(t.alerts, tracked)
	if len(t.alerts) > t.cfg.Retention {
		evicted := t.alerts[:len(t.alerts)-t.cfg.Retention]
		for _, old := range evicted {
			t.seen.Delete(old.ID)
		}
		t.alerts = append([]*types.TrackedAlert(nil), t.alerts[len(evicted):]...)
	}
	if tracked.ID > t.lastID {
		t.lastID = tracked.ID
		lastAlertID.Set(float64(t.lastID))
	}
	t.mu.Unlock()

	alertsTracked.WithLabelValues(tracked.AlertType, tracked.Severity).Inc()
	t.log.WithFields(logrus.Fields{
		"alert_id": tracked.ID, "alert_type": tracked.AlertType, "decoy": tracked.DecoyName,
		"status": tracked.Status, "severity": tracked.Severity, "rule_id": tracked.RuleID,
	}).Warn("DECOY ALERT")
	return true
}

// RunningTasks counts background tasks not yet finished on the server.
func (t *Tracker) RunningTasks(ctx context.Context) (int, error) {
	return t.client.BackgroundTasks().Filter(true).Len(ctx)
}

func (t *Tracker) countTasks(ctx context.Context) {
	n, err := t.RunningTasks(ctx)
	if err != nil {
		if ctx.Err() == nil {
			t.log.WithError(err).Debug("Failed to count running tasks")
		}
		return
	}
	runningTasks.Set(float64(n))
}

// LastAlertID returns the highest alert id seen.
func (t *Tracker) LastAlertID() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastID
}

// GetAlerts returns the most recent alerts, up to limit.
func (t *Tracker) GetAlerts(limit int) []*types.TrackedAlert {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.alerts)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*types.TrackedAlert, limit)
	copy(out, t.alerts[n-limit:])
	return out
}

// Rules returns the classification rules in use.
func (t *Tracker) Rules() []types.RuleInfo {
	return t.engine.RuleInfos()
}
