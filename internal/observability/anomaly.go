package observability

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jkaninda/signoffs/internal/config"
)

const defaultAnomalyWindow = 300 * time.Second

// minAnomalySamples is the smallest window population that is rated.
const minAnomalySamples = 5

// AnomalyDetector performs threshold-based anomaly detection using sliding windows.
type AnomalyDetector struct {
	mu            sync.Mutex
	errorCounts   map[string]*slidingWindow
	successCounts map[string]*slidingWindow
	cfg           *config.AnomalyConfig
	logger        *slog.Logger
	now           func() time.Time
	alerts        int
}

type slidingWindow struct {
	entries []windowEntry
	window  time.Duration
}

type windowEntry struct {
	timestamp time.Time
	value     float64
}

// NewAnomalyDetector creates an anomaly detector from config.
func NewAnomalyDetector(cfg *config.AnomalyConfig, logger *slog.Logger) *AnomalyDetector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AnomalyDetector{
		errorCounts:   make(map[string]*slidingWindow),
		successCounts: make(map[string]*slidingWindow),
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

func (a *AnomalyDetector) windowDuration() time.Duration {
	if a.cfg.WindowSeconds <= 0 {
		return defaultAnomalyWindow
	}
	return time.Duration(a.cfg.WindowSeconds) * time.Second
}

// RecordError records a failed operation for anomaly tracking.
func (a *AnomalyDetector) RecordError(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.getOrCreateWindow(a.errorCounts, operation).add(a.now(), 1)
	a.checkErrorRate(operation)
}

// RecordSuccess records a successful operation.
func (a *AnomalyDetector) RecordSuccess(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.getOrCreateWindow(a.successCounts, operation).add(a.now(), 1)
}

// ErrorRate returns the error rate of operation within the current window
// and the number of samples it is based on.
func (a *AnomalyDetector) ErrorRate(operation string) (rate float64, samples int) {
	if a == nil {
		return 0, 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rate(operation)
}

// Alerts returns how many times the error rate threshold was exceeded.
func (a *AnomalyDetector) Alerts() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alerts
}

// Must be called with a.mu held.
func (a *AnomalyDetector) rate(operation string) (float64, int) {
	now := a.now()
	errs := a.getOrCreateWindow(a.errorCounts, operation).sum(now)
	successes := a.getOrCreateWindow(a.successCounts, operation).sum(now)
	total := errs + successes
	if total == 0 {
		return 0, 0
	}
	return errs / total, int(total)
}

// checkErrorRate checks if the error rate exceeds the configured threshold.
// Must be called with a.mu held.
func (a *AnomalyDetector) checkErrorRate(operation string) {
	threshold := a.cfg.ErrorRateThreshold
	if threshold <= 0 {
		return
	}

	rate, total := a.rate(operation)
	if total < minAnomalySamples {
		return
	}

	if rate > threshold {
		a.alerts++
		a.logger.Warn("anomaly detected: high error rate",
			slog.String("operation", operation),
			slog.Float64("error_rate", rate),
			slog.Float64("threshold", threshold),
			slog.Int("total", total),
		)
	}
}

func (a *AnomalyDetector) getOrCreateWindow(m map[string]*slidingWindow, key string) *slidingWindow {
	w, ok := m[key]
	if !ok {
		w = &slidingWindow{window: a.windowDuration()}
		m[key] = w
	}
	return w
}

// add appends a value and prunes expired entries.
func (w *slidingWindow) add(now time.Time, value float64) {
	w.entries = append(w.entries, windowEntry{timestamp: now, value: value})
	w.prune(now)
}

// sum returns the total value within the window.
func (w *slidingWindow) sum(now time.Time) float64 {
	w.prune(now)
	var total float64
	for _, e := range w.entries {
		total += e.value
	}
	return total
}

// prune removes entries older than the window duration.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}
