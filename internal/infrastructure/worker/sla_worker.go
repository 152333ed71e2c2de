package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/garyjia/approval-engine/internal/application/eventbus"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"go.uber.org/zap"
)

// SLAWorkerConfig holds configuration for the SLA sweep
type SLAWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultSLAWorkerConfig returns default configuration
func DefaultSLAWorkerConfig() SLAWorkerConfig {
	return SLAWorkerConfig{
		PollInterval: time.Minute,
		BatchSize:    50,
	}
}

// SLAWorker reports admission applications that stayed in a status past its
// deadline. Each overdue status is reported once; a later transition re-arms it.
type SLAWorker struct {
	config SLAWorkerConfig

	applications port.ApplicationRepository
	bus          eventbus.Bus
	logger       *zap.Logger
	now          func() time.Time

	// Runtime state
	mu            sync.RWMutex
	cancel        context.CancelFunc
	done          chan struct{}
	isRunning     bool
	reportedCount int
	lastError     error
}

// NewSLAWorker creates a new SLA sweep worker
func NewSLAWorker(
	config SLAWorkerConfig,
	applications port.ApplicationRepository,
	bus eventbus.Bus,
	logger *zap.Logger,
) *SLAWorker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSLAWorkerConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSLAWorkerConfig().BatchSize
	}
	return &SLAWorker{
		config:       config,
		applications: applications,
		bus:          bus,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the sweep loop
func (w *SLAWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("sla worker already running")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("SLAWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(ctx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish
func (w *SLAWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("SLAWorker stopped", zap.Int("reported_count", w.Reported()))
	return nil
}

// Name returns the worker name for identification
func (w *SLAWorker) Name() string {
	return "SLAWorker"
}

// Reported returns the number of breaches reported since creation
func (w *SLAWorker) Reported() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reportedCount
}

// LastError returns the error of the most recent failed sweep
func (w *SLAWorker) LastError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastError
}

func (w *SLAWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("SLA sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep reports one batch of overdue applications and returns how many
// breaches it reported
func (w *SLAWorker) Sweep(ctx context.Context) (int, error) {
	now := w.now()
	apps, err := w.applications.ListOverdue(ctx, now, w.config.BatchSize)
	if err != nil {
		w.recordSweep(0, err)
		return 0, fmt.Errorf("failed to list overdue applications: %w", err)
	}

	reported := 0
	for _, app := range apps {
		marked, err := w.applications.MarkSLABreachReported(ctx, app.ID, app.Status, now)
		if err != nil {
			w.logger.Warn("Failed to mark SLA breach",
				zap.Int64("application_id", app.ID),
				zap.Error(err))
			continue
		}
		// moved on since it was listed
		if !marked {
			continue
		}
		reported++
		w.publish(ctx, app, now)
	}

	w.recordSweep(reported, nil)
	return reported, nil
}

func (w *SLAWorker) publish(ctx context.Context, app *entity.AdmissionApplication, now time.Time) {
	payload := map[string]any{"status": app.Status.String()}
	if app.StatusDueAt != nil {
		payload["due_at"] = app.StatusDueAt.UTC().Format(time.RFC3339)
		payload["overdue_hours"] = int64(now.Sub(*app.StatusDueAt).Hours())
	}

	w.logger.Info("Admission SLA breached",
		zap.Int64("application_id", app.ID),
		zap.String("status", app.Status.String()),
		zap.Any("due_at", payload["due_at"]))

	if w.bus == nil {
		return
	}
	evt := event.NewEvent(event.TypeAdmissionSLABreached, entity.EntityTypeAdmission,
		strconv.FormatInt(app.ID, 10), payload)
	evt.ActorID = "system:sla"
	w.bus.DispatchAsync(ctx, evt)
}

func (w *SLAWorker) recordSweep(reported int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reportedCount += reported
	w.lastError = err
}
