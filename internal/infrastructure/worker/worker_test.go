package worker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/eventbus"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/admission"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approval-engine/internal/testutil"
)

type fakeWorker struct {
	name     string
	startErr error
	events   *[]string
}

func (f *fakeWorker) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	*f.events = append(*f.events, "start "+f.name)
	return nil
}

func (f *fakeWorker) Stop() error {
	*f.events = append(*f.events, "stop "+f.name)
	return nil
}

func (f *fakeWorker) Name() string { return f.name }

func TestManager_StartStopOrder(t *testing.T) {
	var events []string
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", events: &events})
	m.Register(&fakeWorker{name: "broken", startErr: errors.New("no"), events: &events})
	m.Register(&fakeWorker{name: "b", events: &events})
	assert.Equal(t, 3, m.Count())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	require.NoError(t, m.StopAll())

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, events)
}

type slaFixture struct {
	repo   port.ApplicationRepository
	bus    eventbus.Bus
	worker *SLAWorker
	now    time.Time

	mu       sync.Mutex
	breaches []*event.Event
}

func newSLAFixture(t *testing.T) *slaFixture {
	t.Helper()
	db := testutil.NewDB(t).DB
	f := &slaFixture{
		repo: repository.NewApplicationRepository(db, zap.NewNop()),
		bus:  eventbus.New(),
		now:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() { _ = f.bus.Close() })

	f.bus.Subscribe(event.TypeAdmissionSLABreached, func(_ context.Context, evt *event.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.breaches = append(f.breaches, evt)
		return nil
	})

	f.worker = NewSLAWorker(SLAWorkerConfig{PollInterval: 10 * time.Millisecond, BatchSize: 10},
		f.repo, f.bus, zap.NewNop())
	f.worker.now = func() time.Time { return f.now }
	return f
}

func (f *slaFixture) submit(t *testing.T, due time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	app := &entity.AdmissionApplication{ApplicantID: "stu-1", Program: "PhD"}
	require.NoError(t, f.repo.Create(ctx, app))
	_, err := f.repo.AtomicTransition(ctx, port.TransitionRequest{
		ApplicationID: app.ID, From: admission.StatusDraft, To: admission.StatusSubmitted,
		ActorID: "stu-1", DueAt: &due, At: due.Add(-72 * time.Hour),
	})
	require.NoError(t, err)
	return app.ID
}

func (f *slaFixture) reported() []*event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*event.Event{}, f.breaches...)
}

func TestSLAWorker_SweepReportsOnce(t *testing.T) {
	f := newSLAFixture(t)
	ctx := context.Background()

	overdue := f.submit(t, f.now.Add(-5*time.Hour))
	f.submit(t, f.now.Add(5*time.Hour))

	n, err := f.worker.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.worker.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a breach is reported once")
	assert.Equal(t, 1, f.worker.Reported())

	require.NoError(t, f.bus.Close())
	breaches := f.reported()
	require.Len(t, breaches, 1)
	assert.Equal(t, "SUBMITTED", breaches[0].GetPayloadString("status"))
	assert.Equal(t, int64(5), breaches[0].GetPayloadInt("overdue_hours"))
	assert.Equal(t, "system:sla", breaches[0].ActorID)
	assert.Equal(t, entity.EntityTypeAdmission, breaches[0].EntityType)
	assert.Equal(t, strconv.FormatInt(overdue, 10), breaches[0].EntityID)
}

func TestSLAWorker_Loop(t *testing.T) {
	f := newSLAFixture(t)
	f.submit(t, f.now.Add(-time.Hour))

	require.NoError(t, f.worker.Start(context.Background()))
	assert.Error(t, f.worker.Start(context.Background()))

	assert.Eventually(t, func() bool { return f.worker.Reported() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.worker.Stop())
	require.NoError(t, f.worker.Stop())
	assert.NoError(t, f.worker.LastError())
}
