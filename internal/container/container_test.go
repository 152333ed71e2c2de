package container

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/domain/admission"
)

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "engine.db")
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Workflow.AdminRoles = nil
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, c.Ready())

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start must fail")

	require.NotNil(t, c.Services())
	assert.NotNil(t, c.Services().Workflows)
	assert.NotNil(t, c.Server())
	assert.Len(t, c.Registry().ListHandlers(), 2)

	health := c.Health()
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.Equal(t, "disabled", health.Components["lark"].Message)
	assert.True(t, health.Components["workers"].Healthy)
	assert.Equal(t, 1, c.Workers().Count())

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_SweepDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.SLASweep.PollInterval = 0

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, 0, c.Workers().Count())
	assert.True(t, c.Health().Overall)
}

func TestProvideAdmissionTable(t *testing.T) {
	table, err := ProvideAdmissionTable(nil)
	require.NoError(t, err)
	assert.Equal(t, 14, table.SLADays(admission.StatusUnderReview))

	table, err = ProvideAdmissionTable(map[string]int{"UNDER_REVIEW": 5})
	require.NoError(t, err)
	assert.Equal(t, 5, table.SLADays(admission.StatusUnderReview))
	assert.Equal(t, 7, table.SLADays(admission.StatusSelected))

	_, err = ProvideAdmissionTable(map[string]int{"NOPE": 1})
	assert.Error(t, err)
}

func TestConvertToZapFields(t *testing.T) {
	boom := errors.New("boom")
	fields := convertToZapFields("id", 7, 42, "skipped", "error", boom, "dangling")

	require.Len(t, fields, 2)
	assert.Equal(t, "id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
	assert.Equal(t, boom, fields[1].Interface)
}
