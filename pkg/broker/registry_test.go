package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadpulse/loadpulse/pkg/types"
)

func TestRegistryInsertGetList(t *testing.T) {
	reg := NewRegistry()
	reg.Insert(types.TestResult{ID: "t1", Kind: types.KindLoad, Status: types.StatusPending})
	reg.Insert(types.TestResult{ID: "t2", Kind: types.KindStress, Status: types.StatusPending})

	got, ok := reg.Get("t1")
	require.True(t, ok)
	assert.Equal(t, types.StatusPending, got.Status)

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "t1", list[0].ID)
	assert.Equal(t, "t2", list[1].ID)
}

func TestRegistryUpdateMutatesOnlyNamedRecord(t *testing.T) {
	reg := NewRegistry()
	reg.Insert(types.TestResult{ID: "t1", Status: types.StatusPending})
	reg.Insert(types.TestResult{ID: "t2", Status: types.StatusPending})

	reg.Update("t1", func(r types.TestResult) types.TestResult {
		r.Status = types.StatusRunning
		r.Progress = 42
		return r
	})

	got1, _ := reg.Get("t1")
	got2, _ := reg.Get("t2")
	assert.Equal(t, types.StatusRunning, got1.Status)
	assert.Equal(t, float32(42), got1.Progress)
	assert.Equal(t, types.StatusPending, got2.Status)
}

func TestRegistryUpdateOnUnknownIDIsNoop(t *testing.T) {
	reg := NewRegistry()
	reg.Update("missing", func(r types.TestResult) types.TestResult {
		t.Fatal("update function should not be called for an unknown id")
		return r
	})
}

func TestRunFlagTryAcquireIsExclusive(t *testing.T) {
	flag := NewRunFlag()
	assert.True(t, flag.TryAcquire())
	assert.False(t, flag.TryAcquire())
	assert.True(t, flag.IsRunning())

	flag.Release()
	assert.False(t, flag.IsRunning())
	assert.True(t, flag.TryAcquire())
}
