package ota

import (
	"testing"
	"time"

	"github.com/lebensspur/sentinel/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	state types.OtaState
}

func (f *fakeStore) LoadOtaState() (types.OtaState, error) { return f.state, nil }
func (f *fakeStore) SaveOtaState(v types.OtaState) error    { f.state = v; return nil }

func TestMarkApplied_ThenConfirm_ResetsCounters(t *testing.T) {
	store := &fakeStore{}
	s, err := New(store)
	require.NoError(t, err)

	require.NoError(t, s.MarkApplied())
	assert.True(t, s.Snapshot().PendingVerify)

	require.NoError(t, s.Confirm())
	snap := s.Snapshot()
	assert.False(t, snap.PendingVerify)
	assert.Equal(t, 0, snap.UnconfirmedBoots)
	assert.True(t, snap.StartupCheckDone)
}

func TestRecordBoot_RollsBackAfterThreeUnconfirmedBoots(t *testing.T) {
	store := &fakeStore{}
	s, err := New(store)
	require.NoError(t, err)
	require.NoError(t, s.MarkApplied())

	rollback, err := s.RecordBoot()
	require.NoError(t, err)
	assert.False(t, rollback)

	rollback, err = s.RecordBoot()
	require.NoError(t, err)
	assert.False(t, rollback)

	rollback, err = s.RecordBoot()
	require.NoError(t, err)
	assert.True(t, rollback, "third unconfirmed boot should signal rollback")
	assert.False(t, s.Snapshot().PendingVerify)
}

func TestRecordBoot_NoOpWhenNotPendingVerify(t *testing.T) {
	store := &fakeStore{}
	s, err := New(store)
	require.NoError(t, err)

	rollback, err := s.RecordBoot()
	require.NoError(t, err)
	assert.False(t, rollback)
}

func TestRecordCheck_StampsLastCheck(t *testing.T) {
	store := &fakeStore{}
	s, err := New(store)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, s.RecordCheck(now))
	assert.WithinDuration(t, now, s.Snapshot().LastCheck, time.Millisecond)
}
