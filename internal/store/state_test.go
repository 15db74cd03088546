package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/olliecrow/chapter_generator/internal/history"
	"github.com/olliecrow/chapter_generator/internal/quota"
	"github.com/olliecrow/chapter_generator/internal/store"
)

type failingStore struct {
	store.Store
	getErr error
	setErr error
}

func (f failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

func observedState(kv store.Store, maxHistory int) (*store.State, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return store.NewState(kv, zap.New(core), maxHistory), logs
}

func TestStateDefaultsWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s, logs := observedState(store.NewMemoryStore(), 5)

	assert.Equal(t, "", s.License(ctx))
	assert.Equal(t, quota.State{}, s.Usage(ctx))
	assert.Empty(t, s.History(ctx))
	assert.Zero(t, logs.Len(), "absent keys are not failures")
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/state.json"
	fs, err := store.NewFileStore(path)
	require.NoError(t, err)
	s := store.NewState(fs, nil, 5)

	usage := quota.State{Count: 3, WindowStart: time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC)}
	records := []history.Record{
		{ID: 1_700_000_000_002, URL: "https://youtu.be/b", Chapters: "00:00 Intro\n01:30 Setup"},
		{ID: 1_700_000_000_001, URL: "https://youtu.be/a", Chapters: "00:00 \"Quoted\" <tag>"},
	}

	require.NoError(t, s.SetLicense(ctx, "LIC-42"))
	require.NoError(t, s.SetUsage(ctx, usage))
	require.NoError(t, s.SetHistory(ctx, records))

	reopened, err := store.NewFileStore(path)
	require.NoError(t, err)
	s2 := store.NewState(reopened, nil, 5)

	assert.Equal(t, "LIC-42", s2.License(ctx))
	assert.Equal(t, usage, s2.Usage(ctx))
	assert.Equal(t, records, s2.History(ctx))
}

func TestStateClearLicense(t *testing.T) {
	ctx := context.Background()
	s := store.NewState(store.NewMemoryStore(), nil, 5)

	require.NoError(t, s.SetLicense(ctx, "  key  "))
	assert.Equal(t, "key", s.License(ctx))

	require.NoError(t, s.SetLicense(ctx, ""))
	assert.Equal(t, "", s.License(ctx))
}

func TestStateNullLicenseIsAbsent(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, store.KeyLicense, []byte("null")))

	s := store.NewState(kv, nil, 5)
	assert.Equal(t, "", s.License(ctx))
}

func TestStateMalformedValuesFallBackAndLog(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, store.KeyUsage, []byte(`{"count":"many"}`)))
	require.NoError(t, kv.Set(ctx, store.KeyHistory, []byte(`{"not":"a list"}`)))
	require.NoError(t, kv.Set(ctx, store.KeyLicense, []byte(`42`)))

	s, logs := observedState(kv, 5)

	assert.Equal(t, quota.State{}, s.Usage(ctx))
	assert.Empty(t, s.History(ctx))
	assert.Equal(t, "", s.License(ctx))
	assert.Equal(t, 3, logs.FilterMessage("state value malformed; using default").Len())
}

func TestStateNegativeCountResets(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, store.KeyUsage, []byte(`{"count":-2}`)))

	s, logs := observedState(kv, 5)
	assert.Equal(t, quota.State{}, s.Usage(ctx))
	assert.Equal(t, 1, logs.Len())
}

func TestStateReadFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	kv := failingStore{Store: store.NewMemoryStore(), getErr: errors.New("disk on fire")}

	s, logs := observedState(kv, 5)
	assert.Equal(t, quota.State{}, s.Usage(ctx))
	require.Equal(t, 1, logs.FilterMessage("state read failed; using default").Len())
}

func TestStateWriteFailureReturnsStorageError(t *testing.T) {
	ctx := context.Background()
	kv := failingStore{Store: store.NewMemoryStore(), setErr: errors.New("read-only")}
	s := store.NewState(kv, nil, 5)

	err := s.SetUsage(ctx, quota.State{Count: 1})

	var storageErr *store.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, store.KeyUsage, storageErr.Key)
	assert.Equal(t, "write", storageErr.Op)
}

func TestStateHistoryTruncatedToCap(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	s := store.NewState(kv, nil, 2)

	require.NoError(t, s.SetHistory(ctx, []history.Record{{ID: 3}, {ID: 2}, {ID: 1}}))
	assert.Equal(t, []history.Record{{ID: 3}, {ID: 2}}, s.History(ctx))

	require.NoError(t, kv.Set(ctx, store.KeyHistory, []byte(`[{"id":9},{"id":8},{"id":7}]`)))
	assert.Len(t, s.History(ctx), 2)
}
