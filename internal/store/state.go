package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/olliecrow/chapter_generator/internal/history"
	"github.com/olliecrow/chapter_generator/internal/quota"
)

// State gives typed access to the persisted license, usage and history.
// Reads never fail: unreadable or malformed values are logged and replaced
// by their defaults. Writes go straight through to the Store.
type State struct {
	kv         Store
	logger     *zap.Logger
	maxHistory int
}

func NewState(kv Store, logger *zap.Logger, maxHistory int) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxHistory <= 0 {
		maxHistory = history.DefaultMaxEntries
	}
	return &State{kv: kv, logger: logger, maxHistory: maxHistory}
}

func (s *State) Store() Store {
	return s.kv
}

// License returns the saved license key, or "" in quota-gated mode.
func (s *State) License(ctx context.Context) string {
	key := load[*string](ctx, s, KeyLicense, nil)
	if key == nil {
		return ""
	}
	return strings.TrimSpace(*key)
}

// SetLicense stores key; an empty key removes the license.
func (s *State) SetLicense(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		if err := s.kv.Delete(ctx, KeyLicense); err != nil {
			return &StorageError{Op: "delete", Key: KeyLicense, Err: err}
		}
		return nil
	}
	return s.save(ctx, KeyLicense, key)
}

func (s *State) Usage(ctx context.Context) quota.State {
	usage := load(ctx, s, KeyUsage, quota.State{})
	if usage.Count < 0 {
		s.logger.Warn("stored usage has negative count; resetting", zap.Int("count", usage.Count))
		return quota.State{}
	}
	return usage
}

func (s *State) SetUsage(ctx context.Context, usage quota.State) error {
	return s.save(ctx, KeyUsage, usage)
}

func (s *State) History(ctx context.Context) []history.Record {
	records := load[[]history.Record](ctx, s, KeyHistory, nil)
	return history.Truncate(records, s.maxHistory)
}

func (s *State) SetHistory(ctx context.Context, records []history.Record) error {
	if records == nil {
		records = []history.Record{}
	}
	return s.save(ctx, KeyHistory, history.Truncate(records, s.maxHistory))
}

func (s *State) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &StorageError{Op: "encode", Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return &StorageError{Op: "write", Key: key, Err: err}
	}
	return nil
}

func load[T any](ctx context.Context, s *State, key string, def T) T {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("state read failed; using default",
				zap.String("key", key),
				zap.Error(&StorageError{Op: "read", Key: key, Err: err}))
		}
		return def
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("state value malformed; using default",
			zap.String("key", key),
			zap.Error(fmt.Errorf("decode %s: %w", key, err)))
		return def
	}
	return out
}
