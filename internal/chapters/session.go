package chapters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/olliecrow/chapter_generator/internal/history"
	"github.com/olliecrow/chapter_generator/internal/store"
)

// Session drives submissions against persisted state: it loads license,
// usage and history, runs the Engine, and writes the results back. Only one
// submission may be in flight at a time.
type Session struct {
	engine   *Engine
	state    *store.State
	logger   *zap.Logger
	now      func() time.Time
	inFlight atomic.Bool
}

type SessionOption func(*Session)

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

func NewSession(engine *Engine, state *store.State, opts ...SessionOption) *Session {
	s := &Session{
		engine: engine,
		state:  state,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Busy reports whether a submission is waiting on the webhook.
func (s *Session) Busy() bool {
	return s.inFlight.Load()
}

func (s *Session) Submit(ctx context.Context, videoURL string) (Outcome, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Outcome{}, ErrBusy
	}
	defer s.inFlight.Store(false)

	in := Input{
		URL:        videoURL,
		LicenseKey: s.state.License(ctx),
		Usage:      s.state.Usage(ctx),
		History:    s.state.History(ctx),
		Now:        s.now().UTC(),
	}

	start := time.Now()
	out, err := s.engine.Submit(ctx, in)
	if err != nil {
		s.logFailure(in, err, time.Since(start))
		return Outcome{}, err
	}

	if !out.Licensed {
		if err := s.state.SetUsage(ctx, out.Usage); err != nil {
			s.logger.Error("persist usage failed", zap.Error(err))
		}
	}
	if err := s.state.SetHistory(ctx, out.History); err != nil {
		s.logger.Error("persist history failed", zap.Error(err))
	}

	s.logger.Info("chapters generated",
		zap.Int64("record_id", out.Record.ID),
		zap.String("video_url", out.Record.URL),
		zap.Int("bytes", len(out.Chapters)),
		zap.Bool("licensed", out.Licensed),
		zap.Int("usage_count", out.Usage.Count),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func (s *Session) logFailure(in Input, err error, elapsed time.Duration) {
	var (
		validationErr *ValidationError
		quotaErr      *QuotaExceededError
	)
	switch {
	case errors.As(err, &validationErr):
		s.logger.Debug("submission rejected", zap.Error(err))
	case errors.As(err, &quotaErr):
		s.logger.Info("free quota exhausted",
			zap.Int("limit", quotaErr.Limit),
			zap.Int("usage_count", in.Usage.Count),
			zap.Time("window_start", in.Usage.WindowStart))
	default:
		s.logger.Warn("chapter generation failed",
			zap.String("video_url", strings.TrimSpace(in.URL)),
			zap.Duration("duration", elapsed),
			zap.Error(err))
	}
}

// Snapshot is the user-visible plan state.
type Snapshot struct {
	Licensed  bool             `json:"licensed"`
	Limit     int              `json:"limit"`
	Used      int              `json:"used"`
	Remaining int              `json:"remaining"`
	Period    string           `json:"period"`
	ResetsAt  *time.Time       `json:"resets_at,omitempty"`
	History   []history.Record `json:"-"`
}

func (s *Session) Snapshot(ctx context.Context) Snapshot {
	now := s.now().UTC()
	policy := s.engine.Policy()
	usage := s.state.Usage(ctx)

	snap := Snapshot{
		Licensed:  s.state.License(ctx) != "",
		Limit:     policy.Limit,
		Remaining: policy.Remaining(usage, now),
		Period:    policy.Describe(),
		History:   s.state.History(ctx),
	}
	snap.Used = policy.Limit - snap.Remaining
	if at, ok := policy.ResetsAt(usage, now); ok {
		snap.ResetsAt = &at
	}
	return snap
}

func (s *Session) LicenseKey(ctx context.Context) string {
	return s.state.License(ctx)
}

// SaveLicense stores a license key entered by the user.
func (s *Session) SaveLicense(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &ValidationError{Message: "Please enter a license key."}
	}
	if err := s.state.SetLicense(ctx, key); err != nil {
		return err
	}
	s.logger.Info("license key saved")
	return nil
}

func (s *Session) ClearLicense(ctx context.Context) error {
	if err := s.state.SetLicense(ctx, ""); err != nil {
		return err
	}
	s.logger.Info("license key cleared")
	return nil
}

// Record returns history entry index, newest first.
func (s *Session) Record(ctx context.Context, index int) (history.Record, error) {
	records := s.state.History(ctx)
	if index < 0 || index >= len(records) {
		return history.Record{}, fmt.Errorf("no history entry %d (have %d)", index, len(records))
	}
	return records[index], nil
}
