package chapters

import (
	"context"
	"strings"
	"time"

	"github.com/olliecrow/chapter_generator/internal/history"
	"github.com/olliecrow/chapter_generator/internal/quota"
)

// Backend produces chapters for a video link. *Client is the production
// implementation.
type Backend interface {
	Generate(ctx context.Context, videoURL, licenseKey string) (string, error)
}

// Input is everything one submission depends on.
type Input struct {
	URL        string
	LicenseKey string
	Usage      quota.State
	History    []history.Record
	Now        time.Time
}

// Outcome is a successful submission together with the state that should
// replace the caller's.
type Outcome struct {
	Chapters string           `json:"chapters"`
	Record   history.Record   `json:"record"`
	Usage    quota.State      `json:"usage"`
	History  []history.Record `json:"-"`
	Licensed bool             `json:"licensed"`
}

// Engine runs the submission rules without touching storage: validate,
// gate, call the backend once, then derive the new usage and history.
type Engine struct {
	backend    Backend
	policy     quota.Policy
	maxHistory int
}

func NewEngine(backend Backend, policy quota.Policy, maxHistory int) *Engine {
	if maxHistory <= 0 {
		maxHistory = history.DefaultMaxEntries
	}
	return &Engine{backend: backend, policy: policy, maxHistory: maxHistory}
}

func (e *Engine) Policy() quota.Policy {
	return e.policy
}

func (e *Engine) Submit(ctx context.Context, in Input) (Outcome, error) {
	videoURL := strings.TrimSpace(in.URL)
	if videoURL == "" {
		return Outcome{}, &ValidationError{Message: "Please enter a valid YouTube URL."}
	}

	licenseKey := strings.TrimSpace(in.LicenseKey)
	licensed := licenseKey != ""
	if !e.policy.Permit(in.Usage, licensed, in.Now) {
		return Outcome{}, &QuotaExceededError{Limit: e.policy.Limit, Period: e.policy.Describe()}
	}

	text, err := e.backend.Generate(ctx, videoURL, licenseKey)
	if err != nil {
		return Outcome{}, err
	}

	usage := in.Usage
	if !licensed {
		usage = e.policy.RecordUsage(in.Usage, in.Now)
	}
	rec := history.Record{
		ID:       history.NextID(in.Now, in.History),
		URL:      videoURL,
		Chapters: text,
	}
	return Outcome{
		Chapters: text,
		Record:   rec,
		Usage:    usage,
		History:  history.Prepend(in.History, rec, e.maxHistory),
		Licensed: licensed,
	}, nil
}
