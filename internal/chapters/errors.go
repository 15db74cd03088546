package chapters

import (
	"errors"
	"fmt"

	"github.com/olliecrow/chapter_generator/internal/store"
)

// ErrBusy is returned when Submit is called while another submission is
// still waiting on the webhook.
var ErrBusy = errors.New("a generation is already in progress")

// ValidationError is bad user input, caught before anything else runs.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// QuotaExceededError means the free tier is used up for the current window.
// No request was sent.
type QuotaExceededError struct {
	Limit  int
	Period string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf(
		"You have reached your limit of %d free generations per %s. Please upgrade to Pro for unlimited use.",
		e.Limit, e.Period,
	)
}

// RemoteError is a non-2xx answer from the webhook.
type RemoteError struct {
	StatusCode int
	Detail     string
}

func (e *RemoteError) Error() string {
	return "Failed to generate: " + e.Detail
}

// NetworkError is a transport failure: no usable response arrived.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "Failed to generate: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UserMessage renders err as the single line shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		validationErr *ValidationError
		quotaErr      *QuotaExceededError
		remoteErr     *RemoteError
		networkErr    *NetworkError
		storageErr    *store.StorageError
	)
	switch {
	case errors.Is(err, ErrBusy):
		return "A generation is already in progress. Please wait."
	case errors.As(err, &validationErr),
		errors.As(err, &quotaErr),
		errors.As(err, &remoteErr),
		errors.As(err, &networkErr):
		return err.Error()
	case errors.As(err, &storageErr):
		return "Could not save local state: " + storageErr.Err.Error()
	}
	return "An unexpected error occurred. Please try again."
}
