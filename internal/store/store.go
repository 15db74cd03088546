package store

import (
	"context"
	"errors"
	"fmt"
)

// Keys of the persisted client state.
const (
	KeyLicense = "licenseKey"
	KeyHistory = "generationHistory"
	KeyUsage   = "freeUsage"
)

var ErrNotFound = errors.New("key not found")

// Store is the persistent key-value capability. Values are JSON documents.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// StorageError reports a failed read or write of one key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
