// Package blobstore provides tiered blob storage. A Store holds named
// tiers (pipeline stages such as raw intake, extracted text, final
// output); blobs move between tiers as the pipeline advances. The tier
// set is fixed at construction and every operation validates its tier
// name against it.
package blobstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the blob or tier content does not exist.
	ErrNotFound = errors.New("blob not found")
	// ErrUnknownTier indicates a tier name outside the configured set.
	ErrUnknownTier = errors.New("unknown storage tier")
	// ErrAccessDenied indicates the backing store refused the operation.
	ErrAccessDenied = errors.New("access denied")
	// ErrTransientIO indicates a retryable I/O failure.
	ErrTransientIO = errors.New("transient I/O error")
	// ErrInvalidName indicates a blob name that is empty or escapes its tier.
	ErrInvalidName = errors.New("invalid blob name")
)

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Name       string    `json:"name"`
	Tier       string    `json:"container"`
	Size       int64     `json:"sizeBytes"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Store is the uniform interface over a tiered blob store. Write has
// overwrite semantics and is idempotent; List is finite and restartable
// by listing again.
type Store interface {
	Read(ctx context.Context, tier, name string) ([]byte, error)
	Write(ctx context.Context, tier, name string, data []byte) error
	List(ctx context.Context, tier string) ([]BlobInfo, error)
	Delete(ctx context.Context, tier, name string) error
	Tiers() []string
}
