// Package storage defines durable single-blob storage for the note collection.
package storage

import (
	"fmt"
	"strings"
)

// Provider stores whole blobs under fixed keys.
type Provider interface {
	// Read returns the blob stored under key. A missing key yields an error
	// wrapping apperr.ErrNotFound.
	Read(key string) ([]byte, error)
	// Write replaces the blob under key. It returns only after the data is durable.
	Write(key string, data []byte) error
	// Close releases underlying resources.
	Close() error
}

// validKey rejects keys that could escape a namespace or are otherwise unusable.
func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("storage: empty key")
	}
	if key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("storage: invalid key: %q", key)
	}
	return nil
}
