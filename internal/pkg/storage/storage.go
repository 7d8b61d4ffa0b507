// Package storage keeps uploaded absence documents. Callers only ever hold
// the relative key returned by Upload.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrFileTooLarge = errors.New("file exceeds the maximum allowed size")
	ErrFileNotFound = errors.New("file not found")
	ErrInvalidPath  = errors.New("invalid file path")
)

type FileStorage interface {
	// Upload writes file under key and returns the normalized key.
	Upload(ctx context.Context, file io.Reader, key string, contentType string) (string, error)
	// Download fails with ErrFileNotFound for unknown keys.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete ignores keys that are already gone.
	Delete(ctx context.Context, key string) error
}
