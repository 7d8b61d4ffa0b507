package storage

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key, err := s.Upload(ctx, strings.NewReader("hello"), "absences/u1/doc.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "absences/u1/doc.pdf", key)

	rc, err := s.Download(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	_, err = s.Download(ctx, key)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLocalStorage_PathTraversal(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	// Leading dot-dots are clamped to the root.
	key, err := s.Upload(ctx, strings.NewReader("x"), "../../etc/passwd", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", key)

	_, err = s.Upload(ctx, strings.NewReader("x"), "", "text/plain")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestLocalStorage_FailedUploadLeavesNothing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStorage(root)
	require.NoError(t, err)

	_, err = s.Upload(ctx, failingReader{}, "absences/u1/doc.pdf", "application/pdf")
	require.Error(t, err)

	entries, err := os.ReadDir(root + "/absences/u1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
