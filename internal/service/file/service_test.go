package file

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*fileServiceImpl, *storage.LocalStorage) {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewFileService(local).(*fileServiceImpl)
	svc.now = func() time.Time { return time.Unix(1740819600, 0) }
	return svc, local
}

func TestUploadAbsenceAttachment_DetectsContentType(t *testing.T) {
	svc, local := newTestService(t)
	ctx := context.Background()

	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	att, err := svc.UploadAbsenceAttachment(ctx, "user-1", bytes.NewReader(pdf), "arret.txt", 1<<20)
	require.NoError(t, err)

	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, "arret.txt", att.FileName)
	assert.Equal(t, int64(len(pdf)), att.Size)
	assert.True(t, strings.HasPrefix(att.Reference, "absences/user-1/"))
	assert.True(t, strings.HasSuffix(att.Reference, "-1740819600.txt"))

	rc, err := local.Download(ctx, att.Reference)
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pdf, stored)
}

func TestUploadAbsenceAttachment_TooLarge(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UploadAbsenceAttachment(context.Background(), "user-1", strings.NewReader(strings.Repeat("a", 11)), "big.txt", 10)
	assert.ErrorIs(t, err, storage.ErrFileTooLarge)
}

func TestUploadAbsenceAttachment_CompressesLargePhotos(t *testing.T) {
	svc, _ := newTestService(t)

	// Noise does not compress well as PNG, so this lands above the threshold.
	img := image.NewRGBA(image.Rect(0, 0, 800, 800))
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < 800; y++ {
		for x := 0; x < 800; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.Greater(t, buf.Len(), compressThreshold)

	att, err := svc.UploadAbsenceAttachment(context.Background(), "user-1", &buf, "scan.png", 10<<20)
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", att.ContentType)
	assert.True(t, strings.HasSuffix(att.Reference, ".jpg"))
	assert.Less(t, att.Size, int64(10<<20))
}
