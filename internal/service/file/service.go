package file

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Import for PNG decoding support
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// Photos of paper documents above this size are re-encoded.
const compressThreshold = 1 << 20

type FileService interface {
	// UploadAbsenceAttachment stores one supporting document. The content
	// type is detected from the bytes, never taken from the client.
	UploadAbsenceAttachment(ctx context.Context, userID string, file io.Reader, filename string, maxBytes int64) (absence.Attachment, error)
	OpenFile(ctx context.Context, path string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, path string) error
}

type fileServiceImpl struct {
	storage storage.FileStorage
	now     func() time.Time
}

func NewFileService(storage storage.FileStorage) FileService {
	return &fileServiceImpl{
		storage: storage,
		now:     time.Now,
	}
}

func (s *fileServiceImpl) UploadAbsenceAttachment(ctx context.Context, userID string, file io.Reader, filename string, maxBytes int64) (absence.Attachment, error) {
	buffer, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return absence.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	if int64(len(buffer)) > maxBytes {
		return absence.Attachment{}, fmt.Errorf("%w: %s is larger than %d bytes", storage.ErrFileTooLarge, filename, maxBytes)
	}

	mtype := mimetype.Detect(buffer)
	contentType := mtype.String()
	ext := strings.ToLower(filepath.Ext(filename))

	if (mtype.Is("image/jpeg") || mtype.Is("image/png")) && len(buffer) > compressThreshold {
		compressed, err := compressImage(buffer, compressThreshold, compressThreshold/4)
		if err != nil {
			return absence.Attachment{}, fmt.Errorf("failed to compress image: %w", err)
		}
		buffer, contentType, ext = compressed, "image/jpeg", ".jpg"
	}
	if ext == "" {
		ext = mtype.Extension()
	}

	// absences/{userID}/{uuid}-{timestamp}{ext}
	newFilename := fmt.Sprintf("%s-%d%s", uuid.New().String(), s.now().Unix(), ext)
	path := filepath.ToSlash(filepath.Join("absences", userID, newFilename))

	uploadedPath, err := s.storage.Upload(ctx, bytes.NewReader(buffer), path, contentType)
	if err != nil {
		return absence.Attachment{}, fmt.Errorf("failed to upload absence attachment: %w", err)
	}

	return absence.Attachment{
		Reference:   uploadedPath,
		FileName:    filepath.Base(filename),
		ContentType: contentType,
		Size:        int64(len(buffer)),
	}, nil
}

func (s *fileServiceImpl) OpenFile(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.storage.Download(ctx, path)
}

// DeleteFile deletes a file
func (s *fileServiceImpl) DeleteFile(ctx context.Context, path string) error {
	return s.storage.Delete(ctx, path)
}

// ==================== HELPER FUNCTIONS ====================

// compressImage re-encodes an image as JPEG until it fits between minSize
// and maxSize, shrinking it when quality alone is not enough.
func compressImage(buffer []byte, maxSize int, minSize int) ([]byte, error) {
	if len(buffer) <= maxSize && len(buffer) >= minSize {
		return buffer, nil
	}

	img, _, err := image.Decode(bytes.NewReader(buffer))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var compressed []byte
	for quality := 85; quality >= 50; quality -= 5 {
		buf := new(bytes.Buffer)
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
		compressed = buf.Bytes()
		if len(compressed) <= maxSize {
			return compressed, nil
		}
	}

	// Still too large: scale down towards the middle of the range.
	bounds := img.Bounds()
	ratio := math.Sqrt(float64((maxSize+minSize)/2) / float64(len(compressed)))
	width := max(int(float64(bounds.Dx())*ratio), 600)
	height := max(int(float64(bounds.Dy())*ratio), 400)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, resizeImage(img, width, height), &jpeg.Options{Quality: 70}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

// resizeImage resizes an image to the specified dimensions using high-quality interpolation
func resizeImage(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
