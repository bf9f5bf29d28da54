// Package export passes the failed-order spreadsheet download through to
// the console, optionally archiving a copy to S3.
package export

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"fulfillment-board/internal/models"
)

// Source produces the export stream; in production this is the order
// service client.
type Source interface {
	Export(ctx context.Context, q models.FailedOrderQuery) (io.ReadCloser, string, string, error)
}

// Archiver stores a copy of an export for later inspection.
type Archiver interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Service tees export downloads to an optional archive.
type Service struct {
	src      Source
	archiver Archiver
	nowFunc  func() time.Time
}

// New builds the export service. archiver may be nil to disable archiving.
func New(src Source, archiver Archiver) *Service {
	return &Service{src: src, archiver: archiver, nowFunc: time.Now}
}

// Download fetches the spreadsheet for q and returns its bytes, the
// filename hint and content type. Archiving is best-effort and never fails
// the download.
func (s *Service) Download(ctx context.Context, q models.FailedOrderQuery) ([]byte, string, string, error) {
	body, filename, contentType, err := s.src.Export(ctx, q)
	if err != nil {
		return nil, "", "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", "", fmt.Errorf("read export stream: %w", err)
	}

	if s.archiver != nil {
		key := fmt.Sprintf("exports/%s/%s", s.nowFunc().UTC().Format("2006-01-02"), filename)
		if _, err := s.archiver.Upload(ctx, key, data, contentType); err != nil {
			log.Printf("export: archive upload failed for %s: %v", key, err)
		}
	}
	return data, filename, contentType, nil
}
