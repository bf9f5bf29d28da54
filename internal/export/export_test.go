package export

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"fulfillment-board/internal/models"
)

type stubSource struct {
	data        string
	filename    string
	contentType string
	err         error
}

func (s *stubSource) Export(context.Context, models.FailedOrderQuery) (io.ReadCloser, string, string, error) {
	if s.err != nil {
		return nil, "", "", s.err
	}
	return io.NopCloser(strings.NewReader(s.data)), s.filename, s.contentType, nil
}

type recordingArchiver struct {
	key         string
	body        []byte
	contentType string
	err         error
	calls       int
}

func (a *recordingArchiver) Upload(_ context.Context, key string, body []byte, contentType string) (string, error) {
	a.calls++
	a.key = key
	a.body = body
	a.contentType = contentType
	return "s3://archive/" + key, a.err
}

func TestDownloadArchivesCopy(t *testing.T) {
	src := &stubSource{data: "sheet", filename: "failed.xlsx", contentType: "application/vnd.ms-excel"}
	arc := &recordingArchiver{}
	svc := New(src, arc)
	svc.nowFunc = func() time.Time {
		return time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	}

	data, filename, contentType, err := svc.Download(context.Background(), models.FailedOrderQuery{})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "sheet" || filename != "failed.xlsx" || contentType != "application/vnd.ms-excel" {
		t.Fatalf("got %q %q %q", data, filename, contentType)
	}
	if arc.calls != 1 {
		t.Fatalf("archiver called %d times", arc.calls)
	}
	if arc.key != "exports/2026-08-31/failed.xlsx" {
		t.Errorf("archive key = %q", arc.key)
	}
	if string(arc.body) != "sheet" || arc.contentType != "application/vnd.ms-excel" {
		t.Errorf("archived %q %q", arc.body, arc.contentType)
	}
}

func TestDownloadSurvivesArchiveFailure(t *testing.T) {
	src := &stubSource{data: "sheet", filename: "failed.xlsx", contentType: "text/csv"}
	arc := &recordingArchiver{err: errors.New("bucket gone")}
	svc := New(src, arc)

	data, _, _, err := svc.Download(context.Background(), models.FailedOrderQuery{})
	if err != nil {
		t.Fatalf("Download failed on archive error: %v", err)
	}
	if string(data) != "sheet" {
		t.Fatalf("data = %q", data)
	}
}

func TestDownloadWithoutArchiver(t *testing.T) {
	src := &stubSource{data: "sheet", filename: "f.xlsx", contentType: "text/csv"}
	svc := New(src, nil)

	data, _, _, err := svc.Download(context.Background(), models.FailedOrderQuery{})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "sheet" {
		t.Fatalf("data = %q", data)
	}
}

func TestDownloadPropagatesSourceError(t *testing.T) {
	src := &stubSource{err: errors.New("upstream 502")}
	arc := &recordingArchiver{}
	svc := New(src, arc)

	if _, _, _, err := svc.Download(context.Background(), models.FailedOrderQuery{}); err == nil {
		t.Fatal("expected source error")
	}
	if arc.calls != 0 {
		t.Fatalf("archiver called %d times on failed download", arc.calls)
	}
}
