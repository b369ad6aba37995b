package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"go.uber.org/zap"
)

type fakeDownloader struct {
	downloadFn func(ctx context.Context, cfg domain.ProviderConfig, ref domain.FileRef) ([]byte, error)
}

func (f *fakeDownloader) Download(ctx context.Context, cfg domain.ProviderConfig, ref domain.FileRef) ([]byte, error) {
	return f.downloadFn(ctx, cfg, ref)
}

type fakeFailureRecorder struct {
	recorded []domain.FailedAttachment
}

func (f *fakeFailureRecorder) CreateFailedAttachment(_ context.Context, failure domain.FailedAttachment) error {
	f.recorded = append(f.recorded, failure)
	return nil
}

func testTemplate() domain.Template {
	return domain.Template{
		ID:   "tpl-1",
		Name: "welcome",
		Attachments: []domain.FileRef{
			{FileName: "a.pdf", FileURL: "https://files.example.com/a.pdf"},
			{FileName: "b.pdf", FileURL: "https://files.example.com/b.pdf"},
		},
	}
}

func TestPrepareDownloadsAll(t *testing.T) {
	t.Parallel()

	downloader := &fakeDownloader{downloadFn: func(_ context.Context, _ domain.ProviderConfig, ref domain.FileRef) ([]byte, error) {
		return []byte("data-" + ref.FileName), nil
	}}
	preparer, err := NewPreparer(downloader, nil, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPreparer() error = %v", err)
	}

	attachments, err := preparer.Prepare(context.Background(), domain.ProviderConfig{ID: "cfg-1"}, testTemplate())
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(attachments))
	}
	if attachments[0].Name != "a.pdf" || string(attachments[0].Data) != "data-a.pdf" {
		t.Errorf("unexpected first attachment %+v", attachments[0])
	}
}

func TestPrepareStrictAbortsAndRecords(t *testing.T) {
	t.Parallel()

	downloader := &fakeDownloader{downloadFn: func(_ context.Context, _ domain.ProviderConfig, ref domain.FileRef) ([]byte, error) {
		if ref.FileName == "b.pdf" {
			return nil, fmt.Errorf("storage unavailable")
		}
		return []byte("ok"), nil
	}}
	recorder := &fakeFailureRecorder{}
	preparer, _ := NewPreparer(downloader, recorder, false, zap.NewNop())

	_, err := preparer.Prepare(context.Background(), domain.ProviderConfig{ID: "cfg-1"}, testTemplate())
	if !errors.Is(err, domain.ErrAttachmentFailure) {
		t.Fatalf("Prepare() error = %v, want ErrAttachmentFailure", err)
	}
	if len(recorder.recorded) != 1 {
		t.Fatalf("recorded failures = %d, want 1", len(recorder.recorded))
	}
	if recorder.recorded[0].TemplateID != "tpl-1" || recorder.recorded[0].ConfigID != "cfg-1" {
		t.Errorf("failure record = %+v", recorder.recorded[0])
	}
}

func TestPreparePartialSkipsFailed(t *testing.T) {
	t.Parallel()

	downloader := &fakeDownloader{downloadFn: func(_ context.Context, _ domain.ProviderConfig, ref domain.FileRef) ([]byte, error) {
		if ref.FileName == "a.pdf" {
			return nil, fmt.Errorf("gone")
		}
		return []byte("ok"), nil
	}}
	recorder := &fakeFailureRecorder{}
	preparer, _ := NewPreparer(downloader, recorder, true, zap.NewNop())

	attachments, err := preparer.Prepare(context.Background(), domain.ProviderConfig{ID: "cfg-1"}, testTemplate())
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(attachments) != 1 || attachments[0].Name != "b.pdf" {
		t.Fatalf("attachments = %+v, want only b.pdf", attachments)
	}
	if len(recorder.recorded) != 0 {
		t.Errorf("partial policy must not record failures, got %d", len(recorder.recorded))
	}
}

func TestPrepareNoAttachments(t *testing.T) {
	t.Parallel()

	preparer, _ := NewPreparer(&fakeDownloader{}, nil, false, zap.NewNop())
	attachments, err := preparer.Prepare(context.Background(), domain.ProviderConfig{}, domain.Template{ID: "tpl-2"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if attachments != nil {
		t.Errorf("attachments = %v, want nil", attachments)
	}
}

func TestHTTPDownloaderDirectURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/direct/a.pdf" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte("pdf-bytes"))
	}))
	defer srv.Close()

	d, err := NewHTTPDownloader("", zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPDownloader() error = %v", err)
	}
	t.Cleanup(d.Close)
	data, err := d.Download(context.Background(), domain.ProviderConfig{ID: "cfg-1"}, domain.FileRef{FileName: "a.pdf", FileURL: srv.URL + "/direct/a.pdf"})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(data) != "pdf-bytes" {
		t.Errorf("data = %s", data)
	}
}

func TestHTTPDownloaderStorageID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/fs-42" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte("stored"))
	}))
	defer srv.Close()

	d, err := NewHTTPDownloader(srv.URL, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPDownloader() error = %v", err)
	}
	t.Cleanup(d.Close)
	data, err := d.Download(context.Background(), domain.ProviderConfig{ID: "cfg-1"}, domain.FileRef{FileName: "b.pdf", FileStorageID: "fs-42"})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(data) != "stored" {
		t.Errorf("data = %s", data)
	}
}

func TestHTTPDownloaderErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d, err := NewHTTPDownloader("", zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPDownloader() error = %v", err)
	}
	t.Cleanup(d.Close)
	if _, err := d.Download(context.Background(), domain.ProviderConfig{ID: "cfg-1"}, domain.FileRef{FileName: "x", FileURL: srv.URL + "/x"}); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestHTTPDownloaderConfigBaseOverride(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/fs-7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte("from-override"))
	}))
	defer srv.Close()

	d, err := NewHTTPDownloader("http://unreachable.invalid", zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPDownloader() error = %v", err)
	}
	t.Cleanup(d.Close)

	cfg := domain.ProviderConfig{
		ID:         "cfg-2",
		Properties: map[string]any{"fileStorageBaseUrl": srv.URL},
	}
	data, err := d.Download(context.Background(), cfg, domain.FileRef{FileName: "c.pdf", FileStorageID: "fs-7"})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(data) != "from-override" {
		t.Errorf("data = %s", data)
	}
}
