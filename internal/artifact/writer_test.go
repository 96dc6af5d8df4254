package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/KingRainbow44/modpack-installer/internal/model"
	"github.com/KingRainbow44/modpack-installer/pkg/files"
	"go.uber.org/zap"
)

// fakeDownloader writes a fixed payload and counts calls
type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeDownloader) Download(_ context.Context, url, path string) (int64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.err != nil {
		return 0, f.err
	}
	payload := []byte("payload:" + url)
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return 0, err
	}
	return int64(len(payload)), nil
}

func newTarget(t *testing.T) model.DownloadTarget {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ModsDir), 0755); err != nil {
		t.Fatal(err)
	}
	return model.DownloadTarget{Dir: dir, PlatformVersion: "1.20.1"}
}

func release(files ...model.File) *model.ReleaseInfo {
	id := "AANobbMI"
	return &model.ReleaseInfo{ProjectID: &id, Files: files}
}

func TestWrite_EmptyReleaseIsSkipped(t *testing.T) {
	dl := &fakeDownloader{}
	w := NewWriter(files.OS{}, dl, zap.NewNop())

	res, err := w.Write(context.Background(), newTarget(t), model.EmptyRelease(), &model.PackageInfo{ID: "P1", Title: "Nothing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Skipped {
		t.Errorf("outcome = %q, want skipped", res.Outcome)
	}
	if len(dl.calls) != 0 {
		t.Errorf("expected no network calls, got %v", dl.calls)
	}
}

func TestWrite_DownloadsFirstFileOnly(t *testing.T) {
	dl := &fakeDownloader{}
	w := NewWriter(files.OS{}, dl, zap.NewNop())
	target := newTarget(t)

	res, err := w.Write(context.Background(), target, release(
		model.File{URL: "https://cdn/sodium.jar", Filename: "sodium-1.20.1.jar"},
		model.File{URL: "https://cdn/sodium-sources.jar", Filename: "sodium-sources.jar"},
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Downloaded {
		t.Errorf("outcome = %q", res.Outcome)
	}
	want := filepath.Join(target.Dir, "mods", "sodium-1.20.1.jar")
	if res.Path != want {
		t.Errorf("path = %q, want %q", res.Path, want)
	}
	if len(dl.calls) != 1 || dl.calls[0] != "https://cdn/sodium.jar" {
		t.Errorf("calls = %v", dl.calls)
	}
	if _, err := os.Stat(filepath.Join(target.Dir, "mods", "sodium-sources.jar")); !os.IsNotExist(err) {
		t.Error("second file must not be downloaded")
	}
}

func TestWrite_Idempotent(t *testing.T) {
	dl := &fakeDownloader{}
	w := NewWriter(files.OS{}, dl, zap.NewNop())
	target := newTarget(t)
	r := release(model.File{URL: "https://cdn/lithium.jar", Filename: "lithium.jar"})

	first, err := w.Write(context.Background(), target, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := w.Write(context.Background(), target, r, nil)
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	if first.Outcome != Downloaded || second.Outcome != AlreadyPresent {
		t.Errorf("outcomes = %q, %q", first.Outcome, second.Outcome)
	}
	if len(dl.calls) != 1 {
		t.Errorf("expected one network call, got %d", len(dl.calls))
	}
	if first.Path != second.Path {
		t.Errorf("paths differ: %q vs %q", first.Path, second.Path)
	}
}

func TestWrite_PercentDecodesFilename(t *testing.T) {
	dl := &fakeDownloader{}
	w := NewWriter(files.OS{}, dl, zap.NewNop())
	target := newTarget(t)

	res, err := w.Write(context.Background(), target, release(
		model.File{URL: "https://cdn/x", Filename: "Mod%20Menu%2B-1.0.jar"},
	), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Filename != "Mod Menu+-1.0.jar" {
		t.Errorf("filename = %q", res.Filename)
	}
	if _, err := os.Stat(filepath.Join(target.Dir, "mods", "Mod Menu+-1.0.jar")); err != nil {
		t.Errorf("decoded file missing: %v", err)
	}
}

func TestWrite_InvalidEscapeKeepsRawName(t *testing.T) {
	name, err := decodeFilename("100%-fun.jar")
	if err != nil {
		t.Fatal(err)
	}
	if name != "100%-fun.jar" {
		t.Errorf("name = %q", name)
	}
}

func TestWrite_RejectsTraversal(t *testing.T) {
	dl := &fakeDownloader{}
	w := NewWriter(files.OS{}, dl, zap.NewNop())

	for _, raw := range []string{"..%2Fevil.jar", "../evil.jar", "..", "a\\b.jar"} {
		_, err := w.Write(context.Background(), newTarget(t), release(model.File{URL: "https://cdn/x", Filename: raw}), nil)
		if err == nil {
			t.Errorf("filename %q should be rejected", raw)
		}
	}
	if len(dl.calls) != 0 {
		t.Errorf("no download expected, got %v", dl.calls)
	}
}

func TestWrite_DownloadErrorPropagates(t *testing.T) {
	dl := &fakeDownloader{err: errors.New("connection reset")}
	w := NewWriter(files.OS{}, dl, zap.NewNop())

	_, err := w.Write(context.Background(), newTarget(t), release(model.File{URL: "https://cdn/x", Filename: "x.jar"}), nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, dl.err) {
		t.Errorf("error should wrap the download failure: %v", err)
	}
}
