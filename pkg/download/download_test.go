package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDownload(t *testing.T) {
	content := []byte("jar bytes")
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.UserAgent()
		w.Write(content)
	}))
	defer server.Close()

	d := New(server.Client(), "installer-test")
	dest := filepath.Join(t.TempDir(), "mod.jar")

	n, err := d.Download(context.Background(), server.URL+"/mod.jar", dest)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("wrote %d bytes, want %d", n, len(content))
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(content) {
		t.Errorf("content = %q", data)
	}
	if gotAgent != "installer-test" {
		t.Errorf("user agent = %q", gotAgent)
	}
}

func TestDownload_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	d := New(server.Client(), "")
	dest := filepath.Join(t.TempDir(), "mod.jar")

	if _, err := d.Download(context.Background(), server.URL+"/missing.jar", dest); err == nil {
		t.Fatal("expected an error for 404")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("no file should be created on a bad status")
	}
}
