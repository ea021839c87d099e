package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newDownloader(t *testing.T) *Downloader {
	t.Helper()
	d, err := New(t.TempDir(), &http.Client{}, zap.NewNop())
	if err != nil {
		t.Fatalf("init downloader: %v", err)
	}
	return d
}

func pdfPayload(n int) []byte {
	b := make([]byte, n)
	copy(b, "%PDF-1.4\n")
	return b
}

func TestDownloadSavesValidPayload(t *testing.T) {
	payload := pdfPayload(4096)
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(payload)
	}))
	defer srv.Close()

	d := newDownloader(t)
	path, size, err := d.Download(context.Background(), srv.URL+"/get.php?id=1", "Dune Herbert", "epub", "https://landing.example.com/")
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if gotReferer != "https://landing.example.com/" {
		t.Errorf("referer = %q, want the landing page", gotReferer)
	}
	if size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", size, len(payload))
	}
	// Content type outranks the search-result hint.
	if filepath.Base(path) != "Dune Herbert.pdf" {
		t.Errorf("saved as %s, want Dune Herbert.pdf", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if len(data) != len(payload) {
		t.Errorf("saved %d bytes, want %d", len(data), len(payload))
	}
	if _, err := os.Stat(filepath.Join(d.dir, "Dune Herbert.part")); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestDownloadRejectsHTMLPayload(t *testing.T) {
	// 200 OK with a large interstitial page. Size alone would pass; the
	// content type must fail it.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>" + strings.Repeat("please wait ", 5000) + "</html>"))
	}))
	defer srv.Close()

	d := newDownloader(t)
	_, _, err := d.Download(context.Background(), srv.URL, "query", "", "")
	if !errors.Is(err, ErrHTMLPayload) {
		t.Fatalf("err = %v, want ErrHTMLPayload", err)
	}
	assertDirEmpty(t, d.dir)
}

func TestDownloadRejectsTinyPayload(t *testing.T) {
	// Correct content type, but a 500-byte stub is not a book.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdfPayload(500))
	}))
	defer srv.Close()

	d := newDownloader(t)
	_, _, err := d.Download(context.Background(), srv.URL, "query", "", "")
	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("err = %v, want ErrTooSmall", err)
	}
	assertDirEmpty(t, d.dir)
}

func TestDownloadNeverOverwrites(t *testing.T) {
	d := newDownloader(t)
	existing := filepath.Join(d.dir, "query.epub")
	if err := os.WriteFile(existing, []byte("saved earlier"), 0644); err != nil {
		t.Fatal(err)
	}

	path, _, err := d.Download(context.Background(), "http://127.0.0.1:0/", "query", "", "")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	if path != existing {
		t.Errorf("reported path = %s, want %s", path, existing)
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "saved earlier" {
		t.Error("existing file was modified")
	}
}

func TestExisting(t *testing.T) {
	d := newDownloader(t)

	if _, ok := d.Existing("query"); ok {
		t.Error("empty dir reported an existing file")
	}

	// An abandoned partial download does not count as saved.
	if err := os.WriteFile(filepath.Join(d.dir, "query.part"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Existing("query"); ok {
		t.Error("partial file reported as existing")
	}

	if err := os.WriteFile(filepath.Join(d.dir, "query.pdf"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	path, ok := d.Existing("query")
	if !ok || filepath.Base(path) != "query.pdf" {
		t.Errorf("Existing = %q, %v", path, ok)
	}

	if _, ok := d.Existing("other query"); ok {
		t.Error("unrelated slug matched")
	}
}

func TestDetectExtension(t *testing.T) {
	withHeaders := func(h map[string]string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		for k, v := range h {
			resp.Header.Set(k, v)
		}
		return resp
	}

	testCases := []struct {
		name     string
		resp     *http.Response
		fileURL  string
		extHint  string
		expected string
	}{
		{
			"DispositionWins",
			withHeaders(map[string]string{
				"Content-Disposition": `attachment; filename="Foundation.epub"`,
				"Content-Type":        "application/pdf",
			}),
			"https://m.example.com/file.mobi", "azw3", "epub",
		},
		{
			"ContentTypeSecond",
			withHeaders(map[string]string{"Content-Type": "application/epub+zip"}),
			"https://m.example.com/file.mobi", "azw3", "epub",
		},
		{
			"URLPathThird",
			withHeaders(nil),
			"https://m.example.com/books/file.MOBI?token=1", "azw3", "mobi",
		},
		{
			"HintFourth",
			withHeaders(nil),
			"https://m.example.com/get.php?id=1", "azw3", "azw3",
		},
		{
			"DefaultLast",
			nil,
			"https://m.example.com/get.php?id=1", "", "pdf",
		},
		{
			"OctetStreamIgnored",
			withHeaders(map[string]string{"Content-Type": "application/octet-stream"}),
			"https://m.example.com/file.djvu", "", "djvu",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectExtension(tc.resp, tc.fileURL, tc.extHint); got != tc.expected {
				t.Errorf("detectExtension = %q, want %q", got, tc.expected)
			}
		})
	}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("rejected payload left %s behind", e.Name())
	}
}
