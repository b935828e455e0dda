package converter

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yuanying/epubweb/internal/epub"
	"github.com/yuanying/epubweb/internal/storage"
)

func createPublishTestEPUB(t *testing.T, dir string, wideImage []byte) string {
	t.Helper()
	epubPath := filepath.Join(dir, "test.epub")
	f, err := os.Create(epubPath)
	if err != nil {
		t.Fatalf("failed to create test epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	defer w.Close()

	files := []struct {
		name string
		body []byte
	}{
		{"mimetype", []byte("application/epub+zip")},
		{"META-INF/container.xml", []byte(`<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`)},
		{"OEBPS/content.opf", []byte(`<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Publish</dc:title></metadata>
  <manifest>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="wide" href="images/wide.jpg" media-type="image/jpeg"/>
    <item id="css" href="style.css" media-type="text/css"/>
    <item id="ghost" href="ghost.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="ch1"/></spine>
</package>`)},
		{"OEBPS/text/ch1.xhtml", []byte(`<html><head><link href="../style.css" rel="stylesheet"/></head>
<body><p><img src="../images/wide.jpg"/></p></body></html>`)},
		{"OEBPS/images/wide.jpg", wideImage},
		{"OEBPS/style.css", []byte("p{}")},
	}
	for _, file := range files {
		method := zip.Deflate
		if file.name == "mimetype" {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: file.name, Method: method})
		if err != nil {
			t.Fatalf("failed to create %s: %v", file.name, err)
		}
		fw.Write(file.body)
	}
	return epubPath
}

func openPublishTestBook(t *testing.T) *epub.Document {
	t.Helper()
	img := mustEncodeJPEG(t, makePatternNRGBA(1000, 500), 95)
	doc, err := epub.Open(createPublishTestEPUB(t, t.TempDir(), img), epub.Options{
		ImageBaseURL: "https://cdn.example.com",
		LinkBaseURL:  "https://cdn.example.com",
	})
	if err != nil {
		t.Fatalf("epub.Open() error = %v", err)
	}
	return doc
}

func TestPipeline_Publish(t *testing.T) {
	doc := openPublishTestBook(t)
	dest := t.TempDir()
	adapter, err := storage.NewLocalAdapter(dest)
	if err != nil {
		t.Fatal(err)
	}

	report, err := NewPipeline(doc, adapter, PublishOptions{
		Images: NewImageOptimizer(ImageOptions{MaxWidth: 400}),
	}).Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if report.Written != 3 || report.Optimized != 1 {
		t.Errorf("report = %+v, want 3 written and 1 optimized", report)
	}
	if len(report.Missing) != 1 || report.Missing[0] != "OEBPS/ghost.xhtml" {
		t.Errorf("Missing = %v", report.Missing)
	}

	page, err := os.ReadFile(filepath.Join(dest, "OEBPS", "text", "ch1.xhtml"))
	if err != nil {
		t.Fatalf("chapter not published: %v", err)
	}
	for _, want := range []string{
		`src="https://cdn.example.com/OEBPS/images/wide.jpg"`,
		`href="https://cdn.example.com/OEBPS/style.css"`,
	} {
		if !strings.Contains(string(page), want) {
			t.Errorf("published chapter missing %q:\n%s", want, page)
		}
	}

	img, err := os.Open(filepath.Join(dest, "OEBPS", "images", "wide.jpg"))
	if err != nil {
		t.Fatalf("image not published: %v", err)
	}
	defer img.Close()
	out, err := NewImageOptimizer(ImageOptions{MaxWidth: 5000}).Optimize("", "image/jpeg", mustReadAll(t, img))
	if err != nil || out.Width != 400 {
		t.Errorf("published image width = %d, %v, want 400", out.Width, err)
	}
}

func TestPipeline_Publish_WithoutOptimizer(t *testing.T) {
	doc := openPublishTestBook(t)
	adapter, _ := storage.NewLocalAdapter(t.TempDir())

	report, err := NewPipeline(doc, adapter, PublishOptions{}).Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if report.Optimized != 0 {
		t.Errorf("Optimized = %d, want 0", report.Optimized)
	}
}

func TestPipeline_Publish_SkipExisting(t *testing.T) {
	doc := openPublishTestBook(t)
	dest := t.TempDir()
	adapter, _ := storage.NewLocalAdapter(dest)

	cssPath := filepath.Join(dest, "OEBPS", "style.css")
	if err := os.MkdirAll(filepath.Dir(cssPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cssPath, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := NewPipeline(doc, adapter, PublishOptions{SkipExisting: true}).Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if report.Skipped != 1 || report.Written != 2 {
		t.Errorf("report = %+v, want 1 skipped and 2 written", report)
	}
	if data, _ := os.ReadFile(cssPath); string(data) != "keep" {
		t.Errorf("existing object overwritten: %q", data)
	}
}

type failingAdapter struct{ storage.Adapter }

func (failingAdapter) Put(context.Context, string, io.Reader) error {
	return errors.New("disk full")
}

func TestPipeline_Publish_StorageError(t *testing.T) {
	doc := openPublishTestBook(t)

	_, err := NewPipeline(doc, failingAdapter{}, PublishOptions{}).Publish(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Publish() error = %v, want storage failure", err)
	}
}

func TestPipeline_Publish_Canceled(t *testing.T) {
	doc := openPublishTestBook(t)
	adapter, _ := storage.NewLocalAdapter(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := NewPipeline(doc, adapter, PublishOptions{}).Publish(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Publish() error = %v, want context.Canceled", err)
	}
	if report.Written != 0 {
		t.Errorf("Written = %d, want 0", report.Written)
	}
}

func TestIsRasterImage(t *testing.T) {
	tests := map[string]bool{
		"image/jpeg":            true,
		"image/png":             true,
		"image/svg+xml":         false,
		"application/xhtml+xml": false,
	}
	for mediaType, want := range tests {
		if got := isRasterImage(mediaType); got != want {
			t.Errorf("isRasterImage(%q) = %v, want %v", mediaType, got, want)
		}
	}
}

func mustReadAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
