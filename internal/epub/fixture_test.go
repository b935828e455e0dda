package epub

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

type zipEntry struct {
	name string
	body string
}

const testContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// writeZip writes entries in order. A leading "mimetype" entry is stored
// uncompressed as EPUB readers expect.
func writeZip(t *testing.T, dir string, entries []zipEntry) string {
	t.Helper()
	p := filepath.Join(dir, "test.epub")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("failed to create test epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, e := range entries {
		method := zip.Deflate
		if e.name == "mimetype" {
			method = zip.Store
		}
		ew, err := w.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		if err != nil {
			t.Fatalf("failed to create %s: %v", e.name, err)
		}
		if _, err := ew.Write([]byte(e.body)); err != nil {
			t.Fatalf("failed to write %s: %v", e.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return p
}

// epubEntries returns a valid archive layout with the given package
// document and any extra entries.
func epubEntries(opf string, extra ...zipEntry) []zipEntry {
	entries := []zipEntry{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", testContainerXML},
		{"OEBPS/content.opf", opf},
	}
	return append(entries, extra...)
}

const minimalOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Minimal</dc:title>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
  </spine>
</package>`

const bookOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Sample Book</dc:title>
    <dc:creator>Jane Doe</dc:creator>
    <dc:subject>Fiction</dc:subject>
    <dc:subject>Test</dc:subject>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="pic" href="images/pic.png" media-type="image/png"/>
    <item id="cover" href="images/cover.jpg" media-type="image/jpeg" properties="cover-image"/>
    <item id="css" href="style.css" media-type="text/css"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

const bookNCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="a" playOrder="1">
      <navLabel><text>A</text></navLabel>
      <content src="ch1.xhtml"/>
      <navPoint id="b" playOrder="2">
        <navLabel><text>B</text></navLabel>
        <content src="ch1.xhtml#b"/>
      </navPoint>
      <navPoint id="c" playOrder="3">
        <navLabel><text>C</text></navLabel>
        <content src="ch1.xhtml#c"/>
      </navPoint>
    </navPoint>
    <navPoint id="d" playOrder="4">
      <navLabel><text>D</text></navLabel>
      <content src="text/ch2.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`

const bookCh1 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter 1</title><link rel="stylesheet" href="style.css"/></head>
<body>
<h1 id="b">Chapter One</h1>
<script>alert(1)</script>
<p onclick="go()">See <a href="text/ch2.xhtml#s1">next</a>.</p>
<img src="images/pic.png" alt="pic"/>
</body>
</html>`

const bookCh2 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter 2</title></head>
<body><h1 id="s1">Chapter   Two</h1><p><img src="../images/pic.png"/></p></body>
</html>`

// bookEntries is a small EPUB 2 book with an NCX, two chapters and images.
func bookEntries() []zipEntry {
	return epubEntries(bookOPF,
		zipEntry{"OEBPS/toc.ncx", bookNCX},
		zipEntry{"OEBPS/ch1.xhtml", bookCh1},
		zipEntry{"OEBPS/text/ch2.xhtml", bookCh2},
		zipEntry{"OEBPS/images/pic.png", "PNGDATA"},
		zipEntry{"OEBPS/images/cover.jpg", "JPEGDATA"},
		zipEntry{"OEBPS/style.css", "body{}"},
	)
}

func openBook(t *testing.T, opts Options) *Document {
	t.Helper()
	p := writeZip(t, t.TempDir(), bookEntries())
	doc, err := Open(p, opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return doc
}
