package epub

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// maxEntrySize bounds the decompressed size of a single entry read into memory.
const maxEntrySize int64 = 256 * 1024 * 1024

// archive is a short-lived handle on the EPUB zip container.
type archive struct {
	zr    *zip.ReadCloser
	files map[string]*zip.File
}

// openArchive opens the zip file at p and indexes its entries by normalized name.
func openArchive(p string) (*archive, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrAccess, p, err)
	}

	a := &archive{
		zr:    zr,
		files: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		a.files[normalizeEntryName(f.Name)] = f
	}
	return a, nil
}

// Close releases the underlying file handle.
func (a *archive) Close() error {
	return a.zr.Close()
}

// ReadEntry reads the full contents of an entry.
func (a *archive) ReadEntry(name string) ([]byte, error) {
	f, ok := a.files[normalizeEntryName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return readZipFile(f)
}

// ExtractAll writes every entry under destDir.
func (a *archive) ExtractAll(destDir string) error {
	for _, f := range a.zr.File {
		if err := extractFile(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

// ExtractSelected writes the named entries under destDir.
// Names absent from the archive are reported as ErrNotFound.
func (a *archive) ExtractSelected(destDir string, names []string) error {
	for _, name := range names {
		f, ok := a.files[normalizeEntryName(name)]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err := extractFile(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > uint64(maxEntrySize) {
		return nil, fmt.Errorf("%w: entry %s too large: %d bytes", ErrAccess, f.Name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open entry %s: %v", ErrAccess, f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		if errors.Is(err, zip.ErrChecksum) {
			return nil, fmt.Errorf("%w: %s", ErrIntegrity, f.Name)
		}
		return nil, fmt.Errorf("%w: read entry %s: %v", ErrAccess, f.Name, err)
	}
	if int64(len(data)) > maxEntrySize {
		return nil, fmt.Errorf("%w: entry %s exceeds %d bytes", ErrAccess, f.Name, maxEntrySize)
	}
	return data, nil
}

func extractFile(f *zip.File, destDir string) error {
	name := normalizeEntryName(f.Name)
	if !isSafePath(name) {
		return fmt.Errorf("%w: unsafe entry path %s", ErrAccess, f.Name)
	}
	out := filepath.Join(destDir, filepath.FromSlash(name))

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return fmt.Errorf("extract dir %s: %w", name, err)
		}
		return nil
	}

	// some archives do not list directories before their files
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", name, err)
	}

	data, err := readZipFile(f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("extract file %s: %w", name, err)
	}
	return nil
}

// normalizeEntryName removes a leading "./" or "/" from an entry name.
func normalizeEntryName(name string) string {
	name = strings.TrimPrefix(name, "./")
	return strings.TrimPrefix(name, "/")
}

// isSafePath reports whether p stays inside the extraction root.
func isSafePath(p string) bool {
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}
