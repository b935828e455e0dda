package epub

import (
	"fmt"
	"strings"
)

// containerPath is the well-known location of container.xml in an EPUB archive.
const containerPath = "META-INF/container.xml"

// mimetypeEPUB is the required content of the mimetype entry.
const mimetypeEPUB = "application/epub+zip"

// LocatePackage returns the full-path of the first rootfile listed in
// container.xml. The value is returned as written.
func LocatePackage(containerXML []byte) (string, error) {
	root, err := parseXML(containerXML)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}

	rootfiles := root.SelectElement("rootfiles")
	if rootfiles == nil {
		return "", fmt.Errorf("%w: missing rootfiles", ErrMissingRootfile)
	}
	rootfile := rootfiles.SelectElement("rootfile")
	if rootfile == nil {
		return "", fmt.Errorf("%w: missing rootfile", ErrMissingRootfile)
	}
	fullPath := rootfile.SelectAttrValue("full-path", "")
	if fullPath == "" {
		return "", fmt.Errorf("%w: empty full-path", ErrMissingRootfile)
	}
	return fullPath, nil
}

// checkMimetype verifies the mimetype entry content, ignoring case and
// surrounding whitespace.
func checkMimetype(data []byte) error {
	got := strings.TrimSpace(string(data))
	if !strings.EqualFold(got, mimetypeEPUB) {
		return fmt.Errorf("%w: got %q", ErrNotAnEpub, got)
	}
	return nil
}
