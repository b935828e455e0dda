package epub

import (
	"errors"
	"fmt"
)

var (
	// ErrAccess is returned when the archive cannot be opened or read.
	ErrAccess = errors.New("epub: archive access failed")

	// ErrIntegrity is returned when an archive entry fails its checksum.
	// It matches ErrAccess under errors.Is.
	ErrIntegrity = fmt.Errorf("%w: checksum mismatch", ErrAccess)

	ErrNotAnEpub          = errors.New("epub: mimetype is not application/epub+zip")
	ErrMalformedContainer = errors.New("epub: container.xml could not be parsed")
	ErrMissingRootfile    = errors.New("epub: container.xml has no rootfile full-path")
	ErrPackageUnreadable  = errors.New("epub: package document could not be parsed")

	// ErrUnsupportedMediaType is returned when a manifest item is requested
	// through an accessor that does not accept its media type.
	ErrUnsupportedMediaType = errors.New("epub: unsupported media type")

	// ErrNotFound is returned for unknown manifest ids and missing archive entries.
	ErrNotFound = errors.New("epub: not found")

	// ErrNoBodyContent is returned when chapter markup has no <body> element.
	ErrNoBodyContent = errors.New("epub: no body content")

	// ErrInvalidDestination is returned when the extract target is not a directory.
	ErrInvalidDestination = errors.New("epub: invalid extract destination")
)
