package knowledge

import "errors"

// Knowledge errors.
var (
	// ErrIndexUnavailable indicates the index has no backing store.
	ErrIndexUnavailable = errors.New("knowledge: index unavailable")

	// ErrSourceNotFound indicates a source cannot be resolved to a file.
	ErrSourceNotFound = errors.New("knowledge: source not found")

	// ErrOutsideRoot rejects sources that resolve outside the docs directory.
	ErrOutsideRoot = errors.New("knowledge: source outside documents directory")

	// ErrUnsupportedFile indicates a file type the ingester does not read.
	ErrUnsupportedFile = errors.New("knowledge: unsupported file type")
)
