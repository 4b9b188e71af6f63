package polito

import (
	"errors"
)

// Node is any entry of the material/video hierarchy: Material,
// Videostore, Folder (plain or assignment) or File.
type Node interface {
	Name() string
	// RelativePath is the node's path built from sanitized names,
	// rooted at "<year>/<root name>". Parents are only ever walked
	// upward, a node never owns its parent.
	RelativePath() string
}

var (
	// ErrNotFound is returned when the portal answers a download
	// link with 403, which is how it spells "gone".
	ErrNotFound = errors.New("file not found")

	// ErrUnresolved is returned when reading server-confirmed file
	// attributes before the file has been fetched once.
	ErrUnresolved = errors.New("file metadata has not been fetched yet")

	// ErrParse flags markup that doesn't look like what the portal
	// usually serves. Wrapped with detail about the mismatch.
	ErrParse = errors.New("unexpected page markup")

	// ErrAccessDenied is returned when the portal serves its bare
	// "Access denied!" body instead of a listing.
	ErrAccessDenied = errors.New("access denied")
)
