package epub

import "errors"

var (
	ErrMissingTocRegion         = errors.New(`nav document has no <nav epub:type="toc"> region`)
	ErrPlaceholderNotFound      = errors.New("toc placeholder not found in nav document")
	ErrUnresolvedSpineReference = errors.New("spine references unknown text asset")
	ErrDuplicateAssetID         = errors.New("duplicate asset id")
	ErrUnresolvedMediaType      = errors.New("unresolved media type")
	ErrNavDocumentMissing       = errors.New("no text-nav asset found")
	ErrUnresolvedTocTarget      = errors.New("toc target does not match any asset")
	ErrInvalidMetadata          = errors.New("invalid metadata")
)
