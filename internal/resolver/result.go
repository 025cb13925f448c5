package resolver

import "errors"

// ErrNotFound is returned (possibly wrapped) by an Origin that has no
// record of the slug.
var ErrNotFound = errors.New("slug not found")

// MaxSlugLength is the longest slug accepted.
const MaxSlugLength = 50

type Status int

const (
	NotFound Status = iota
	Found
	OriginUnavailable
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case OriginUnavailable:
		return "origin_unavailable"
	default:
		return "unknown"
	}
}

// Result is the outcome of a resolution. Destination is set only when
// Status is Found; Err carries the origin failure behind OriginUnavailable.
type Result struct {
	Status      Status
	Destination string
	Cached      bool
	Err         error
}

// ValidSlug reports whether slug is syntactically acceptable.
func ValidSlug(slug string) bool {
	return len(slug) > 0 && len(slug) <= MaxSlugLength
}
