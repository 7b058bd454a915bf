package scratch

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

// Failure kinds, one per pipeline stage that can fail.
const (
	KindInvalidInput      Kind = "invalid_input"
	KindTokenUnavailable  Kind = "token_unavailable"
	KindManifestFetch     Kind = "manifest_fetch"
	KindMalformedManifest Kind = "malformed_manifest"
	KindAssetFetch        Kind = "asset_fetch"
	KindArchiveWrite      Kind = "archive_write"
	KindDecompile         Kind = "decompile"
	KindRepackage         Kind = "repackage"
	KindInternal          Kind = "internal"
)

// Error is a classified pipeline failure. Detail carries the payload callers
// echo back: the last token response, the failing asset key, or the
// decompiler's own message.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Detail == "":
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Detail == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind onto the response status the API returns for it.
// Only input, token and decompile failures get dedicated statuses.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput, KindTokenUnavailable:
		return http.StatusNotFound
	case KindDecompile:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}
