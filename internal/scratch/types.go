package scratch

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// ProjectID identifies a public project on the Scratch platform.
type ProjectID uint64

// ParseProjectID validates raw as a purely decimal, positive identifier.
func ParseProjectID(raw string) (ProjectID, error) {
	if raw == "" {
		return 0, NewError(KindInvalidInput, "", errors.New("missing id"))
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return 0, NewError(KindInvalidInput, "", errors.New("id must be numeric"))
		}
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, NewError(KindInvalidInput, "", errors.New("id out of range"))
	}
	if n == 0 {
		return 0, NewError(KindInvalidInput, "", errors.New("id must be positive"))
	}
	return ProjectID(n), nil
}

func (id ProjectID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Token is the short-lived capability required to read a project manifest.
type Token string

// AssetKey names one binary asset as "<md5>.<ext>".
type AssetKey string

// FetchRequest captures everything needed for one upstream GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// DecompileRequest describes one decompiler invocation.
type DecompileRequest struct {
	Input     string
	Output    string
	Overwrite bool
	Verify    bool
}

// DecompileJob is one queued decompiler invocation. Result is buffered by the
// submitter and receives exactly one value once the job runs or is skipped.
type DecompileJob struct {
	ID      string
	Ctx     context.Context //nolint:containedctx // carries the submitter's cancellation across the queue
	Request DecompileRequest
	Result  chan<- error
}
