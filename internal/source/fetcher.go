package source

import "context"

// Fetcher retrieves a fresh payload from the authoritative backing data.
// Implementations are stateless and never retry; the caller applies the
// timeout through ctx and owns retry policy. Failures are *UpstreamError.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// UpstreamError reports a failed fetch: timeout, malformed data, or an
// unreachable source. A previous snapshot, if any, should be served instead.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return "upstream: " + e.Op + ": " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }
