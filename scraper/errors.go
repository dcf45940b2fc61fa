package scraper

import (
	"errors"
	"fmt"
)

// Failure labels shared by metrics, stored results and the retry policy.
const (
	labelTimeout     = "timeout"
	labelConnection  = "connection"
	labelForbidden   = "forbidden"
	labelNotFound    = "not_found"
	labelRateLimited = "rate_limited"
	labelServer      = "server_error"
	labelExtraction  = "extraction"
	labelOther       = "other"
	labelUnknown     = "unknown"
)

// ErrTimeout means the request or the whole extraction ran out of time.
type ErrTimeout struct{ Err error }

// ErrConnection means the marketplace or render proxy could not be reached.
type ErrConnection struct{ Err error }

// ErrForbidden is an HTTP 403, usually bot protection.
type ErrForbidden struct{ Err error }

// ErrNotFound is an HTTP 404 for the search page.
type ErrNotFound struct{ Err error }

// ErrRateLimited is an HTTP 429.
type ErrRateLimited struct{ Err error }

// ErrServer is an HTTP 5xx from the marketplace or the render proxy.
type ErrServer struct {
	Status int
	Err    error
}

// ExtractionFailure records why one marketplace produced no result. It is recovered
// into a failed MarketplaceResult and never aborts sibling marketplaces.
type ExtractionFailure struct {
	Marketplace string
	Err         error
}

func (e ErrTimeout) Error() string     { return labelled(labelTimeout, e.Err) }
func (e ErrConnection) Error() string  { return labelled(labelConnection, e.Err) }
func (e ErrForbidden) Error() string   { return labelled(labelForbidden, e.Err) }
func (e ErrNotFound) Error() string    { return labelled(labelNotFound, e.Err) }
func (e ErrRateLimited) Error() string { return labelled(labelRateLimited, e.Err) }

func (e ErrServer) Error() string {
	return labelled(fmt.Sprintf("%s %d", labelServer, e.Status), e.Err)
}

func (e ExtractionFailure) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Marketplace, e.Err)
}

func (e ErrTimeout) Unwrap() error        { return e.Err }
func (e ErrConnection) Unwrap() error     { return e.Err }
func (e ErrForbidden) Unwrap() error      { return e.Err }
func (e ErrNotFound) Unwrap() error       { return e.Err }
func (e ErrRateLimited) Unwrap() error    { return e.Err }
func (e ErrServer) Unwrap() error         { return e.Err }
func (e ExtractionFailure) Unwrap() error { return e.Err }

func labelled(label string, err error) string {
	return fmt.Sprintf("%s: %v", label, err)
}

// errorTypeLabel names the first fetch failure in err's chain. ExtractionFailure is only
// the label when no fetch failure sits beneath it.
func errorTypeLabel(err error) string {
	if err == nil {
		return labelUnknown
	}
	label := labelOther
	for ; err != nil; err = errors.Unwrap(err) {
		switch err.(type) {
		case ErrTimeout:
			return labelTimeout
		case ErrConnection:
			return labelConnection
		case ErrForbidden:
			return labelForbidden
		case ErrNotFound:
			return labelNotFound
		case ErrRateLimited:
			return labelRateLimited
		case ErrServer:
			return labelServer
		case ExtractionFailure:
			label = labelExtraction
		}
	}
	return label
}

// retryable reports whether a fetch error may succeed on another attempt.
func retryable(err error) bool {
	switch errorTypeLabel(err) {
	case labelTimeout, labelConnection, labelRateLimited, labelServer:
		return true
	}
	return false
}
