package campaign

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTimeout marks a fetch or run that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrEmptyResult marks a listing that produced no candidates.
	ErrEmptyResult = errors.New("no campaigns parsed")
	// ErrUnknownSource is returned for sources missing from the lookup table.
	ErrUnknownSource = errors.New("unknown source")
)

// NetworkError describes a failed fetch: transport error, timeout or non-2xx status.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by a deadline.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, ErrTimeout) || errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// Is lets errors.Is(err, ErrTimeout) match timed-out fetches.
func (e *NetworkError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout()
}

// RecordError is a per-record persistence failure; the batch continues.
type RecordError struct {
	CampaignID string
	Err        error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.CampaignID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
