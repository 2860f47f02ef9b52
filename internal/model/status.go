package model

import "strings"

// ClassificationKind is the normalized outcome of one status poll.
type ClassificationKind string

const (
	StatusRunning         ClassificationKind = "RUNNING"
	StatusStopped         ClassificationKind = "STOPPED"
	StatusPaused          ClassificationKind = "PAUSED"
	StatusNotStarted      ClassificationKind = "NOT_STARTED"
	StatusUnknown         ClassificationKind = "UNKNOWN"
	StatusTokenInvalid    ClassificationKind = "TOKEN_INVALID"
	StatusFeatureDisabled ClassificationKind = "FEATURE_DISABLED"
	StatusRateLimited     ClassificationKind = "RATE_LIMITED"
)

// DefaultRetryAfterSeconds applies when a 429 carries no usable Retry-After.
const DefaultRetryAfterSeconds = 60

// Classification is the result of one poll. RetryAfterSeconds is set only for
// StatusRateLimited.
type Classification struct {
	Kind              ClassificationKind `json:"kind"`
	RetryAfterSeconds int                `json:"retry_after_seconds,omitempty"`
}

func Running() Classification         { return Classification{Kind: StatusRunning} }
func Stopped() Classification         { return Classification{Kind: StatusStopped} }
func Paused() Classification          { return Classification{Kind: StatusPaused} }
func NotStarted() Classification      { return Classification{Kind: StatusNotStarted} }
func Unknown() Classification         { return Classification{Kind: StatusUnknown} }
func TokenInvalid() Classification    { return Classification{Kind: StatusTokenInvalid} }
func FeatureDisabled() Classification { return Classification{Kind: StatusFeatureDisabled} }

// RateLimited builds a rate-limit classification; non-positive values fall
// back to DefaultRetryAfterSeconds.
func RateLimited(retryAfterSeconds int) Classification {
	if retryAfterSeconds <= 0 {
		retryAfterSeconds = DefaultRetryAfterSeconds
	}
	return Classification{Kind: StatusRateLimited, RetryAfterSeconds: retryAfterSeconds}
}

// ParseStatus maps a status string from a 200 response. Matching is
// case-insensitive; anything unrecognized is Unknown.
func ParseStatus(raw string) Classification {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "RUNNING":
		return Running()
	case "STOPPED":
		return Stopped()
	case "PAUSED":
		return Paused()
	case "NOT_STARTED":
		return NotStarted()
	default:
		return Unknown()
	}
}

// IsAnswer reports whether the authority gave a definite answer, as opposed to
// a transient failure.
func (c Classification) IsAnswer() bool {
	return c.Kind != StatusUnknown
}
