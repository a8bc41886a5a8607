package analyzer

import (
	"errors"
	"strings"
)

// ErrorClass is the closed set of failure classes the retry policy consults.
// Providers classify their own errors at the call boundary; anything
// unclassified is treated as permanent.
type ErrorClass int

const (
	ClassPermanent ErrorClass = iota
	ClassRateLimited
	ClassTransient
)

// ProviderError carries a provider failure together with its class.
type ProviderError struct {
	Class ErrorClass
	Err   error
}

func (e *ProviderError) Error() string { return e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify returns the class of a provider error. Errors without an explicit
// classification fall back to inspecting the error text for rate-limit
// markers, since transport-level failures carry no status.
func Classify(err error) ErrorClass {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Class
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "ResourceExhausted") {
		return ClassRateLimited
	}
	return ClassPermanent
}
