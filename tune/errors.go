// Package tune defines the error taxonomy shared by all algo-tune packages.
//
// Every typed failure in the module wraps one of the sentinels below, so
// callers can branch with errors.Is regardless of which component produced
// the error.
package tune

import "errors"

var (
	// ErrInvalidArgument reports a caller mistake: bad sample rate,
	// unrecognized mode string, audio shorter than an operation's minimum
	// duration, or an unknown method name.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingCapability reports that an optional back end is not
	// available in this deployment. It is distinct from generic failure so
	// callers can fall back to another method instead of aborting.
	ErrMissingCapability = errors.New("missing capability")

	// ErrUpstreamAnalysis reports that an external analysis or resynthesis
	// collaborator failed.
	ErrUpstreamAnalysis = errors.New("upstream analysis failure")

	// ErrNoVoicedContent reports that analysis found zero usable pitch
	// frames. Operations that return it still return a valid (unmodified)
	// output buffer; silence or noise-only input is not exceptional.
	ErrNoVoicedContent = errors.New("no voiced content")
)
