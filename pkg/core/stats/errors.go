package stats

import "errors"

var (
	// ErrInvalidRange is returned when from is not strictly before to.
	ErrInvalidRange = errors.New("invalid range: from must be before to")
	// ErrUnknownStatistic is returned when no provider is registered for a
	// resource type and statistic kind.
	ErrUnknownStatistic = errors.New("unknown statistic")
	// ErrUnsupportedResolution is returned when a provider does not offer the
	// requested resolution.
	ErrUnsupportedResolution = errors.New("unsupported resolution")
	ErrInvalidResolution     = errors.New("invalid resolution")
)
