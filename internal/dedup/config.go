package dedup

import "time"

// Config carries the tunables for duplicate detection. Zero value is not
// useful; start from DefaultConfig.
type Config struct {
	// TitleSimilarityThreshold is the minimum normalized title similarity in
	// [0,1] required before two events can be considered duplicates.
	TitleSimilarityThreshold float64

	// TimeWindow is the maximum allowed gap between start times when exact
	// time matching is not required. The boundary is inclusive.
	TimeWindow time.Duration

	// RequireSameLocation demands normalized location equality. Two unset
	// locations compare equal.
	RequireSameLocation bool

	// RequireExactTime demands identical start and end times instead of the
	// time window check.
	RequireExactTime bool

	// IgnoreCase case-folds titles and locations before comparison.
	IgnoreCase bool

	// NormalizeWhitespace collapses whitespace runs before comparison.
	NormalizeWhitespace bool

	// RequireSameSource rejects pairs from different sources outright. This
	// prevents collapsing distinct concurrent events that merely share a
	// title pattern across feeds.
	RequireSameSource bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		TitleSimilarityThreshold: 0.85,
		TimeWindow:               120 * time.Minute,
		RequireSameLocation:      false,
		RequireExactTime:         false,
		IgnoreCase:               true,
		NormalizeWhitespace:      true,
		RequireSameSource:        true,
	}
}
