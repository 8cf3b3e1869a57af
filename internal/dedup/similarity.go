package dedup

import (
	"strings"
	"time"

	"horse.fit/gather/internal/db"
)

// normalizeText applies the configured string normalization: case folding and
// whitespace collapsing. Empty or all-whitespace input normalizes to "".
func normalizeText(text string, cfg Config) string {
	if text == "" {
		return ""
	}
	if cfg.IgnoreCase {
		text = strings.ToLower(text)
	}
	if cfg.NormalizeWhitespace {
		text = strings.Join(strings.Fields(text), " ")
	}
	return text
}

// TitleSimilarity computes the normalized similarity ratio between two titles
// in [0,1] using Ratcliff/Obershelp matching: 2*M/T where M is the total
// length of matching blocks and T the combined length. Two empty titles are
// identical by definition (ratio 1).
func TitleSimilarity(a, b string, cfg Config) float64 {
	ra := []rune(normalizeText(a, cfg))
	rb := []rune(normalizeText(b, cfg))

	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}

	matched := matchingTotal(ra, rb)
	return 2.0 * float64(matched) / float64(total)
}

// matchingTotal sums the lengths of the matching blocks found by the greedy
// longest-common-substring recursion: find the longest common block, then
// recurse into the pieces to its left and right.
func matchingTotal(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ai, bi, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}

	total := size
	total += matchingTotal(a[:ai], b[:bi])
	total += matchingTotal(a[ai+size:], b[bi+size:])
	return total
}

// longestCommonBlock finds the longest run of runes common to a and b,
// breaking ties toward the earliest position in a, then in b, so that the
// overall similarity is deterministic.
func longestCommonBlock(a, b []rune) (bestA, bestB, bestSize int) {
	// lengths[j] holds the length of the common suffix ending at a[i-1], b[j-1]
	// for the previous row of the scan.
	lengths := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		prevDiag := 0
		for j := 1; j <= len(b); j++ {
			prev := lengths[j]
			if a[i-1] == b[j-1] {
				length := prevDiag + 1
				lengths[j] = length
				if length > bestSize {
					bestSize = length
					bestA = i - length
					bestB = j - length
				}
			} else {
				lengths[j] = 0
			}
			prevDiag = prev
		}
	}
	return bestA, bestB, bestSize
}

// IsDuplicate reports whether two event records describe the same real-world
// event under the given config.
func IsDuplicate(a, b db.Event, cfg Config) bool {
	// Cheap reject before the quadratic string comparison.
	if cfg.RequireSameSource {
		if a.SourceName == "" || b.SourceName == "" || a.SourceName != b.SourceName {
			return false
		}
	}

	if TitleSimilarity(a.Title, b.Title, cfg) < cfg.TitleSimilarityThreshold {
		return false
	}

	if cfg.RequireExactTime {
		if !a.StartTime.Equal(b.StartTime) {
			return false
		}
		if !equalOptionalTime(a.EndTime, b.EndTime) {
			return false
		}
	} else {
		gap := a.StartTime.Sub(b.StartTime)
		if gap < 0 {
			gap = -gap
		}
		if gap > cfg.TimeWindow {
			return false
		}
	}

	if cfg.RequireSameLocation {
		if normalizeText(derefString(a.Location), cfg) != normalizeText(derefString(b.Location), cfg) {
			return false
		}
	}

	return true
}

func equalOptionalTime(a, b *time.Time) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
