package dedup

import (
	"time"

	"horse.fit/gather/internal/db"
)

const alternativeDescriptionLabel = "Alternative description:"

// Merge combines two duplicate records into one. The record with the later
// fetched_at is the base and its fields win by default; the other record is
// the donor and contributes only through the field rules below. A missing
// fetched_at counts as the oldest possible instant, and on a tie the first
// argument wins, so callers pass the already-stored record first.
func Merge(existing, incoming db.Event) db.Event {
	base, donor := existing, incoming
	if fetchedAtOrZero(incoming).After(fetchedAtOrZero(existing)) {
		base, donor = incoming, existing
	}

	merged := base

	// Identity anchors to the earliest known id/created_at pair so repeated
	// reconciliation runs keep the same row identity. A stored id is never
	// discarded in favor of an unsaved record's empty one.
	anchor, other := identityAnchor(base, donor)
	merged.EventID = anchor.EventID
	merged.EventUUID = anchor.EventUUID
	if merged.EventID == 0 && other.EventID > 0 {
		merged.EventID = other.EventID
		merged.EventUUID = other.EventUUID
	}

	if desc := donor.Description; desc != "" && desc != base.Description {
		if base.Description == "" {
			merged.Description = desc
		} else {
			merged.Description = base.Description + "\n\n" + alternativeDescriptionLabel + "\n" + desc
		}
	}

	// Start/end behave like an interval that only widens toward the envelope
	// of everything observed.
	if donor.StartTime.Before(base.StartTime) {
		merged.StartTime = donor.StartTime
	}
	merged.EndTime = laterTime(base.EndTime, donor.EndTime)
	merged.CreatedAt = earlierTime(base.CreatedAt, donor.CreatedAt)
	merged.RegistrationOpens = earlierTime(base.RegistrationOpens, donor.RegistrationOpens)

	if base.SourceName != donor.SourceName {
		if base.SourceName == "" {
			merged.SourceName = donor.SourceName
		} else {
			merged.SourceName = base.SourceName
		}
	}

	if merged.Attachment == nil {
		merged.Attachment = donor.Attachment
	}
	merged.Author = joinAuthors(base.Author, donor.Author)

	return merged
}

// identityAnchor picks the record whose id/created_at pair the merge result
// inherits: the earlier created_at wins, a known created_at beats an unknown
// one, and a tie keeps the base.
func identityAnchor(base, donor db.Event) (anchor, other db.Event) {
	switch {
	case base.CreatedAt == nil && donor.CreatedAt == nil:
		return base, donor
	case base.CreatedAt == nil:
		return donor, base
	case donor.CreatedAt == nil:
		return base, donor
	case donor.CreatedAt.Before(*base.CreatedAt):
		return donor, base
	default:
		return base, donor
	}
}

func fetchedAtOrZero(e db.Event) time.Time {
	if e.FetchedAt == nil {
		return time.Time{}
	}
	return *e.FetchedAt
}

func earlierTime(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Before(*a) {
		return b
	}
	return a
}

func laterTime(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.After(*a) {
		return b
	}
	return a
}

func joinAuthors(base, donor *string) *string {
	if base == nil {
		return donor
	}
	if donor == nil || *donor == *base {
		return base
	}
	joined := *base + ", " + *donor
	return &joined
}
