package dedup

import "horse.fit/gather/internal/db"

// ClusterMerge partitions events into duplicate groups and reduces each group
// to one record, returning the reduced list and the number of duplicates
// absorbed. Comparison is chained: once an accumulator absorbs a duplicate,
// later records are compared against the merged result, so a run of three
// near-duplicate reports collapses even when the first and last alone would
// not clear the threshold.
//
// Callers supply events ordered by created_at ascending so the accumulator
// starts from the earliest-known report and merged identity stays stable.
// Output is fully determined by input order and config.
func ClusterMerge(events []db.Event, cfg Config) ([]db.Event, int) {
	merged := make([]db.Event, 0, len(events))
	processed := make([]bool, len(events))
	duplicates := 0

	for i := range events {
		if processed[i] {
			continue
		}
		accumulator := events[i]
		for j := i + 1; j < len(events); j++ {
			if processed[j] {
				continue
			}
			if IsDuplicate(accumulator, events[j], cfg) {
				accumulator = Merge(accumulator, events[j])
				processed[j] = true
				duplicates++
			}
		}
		merged = append(merged, accumulator)
		processed[i] = true
	}

	return merged, duplicates
}
