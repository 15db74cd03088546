package history

import "time"

const DefaultMaxEntries = 5

// Record is one successful generation.
type Record struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	Chapters string `json:"chapters"`
}

// Prepend returns a new slice with rec first, truncated to limit entries.
// The input slice is not modified.
func Prepend(records []Record, rec Record, limit int) []Record {
	if limit <= 0 {
		limit = DefaultMaxEntries
	}
	out := make([]Record, 0, min(len(records)+1, limit))
	out = append(out, rec)
	for _, r := range records {
		if len(out) >= limit {
			break
		}
		out = append(out, r)
	}
	return out
}

// Truncate caps records at limit entries, keeping the newest.
func Truncate(records []Record, limit int) []Record {
	if limit <= 0 {
		limit = DefaultMaxEntries
	}
	if len(records) <= limit {
		return records
	}
	return records[:limit]
}

// NextID derives a record ID from now in milliseconds, bumped past the
// newest existing ID when two generations land in the same millisecond.
func NextID(now time.Time, records []Record) int64 {
	id := now.UnixMilli()
	if len(records) > 0 && records[0].ID >= id {
		id = records[0].ID + 1
	}
	return id
}
