package types

// DefaultHistoryLimit is the number of snapshots kept in the history window.
const DefaultHistoryLimit = 30

// History is an oldest-first window of past snapshots.
type History []Snapshot

// Append returns a new window holding h followed by s, trimmed to the newest
// limit entries. h is not modified. A limit <= 0 disables trimming.
func (h History) Append(s Snapshot, limit int) History {
	out := make(History, 0, len(h)+1)
	out = append(out, h...)
	out = append(out, s)
	return out.Trim(limit)
}

// Trim returns the newest limit entries of h. h itself is returned when it
// already fits; otherwise the result is a fresh slice.
func (h History) Trim(limit int) History {
	if limit <= 0 || len(h) <= limit {
		return h
	}
	out := make(History, limit)
	copy(out, h[len(h)-limit:])
	return out
}

// Latest returns the newest snapshot in the window.
func (h History) Latest() (Snapshot, bool) {
	if len(h) == 0 {
		return Snapshot{}, false
	}
	return h[len(h)-1], true
}
