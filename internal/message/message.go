package message

import (
	"sort"
	"time"
)

// Message is a cached notification message, newest-first in the cache.
// The JSON layout is the persisted cache format.
type Message struct {
	ID       int64  `json:"id"`
	AppID    int64  `json:"app_id"`
	Title    string `json:"title"`
	Body     string `json:"message"`
	Priority int64  `json:"priority"`
	AppName  string `json:"app"`
	AppIcon  string `json:"app_icon,omitempty"`
	Date     string `json:"date"`
}

// Equal reports whether two entries carry identical cache-relevant content.
func (m Message) Equal(other Message) bool {
	return m.ID == other.ID &&
		m.Date == other.Date &&
		m.Priority == other.Priority &&
		m.Title == other.Title &&
		m.Body == other.Body
}

// WireMessage is a raw message as sent by the server, on both the stream
// and the paginated fetch endpoint.
type WireMessage struct {
	ID       int64  `json:"id"`
	AppID    int64  `json:"appid"`
	Body     string `json:"message"`
	Title    string `json:"title"`
	Priority int64  `json:"priority"`
	Date     string `json:"date"`
}

// WireMessageList is the paginated fetch response body.
type WireMessageList struct {
	Messages []WireMessage `json:"messages"`
}

// WireApplication is a producer application as returned by the server.
type WireApplication struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Less is the global cache ordering: descending timestamp, entries with an
// unparsable date after parsable ones, ties broken by descending id.
func Less(a, b Message) bool {
	ta, okA := parseDate(a.Date)
	tb, okB := parseDate(b.Date)
	switch {
	case okA && okB && ta != tb:
		return ta > tb
	case okA && !okB:
		return true
	case !okA && okB:
		return false
	default:
		return a.ID > b.ID
	}
}

func parseDate(raw string) (int64, bool) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, false
	}
	return t.Unix(), true
}

// Normalize sorts by the global ordering rule, removes duplicate ids
// keeping the first occurrence, and truncates to limit.
func Normalize(msgs []Message, limit int) []Message {
	sort.SliceStable(msgs, func(i, j int) bool { return Less(msgs[i], msgs[j]) })

	seen := make(map[int64]struct{}, len(msgs))
	out := msgs[:0]
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
