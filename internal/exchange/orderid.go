package exchange

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxClientOrderIDLen = 36

// NewClientOrderID returns "<prefix>-<uuid without dashes>", cut to the 36
// characters most venues accept. The prefix is lower-cased and stripped to
// [a-z0-9_-].
func NewClientOrderID(prefix string) string {
	prefix = normalizeClientOrderPrefix(prefix)
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	out := prefix + "-" + id
	if len(out) > maxClientOrderIDLen {
		out = out[:maxClientOrderIDLen]
	}
	return out
}

func normalizeClientOrderPrefix(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	b := strings.Builder{}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "xc"
	}
	if len(out) > 12 {
		out = out[:12]
	}
	return out
}

func sortByTime[T any](items []T, at func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool { return at(items[i]).Before(at(items[j])) })
}
