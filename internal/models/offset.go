package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Offset is a reminder lead time before an appointment starts.
type Offset struct {
	Key  string
	Lead time.Duration
}

// NewOffset builds an offset with its canonical key.
func NewOffset(lead time.Duration) Offset {
	return Offset{Key: OffsetKey(lead), Lead: lead}
}

// OffsetKey renders d compactly: 24h, 2h, 30m, 1h30m.
func OffsetKey(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

// ParseOffsets parses a comma separated list of durations such as "24h,2h,30m".
// The result is ordered longest lead first with duplicates removed.
func ParseOffsets(raw string) ([]Offset, error) {
	seen := make(map[time.Duration]bool)
	var offsets []Offset
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid reminder offset %q: %w", part, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("reminder offset %q must be positive", part)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		offsets = append(offsets, NewOffset(d))
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("no reminder offsets configured")
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i].Lead > offsets[j].Lead })
	return offsets, nil
}
