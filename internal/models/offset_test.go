package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetKey(t *testing.T) {
	cases := map[time.Duration]string{
		24 * time.Hour:             "24h",
		2 * time.Hour:              "2h",
		30 * time.Minute:           "30m",
		90 * time.Minute:           "1h30m",
		45 * time.Second:           "45s",
		time.Hour + 30*time.Second: "1h0m30s",
	}
	for d, want := range cases {
		assert.Equal(t, want, OffsetKey(d), d.String())
	}
}

func TestParseOffsets(t *testing.T) {
	offsets, err := ParseOffsets("30m, 24h,2h,30m")
	require.NoError(t, err)
	require.Len(t, offsets, 3)
	assert.Equal(t, "24h", offsets[0].Key)
	assert.Equal(t, "2h", offsets[1].Key)
	assert.Equal(t, 30*time.Minute, offsets[2].Lead)
}

func TestParseOffsetsRejectsBadInput(t *testing.T) {
	for _, raw := range []string{"", "abc", "-2h", " , "} {
		_, err := ParseOffsets(raw)
		assert.Error(t, err, raw)
	}
}
