package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

// TestStoredStateCloneAndEqual verifies Clone copies values and Equal compares instants.
func TestStoredStateCloneAndEqual(t *testing.T) {
	t.Parallel()

	require.Nil(t, (*StoredState)(nil).Clone())

	s := &StoredState{
		ChannelID:     "somecreator",
		IsOnline:      true,
		LastChangedAt: baseTime,
		LastCheckedAt: baseTime.Add(time.Minute),
	}

	c := s.Clone()
	require.NotSame(t, s, c)
	require.True(t, s.Equal(c))

	c.LastCheckedAt = c.LastCheckedAt.In(time.FixedZone("UTC+3", 3*3600))
	require.True(t, s.Equal(c))

	c.IsOnline = false
	require.False(t, s.Equal(c))
	require.False(t, s.Equal(nil))
	require.True(t, (*StoredState)(nil).Equal(nil))
}

// TestTransitionMetadata checks metadata accessors and that Detect copies the payload.
func TestTransitionMetadata(t *testing.T) {
	t.Parallel()

	meta, err := structpb.NewStruct(map[string]any{
		"title":      "Painting dragons",
		"viewers":    12,
		"category":   []any{"Art", "Creative"},
		"adult":      false,
		"avatar_url": nil,
	})
	require.NoError(t, err)

	current := observe(true, time.Minute)
	current.Metadata = meta

	tr := Detect(&StoredState{IsOnline: false}, current, DetectOptions{})
	require.NotNil(t, tr)
	require.NotSame(t, meta, tr.Metadata)

	require.Equal(t, "Painting dragons", tr.MetadataString("title"))
	require.Equal(t, "Art, Creative", tr.MetadataString("category"))
	require.Empty(t, tr.MetadataString("adult"))
	require.Empty(t, tr.MetadataString("missing"))

	viewers, ok := tr.MetadataNumber("viewers")
	require.True(t, ok)
	require.InDelta(t, 12, viewers, 0)

	_, ok = tr.MetadataNumber("title")
	require.False(t, ok)

	// Unknown previous change time yields a zero duration.
	require.Zero(t, tr.PreviousDuration())
}
