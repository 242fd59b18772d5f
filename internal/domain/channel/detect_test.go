package channel

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

var baseTime = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func observe(online bool, offset time.Duration) *Status {
	return &Status{
		ChannelID:  "somecreator",
		IsOnline:   online,
		ObservedAt: baseTime.Add(offset),
	}
}

// TestDetect_FirstRunIsSilentBaseline covers the baseline rule for both online flags.
func TestDetect_FirstRunIsSilentBaseline(t *testing.T) {
	t.Parallel()

	require.Nil(t, Detect(nil, observe(true, 0), DetectOptions{}))
	require.Nil(t, Detect(nil, observe(false, 0), DetectOptions{}))
}

// TestDetect_NotifyOnFirstRun emits a go-live only when the first observation is online.
func TestDetect_NotifyOnFirstRun(t *testing.T) {
	t.Parallel()

	opts := DetectOptions{NotifyOnFirstRun: true}

	tr := Detect(nil, observe(true, time.Minute), opts)
	require.NotNil(t, tr)
	require.False(t, tr.From)
	require.True(t, tr.To)
	require.True(t, tr.WentOnline())
	require.Equal(t, baseTime.Add(time.Minute), tr.OccurredAt)
	require.True(t, tr.PreviousChangeAt.IsZero())

	require.Nil(t, Detect(nil, observe(false, time.Minute), opts))
}

// TestDetect_Transitions checks both directions and the carried context.
func TestDetect_Transitions(t *testing.T) {
	t.Parallel()

	previous := &StoredState{
		ChannelID:     "somecreator",
		IsOnline:      true,
		LastChangedAt: baseTime,
		LastCheckedAt: baseTime.Add(time.Hour),
	}

	tr := Detect(previous, observe(false, 2*time.Hour), DetectOptions{})
	require.NotNil(t, tr)
	require.True(t, tr.From)
	require.False(t, tr.To)
	require.Equal(t, "offline", tr.Kind())
	require.Equal(t, baseTime.Add(2*time.Hour), tr.OccurredAt)
	require.Equal(t, baseTime, tr.PreviousChangeAt)
	require.Equal(t, 2*time.Hour, tr.PreviousDuration())

	previous.IsOnline = false

	tr = Detect(previous, observe(true, 3*time.Hour), DetectOptions{})
	require.NotNil(t, tr)
	require.Equal(t, "online", tr.Kind())
	require.True(t, tr.WentOnline())
}

// TestDetect_IgnoresMetadataDrift verifies equal flags never produce a transition.
func TestDetect_IgnoresMetadataDrift(t *testing.T) {
	t.Parallel()

	previous := &StoredState{IsOnline: true, LastChangedAt: baseTime}

	current := observe(true, time.Minute)
	current.Metadata = &structpb.Struct{Fields: map[string]*structpb.Value{
		"title":   structpb.NewStringValue("new title"),
		"viewers": structpb.NewNumberValue(42),
	}}

	require.Nil(t, Detect(previous, current, DetectOptions{}))
	require.Nil(t, Detect(previous, nil, DetectOptions{}))
}

// TestDetect_Idempotent replays the same observation and expects no second event.
func TestDetect_Idempotent(t *testing.T) {
	t.Parallel()

	state := &StoredState{IsOnline: false, LastChangedAt: baseTime}
	current := observe(true, time.Minute)

	require.NotNil(t, Detect(state, current, DetectOptions{}))

	state = NextState(state, current)
	require.Nil(t, Detect(state, current, DetectOptions{}))
}

// TestDetect_TransitionCountProperty feeds random sequences through Detect/NextState
// and checks that every adjacent flip, and only those, yields one transition.
func TestDetect_TransitionCountProperty(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))

	for range 200 {
		length := 1 + rng.IntN(40)
		flags := make([]bool, length)

		for i := range flags {
			flags[i] = rng.IntN(2) == 1
		}

		expected := 0

		for i := 1; i < len(flags); i++ {
			if flags[i] != flags[i-1] {
				expected++
			}
		}

		var (
			state *StoredState
			got   int
		)

		for i, online := range flags {
			current := observe(online, time.Duration(i)*time.Minute)
			if Detect(state, current, DetectOptions{}) != nil {
				got++
			}

			state = NextState(state, current)
			require.Equal(t, online, state.IsOnline)
		}

		require.Equal(t, expected, got, "flags: %v", flags)
	}
}

// TestNextState covers baseline, steady and transition updates.
func TestNextState(t *testing.T) {
	t.Parallel()

	// Scenario A: baseline.
	first := observe(true, 0)
	state := NextState(nil, first)
	require.True(t, state.IsOnline)
	require.Equal(t, first.ObservedAt, state.LastChangedAt)
	require.Equal(t, first.ObservedAt, state.LastCheckedAt)
	require.Equal(t, "somecreator", state.ChannelID)

	// Scenario C: steady state advances only LastCheckedAt.
	steady := observe(true, 5*time.Minute)
	next := NextState(state, steady)
	require.True(t, next.IsOnline)
	require.Equal(t, first.ObservedAt, next.LastChangedAt)
	require.Equal(t, steady.ObservedAt, next.LastCheckedAt)

	// Scenario B: transition moves both timestamps.
	flipped := observe(false, 10*time.Minute)
	after := NextState(next, flipped)
	require.False(t, after.IsOnline)
	require.Equal(t, flipped.ObservedAt, after.LastChangedAt)
	require.Equal(t, flipped.ObservedAt, after.LastCheckedAt)
}
