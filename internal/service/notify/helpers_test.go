package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
)

var errSinkDown = errors.New("sink down")

// wentOnline builds an offline to online transition with a typical payload.
func wentOnline(t *testing.T) *channel.Transition {
	t.Helper()

	metadata, err := structpb.NewStruct(map[string]any{
		"name":     "SomeCreator",
		"online":   true,
		"title":    "Painting <dragons> & coffee",
		"category": []any{"Creative", "Illustration"},
		"viewers":  1234,
		"avatar":   "https://images.picarto.tv/avatar.png",
	})
	require.NoError(t, err)

	occurred := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	return &channel.Transition{
		ChannelID:        "somecreator",
		From:             false,
		To:               true,
		OccurredAt:       occurred,
		PreviousChangeAt: occurred.Add(-3 * time.Hour),
		Metadata:         metadata,
	}
}

// wentOffline builds an online to offline transition without a known previous start.
func wentOffline() *channel.Transition {
	return &channel.Transition{
		ChannelID:  "somecreator",
		From:       true,
		To:         false,
		OccurredAt: time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC),
	}
}

// recordingNotifier remembers the transitions it received.
type recordingNotifier struct {
	mu    sync.Mutex
	name  string
	err   error
	calls []*channel.Transition
}

func (r *recordingNotifier) Name() string {
	return r.name
}

func (r *recordingNotifier) Notify(_ context.Context, t *channel.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, t)

	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.calls)
}
