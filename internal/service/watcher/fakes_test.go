package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
	"github.com/oshokin/stream-notifier/internal/repository/state"
	"github.com/oshokin/stream-notifier/internal/service/status"
)

const (
	testChannel  = "somecreator"
	testInterval = time.Minute
	testBackoff  = 15 * time.Minute
)

var (
	errBoom    = errors.New("boom")
	errNetwork = &status.NetworkError{Err: errors.New("connection refused")}
)

// step is one scripted fetch result: an online flag or an error.
type step struct {
	online bool
	err    error
}

func online() step { return step{online: true} }
func offline() step { return step{online: false} }
func failing() step { return step{err: errNetwork} }

// scriptedFetcher replays steps and repeats the last one when the script runs out.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls []time.Time
}

func (f *scriptedFetcher) Fetch(_ context.Context, channelID string) (*channel.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	f.calls = append(f.calls, now)

	current := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}

	if current.err != nil {
		return nil, current.err
	}

	return &channel.Status{
		ChannelID:  channelID,
		IsOnline:   current.online,
		ObservedAt: now,
	}, nil
}

func (f *scriptedFetcher) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]time.Time(nil), f.calls...)
}

// memoryRepository keeps the state in memory and can fail on demand.
type memoryRepository struct {
	mu       sync.Mutex
	stored   *channel.StoredState
	loadErr  error
	saveErrs []error
	saves    int
}

func (r *memoryRepository) Load(context.Context) (*channel.StoredState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return nil, r.loadErr
	}

	if r.stored == nil {
		return nil, state.ErrNotFound
	}

	return r.stored.Clone(), nil
}

func (r *memoryRepository) Save(_ context.Context, s *channel.StoredState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saves++

	if len(r.saveErrs) > 0 {
		err := r.saveErrs[0]
		r.saveErrs = r.saveErrs[1:]

		if err != nil {
			return err
		}
	}

	r.stored = s.Clone()

	return nil
}

func (r *memoryRepository) snapshot() (*channel.StoredState, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stored.Clone(), r.saves
}

// recordingNotifier collects transitions and can fail.
type recordingNotifier struct {
	mu          sync.Mutex
	err         error
	transitions []*channel.Transition

	// repository, when set, is read at notification time into savedAtNotify.
	repository    *memoryRepository
	savedAtNotify []*channel.StoredState
}

func (n *recordingNotifier) Name() string {
	return "recording"
}

func (n *recordingNotifier) Notify(_ context.Context, t *channel.Transition) error {
	var saved *channel.StoredState
	if n.repository != nil {
		saved, _ = n.repository.snapshot()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.transitions = append(n.transitions, t)
	n.savedAtNotify = append(n.savedAtNotify, saved)

	return n.err
}

func (n *recordingNotifier) received() []*channel.Transition {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]*channel.Transition(nil), n.transitions...)
}

// healthRecorder remembers every reported status.
type healthRecorder struct {
	mu       sync.Mutex
	statuses []bool
}

func (h *healthRecorder) SetServing(serving bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.statuses = append(h.statuses, serving)
}

func (h *healthRecorder) reported() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]bool(nil), h.statuses...)
}
