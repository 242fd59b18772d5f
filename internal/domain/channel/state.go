package channel

import (
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Status is a single observation of the channel returned by the platform API.
type Status struct {
	// ChannelID is the channel the observation belongs to.
	ChannelID string
	// IsOnline reports whether the channel was live when observed.
	IsOnline bool
	// ObservedAt is when the observation was made.
	ObservedAt time.Time
	// Metadata is the raw API payload. It is opaque to the detector.
	Metadata *structpb.Struct
}

// StoredState is the last persisted knowledge about the channel.
type StoredState struct {
	// ChannelID is the channel the record belongs to.
	ChannelID string
	// IsOnline is the last reported online flag.
	IsOnline bool
	// LastChangedAt is when IsOnline last flipped (or the baseline was taken).
	LastChangedAt time.Time
	// LastCheckedAt is when the channel was last successfully fetched.
	LastCheckedAt time.Time
}

// Clone returns a copy of the state to avoid leaking internal references.
func (s *StoredState) Clone() *StoredState {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}

// Equal reports whether two states hold the same values.
// Timestamps are compared as instants, ignoring location and monotonic readings.
func (s *StoredState) Equal(other *StoredState) bool {
	if s == nil || other == nil {
		return s == other
	}

	return s.ChannelID == other.ChannelID &&
		s.IsOnline == other.IsOnline &&
		s.LastChangedAt.Equal(other.LastChangedAt) &&
		s.LastCheckedAt.Equal(other.LastCheckedAt)
}

// Transition describes a change of the online flag between two observations.
type Transition struct {
	// ChannelID is the channel that changed state.
	ChannelID string
	// From is the previously reported online flag.
	From bool
	// To is the freshly observed online flag.
	To bool
	// OccurredAt is the observation time of the new state.
	OccurredAt time.Time
	// PreviousChangeAt is when the previous state began; zero when unknown.
	PreviousChangeAt time.Time
	// Metadata is the raw payload of the observation that triggered the transition.
	Metadata *structpb.Struct
}

// WentOnline reports whether the channel has just gone live.
func (t *Transition) WentOnline() bool {
	return !t.From && t.To
}

// Kind returns "online" or "offline" depending on the new state.
func (t *Transition) Kind() string {
	if t.To {
		return "online"
	}

	return "offline"
}

// PreviousDuration returns how long the previous state lasted, or zero when unknown.
func (t *Transition) PreviousDuration() time.Duration {
	if t.PreviousChangeAt.IsZero() || t.OccurredAt.Before(t.PreviousChangeAt) {
		return 0
	}

	return t.OccurredAt.Sub(t.PreviousChangeAt)
}

// MetadataString returns a string field of the metadata or an empty string.
func (t *Transition) MetadataString(key string) string {
	return stringField(t.Metadata, key)
}

// MetadataNumber returns a numeric field of the metadata.
func (t *Transition) MetadataNumber(key string) (float64, bool) {
	if t.Metadata == nil {
		return 0, false
	}

	v, ok := t.Metadata.GetFields()[key]
	if !ok {
		return 0, false
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}

	return n.NumberValue, true
}

// CloneMetadata returns a deep copy of the metadata so a Transition never aliases a Status.
func CloneMetadata(m *structpb.Struct) *structpb.Struct {
	if m == nil {
		return nil
	}

	cloned, ok := proto.Clone(m).(*structpb.Struct)
	if !ok {
		return nil
	}

	return cloned
}

// stringField extracts a string value, joining string lists with ", ".
func stringField(m *structpb.Struct, key string) string {
	if m == nil {
		return ""
	}

	v, ok := m.GetFields()[key]
	if !ok {
		return ""
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_ListValue:
		var out string

		for _, item := range kind.ListValue.GetValues() {
			s := item.GetStringValue()
			if s == "" {
				continue
			}

			if out != "" {
				out += ", "
			}

			out += s
		}

		return out
	default:
		return ""
	}
}
