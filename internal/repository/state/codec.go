package state

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
)

// schemaVersion is written into every document so future layouts can be told apart.
const schemaVersion = 1

// Document field names.
const (
	fieldVersion       = "version"
	fieldChannelID     = "channel_id"
	fieldIsOnline      = "is_online"
	fieldLastChangedAt = "last_changed_at"
	fieldLastCheckedAt = "last_checked_at"
)

// encodeState renders the state as a JSON document via protojson.
func encodeState(state *channel.StoredState) ([]byte, error) {
	document := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			fieldVersion:       structpb.NewNumberValue(schemaVersion),
			fieldChannelID:     structpb.NewStringValue(state.ChannelID),
			fieldIsOnline:      structpb.NewBoolValue(state.IsOnline),
			fieldLastChangedAt: structpb.NewStringValue(formatTime(state.LastChangedAt)),
			fieldLastCheckedAt: structpb.NewStringValue(formatTime(state.LastCheckedAt)),
		},
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	return data, nil
}

// decodeState parses a JSON document produced by encodeState.
// Every structural problem is reported as ErrCorrupt.
func decodeState(data []byte) (*channel.StoredState, error) {
	var document structpb.Struct
	if err := protojson.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("%w: decode document: %w", ErrCorrupt, err)
	}

	fields := document.GetFields()

	if v, ok := fields[fieldVersion]; ok && v.GetNumberValue() > schemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %v", ErrCorrupt, v.GetNumberValue())
	}

	onlineValue, ok := fields[fieldIsOnline].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, fmt.Errorf("%w: field %q must be a boolean", ErrCorrupt, fieldIsOnline)
	}

	lastChangedAt, err := parseTimeField(fields, fieldLastChangedAt)
	if err != nil {
		return nil, err
	}

	lastCheckedAt, err := parseTimeField(fields, fieldLastCheckedAt)
	if err != nil {
		return nil, err
	}

	return &channel.StoredState{
		ChannelID:     fields[fieldChannelID].GetStringValue(),
		IsOnline:      onlineValue.BoolValue,
		LastChangedAt: lastChangedAt,
		LastCheckedAt: lastCheckedAt,
	}, nil
}

// parseTimeField reads a required RFC 3339 timestamp field.
func parseTimeField(fields map[string]*structpb.Value, name string) (time.Time, error) {
	raw, ok := fields[name].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: field %q must be a timestamp string", ErrCorrupt, name)
	}

	return parseTime(name, raw.StringValue)
}

// parseTime parses a stored timestamp, wrapping failures in ErrCorrupt.
func parseTime(name, raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: field %q: %w", ErrCorrupt, name, err)
	}

	return ts, nil
}

// formatTime renders timestamps in UTC with nanosecond precision.
func formatTime(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}
