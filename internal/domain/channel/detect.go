package channel

// DetectOptions tunes the baseline policy of Detect.
type DetectOptions struct {
	// NotifyOnFirstRun emits a "went online" transition when the very first
	// observation finds the channel live. An offline first observation stays silent.
	NotifyOnFirstRun bool
}

// Detect classifies the change between the previously stored state and a fresh observation.
// It returns nil when nothing should be reported:
//   - no previous state (baseline), unless NotifyOnFirstRun and the channel is live,
//   - equal online flags, whatever happened to the metadata.
func Detect(previous *StoredState, current *Status, opts DetectOptions) *Transition {
	if current == nil {
		return nil
	}

	if previous == nil {
		if !opts.NotifyOnFirstRun || !current.IsOnline {
			return nil
		}

		return &Transition{
			ChannelID:  current.ChannelID,
			From:       false,
			To:         true,
			OccurredAt: current.ObservedAt,
			Metadata:   CloneMetadata(current.Metadata),
		}
	}

	if previous.IsOnline == current.IsOnline {
		return nil
	}

	return &Transition{
		ChannelID:        current.ChannelID,
		From:             previous.IsOnline,
		To:               current.IsOnline,
		OccurredAt:       current.ObservedAt,
		PreviousChangeAt: previous.LastChangedAt,
		Metadata:         CloneMetadata(current.Metadata),
	}
}

// NextState returns the state to persist after a successful observation.
// LastCheckedAt always advances; IsOnline and LastChangedAt only move on a real
// change or when there is no previous state to compare with.
func NextState(previous *StoredState, current *Status) *StoredState {
	next := &StoredState{
		ChannelID:     current.ChannelID,
		IsOnline:      current.IsOnline,
		LastChangedAt: current.ObservedAt,
		LastCheckedAt: current.ObservedAt,
	}

	if previous != nil && previous.IsOnline == current.IsOnline {
		next.LastChangedAt = previous.LastChangedAt
	}

	return next
}
