// Package channel contains the core domain types of the notifier.
//
// Status is a single observation of the watched channel, StoredState is what
// was last persisted about it and Transition describes an online/offline change.
// Detect and NextState are pure functions of those values; they own the
// baseline and "notify only on the online/offline boundary" rules.
package channel
