// Package notify delivers channel transitions to the operator.
//
// Every sink implements Notifier; Multi fans a transition out to all
// configured sinks and joins their failures. Sinks never retry: the watcher
// reports a failure and moves on.
package notify
