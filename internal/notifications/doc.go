// Package notifications tells the outside world that a batch finished.
//
// Two transports are provided: a Navidrome library scan trigger and ntfy push
// messages. NewService wires whichever are configured and degrades to a no-op
// when neither is. Delivery is best effort; the workflow manager logs returned
// errors and never lets them affect batch state.
package notifications
