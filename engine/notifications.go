package engine

import (
	"slices"

	"github.com/ruteri/certificate-manager/interfaces"
)

// notificationLog is the append-only record of every notification the engine
// emitted. Seq of the n-th entry is n. Guarded by Engine.mu.
type notificationLog struct {
	entries []interfaces.Notification
	changed chan struct{}
}

func newNotificationLog() *notificationLog {
	return &notificationLog{changed: make(chan struct{})}
}

// append assigns sequence numbers, stores the notifications and wakes waiters.
func (l *notificationLog) append(ns []interfaces.Notification) []interfaces.Notification {
	if len(ns) == 0 {
		return nil
	}

	out := make([]interfaces.Notification, 0, len(ns))
	for _, n := range ns {
		n.Seq = uint64(len(l.entries)) + 1
		l.entries = append(l.entries, n)
		out = append(out, cloneNotification(n))
	}

	close(l.changed)
	l.changed = make(chan struct{})
	return out
}

func (l *notificationLog) after(seq uint64) []interfaces.Notification {
	if seq >= uint64(len(l.entries)) {
		return []interfaces.Notification{}
	}

	out := make([]interfaces.Notification, 0, uint64(len(l.entries))-seq)
	for _, n := range l.entries[seq:] {
		out = append(out, cloneNotification(n))
	}
	return out
}

func (l *notificationLog) lastSeq() uint64 {
	return uint64(len(l.entries))
}

func cloneNotification(n interfaces.Notification) interfaces.Notification {
	n.Payload = slices.Clone(n.Payload)
	return n
}
