// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package runs

import (
	"context"
	"sync"

	"github.com/fwdslsh/dispatch-sub012/pkg/session"
)

// Notification kinds published on the control stream.
const (
	NotifyCreated = "session:created"
	NotifyUpdated = "session:updated"
	NotifyClosed  = "session:closed"
)

// Notification announces a session lifecycle change to transports.
// The control stream is advisory: it carries no seq and slow consumers
// may miss entries, in which case they re-list.
type Notification struct {
	Type    string           `json:"type"`
	Session *session.Session `json:"session"`
}

const notifyBuffer = 16

type notifier struct {
	mu   sync.Mutex
	subs map[int]chan Notification
	next int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan Notification)}
}

// subscribe registers a listener that is removed when ctx ends.
func (n *notifier) subscribe(ctx context.Context) <-chan Notification {
	ch := make(chan Notification, notifyBuffer)

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = ch
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
		close(ch)
	}()
	return ch
}

// publish fans a notification out to every listener, dropping it for
// listeners whose buffer is full.
func (n *notifier) publish(notificationType string, s *session.Session) {
	clone := *s
	msg := Notification{Type: notificationType, Session: &clone}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
