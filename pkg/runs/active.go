// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package runs

import (
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fwdslsh/dispatch-sub012/pkg/adapters"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
	"github.com/fwdslsh/dispatch-sub012/pkg/session"
	"github.com/fwdslsh/dispatch-sub012/pkg/store"
)

const (
	// appendMaxTries bounds retries of one store append; after that the
	// session is marked errored and the adapter is torn down.
	appendMaxTries = 3

	appendTimeout = 10 * time.Second
)

// emitRequest is one pending append in a session's emit queue.
type emitRequest struct {
	channel   string
	eventType string
	payload   []byte
	// closing routes the append through AppendClosing and ends the
	// worker afterwards.
	closing bool
}

// activeSession is the in-memory half of a live session: the adapter
// and the single-writer goroutine that serializes its events into the
// store.
type activeSession struct {
	id      string
	kind    string
	adapter adapters.Adapter
	orch    *Orchestrator

	queue chan emitRequest
	// stopped is closed when the worker exits; emitters blocked on a
	// full queue fall through and discard.
	stopped chan struct{}
	// workerDone is closed after the worker's final append completes.
	workerDone chan struct{}
	// done is closed once teardown (state capture, row update) finished.
	done chan struct{}
	// quit asks the worker to drain what is queued and exit without a
	// closing append.
	quit chan struct{}

	closing atomic.Bool
}

func newActiveSession(id, kind string, orch *Orchestrator) *activeSession {
	return &activeSession{
		id:         id,
		kind:       kind,
		orch:       orch,
		queue:      make(chan emitRequest, orch.emitQueueCap),
		stopped:    make(chan struct{}),
		workerDone: make(chan struct{}),
		done:       make(chan struct{}),
		quit:       make(chan struct{}),
	}
}

// stopWorker drains queued events and stops the worker without a
// closing append. Used when the adapter never started.
func (a *activeSession) stopWorker() {
	close(a.quit)
	<-a.workerDone
}

// beginClose claims responsibility for tearing the session down.
func (a *activeSession) beginClose() bool {
	return a.closing.CompareAndSwap(false, true)
}

// emit is the adapters.EmitFunc handed to the adapter. It blocks while
// the queue is full, which is the adapter's backpressure signal, and
// discards once the worker has exited.
func (a *activeSession) emit(channel, eventType string, payload any) {
	raw, err := session.MarshalPayload(payload)
	if err != nil {
		logger.Errorw("dropping unmarshalable event",
			"session_id", a.id, "channel", channel, "error", err)
		return
	}
	a.enqueue(emitRequest{channel: channel, eventType: eventType, payload: raw})
}

func (a *activeSession) enqueue(req emitRequest) {
	select {
	case a.queue <- req:
	case <-a.stopped:
	}
}

// runWorker drains the emit queue, appending events in order. It exits
// after processing a closing append, or after the store fails
// persistently.
func (a *activeSession) runWorker() {
	defer close(a.workerDone)
	defer close(a.stopped)

	for {
		select {
		case req := <-a.queue:
			if exit := a.process(req); exit {
				return
			}
		case <-a.quit:
			for {
				select {
				case req := <-a.queue:
					if exit := a.process(req); exit {
						return
					}
				default:
					return
				}
			}
		case <-a.orch.shutdown:
			return
		}
	}
}

// process appends one event, retrying transient store failures with
// exponential backoff. Returns true when the worker should exit.
func (a *activeSession) process(req emitRequest) bool {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	terminal := req.closing || isClosingEvent(req.channel, req.eventType)

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 50 * time.Millisecond

	seq, err := backoff.Retry(ctx, func() (int64, error) {
		var s int64
		var appendErr error
		if terminal {
			s, appendErr = a.orch.events.AppendClosing(ctx, a.id, req.channel, req.eventType, req.payload)
		} else {
			s, appendErr = a.orch.events.Append(ctx, a.id, req.channel, req.eventType, req.payload)
		}
		if stderrors.Is(appendErr, store.ErrSessionClosed) || stderrors.Is(appendErr, store.ErrNotFound) {
			return 0, backoff.Permanent(appendErr)
		}
		return s, appendErr
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(appendMaxTries),
		backoff.WithNotify(func(retryErr error, duration time.Duration) {
			if a.orch.metrics != nil {
				a.orch.metrics.AppendRetries.Inc()
			}
			logger.Debugw("retrying event append",
				"session_id", a.id, "channel", req.channel,
				"delay", duration, "error", retryErr)
		}),
	)

	switch {
	case err == nil:
		if a.orch.metrics != nil {
			a.orch.metrics.EventsAppended.WithLabelValues(a.kind).Inc()
		}
		logger.Debugw("event appended",
			"session_id", a.id, "channel", req.channel, "type", req.eventType, "seq", seq)
	case stderrors.Is(err, store.ErrSessionClosed):
		// Late adapter output racing a completed close; drop it.
		logger.Debugw("dropping event for closed session",
			"session_id", a.id, "channel", req.channel, "type", req.eventType)
		return true
	default:
		logger.Errorw("event append failed permanently",
			"session_id", a.id, "channel", req.channel, "error", err)
		go a.orch.failSession(a, "event store unavailable")
		return true
	}

	if terminal {
		if !req.closing {
			// The adapter announced its own exit (e.g. the shell
			// process ended); finish the teardown out of band.
			go a.orch.finalizeSpontaneous(a)
		}
		return true
	}

	if strings.HasSuffix(req.channel, ":error") {
		go a.orch.markErrored(a.id, "adapter reported an error")
	}
	return false
}

// isClosingEvent reports whether an emitted event terminates the
// session's log.
func isClosingEvent(channel, eventType string) bool {
	return channel == session.ChannelSystemStatus &&
		(eventType == session.TypeClosed || eventType == session.TypeForcedClose)
}
