// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fwdslsh/dispatch-sub012/pkg/auth"
	"github.com/fwdslsh/dispatch-sub012/pkg/errors"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
	"github.com/fwdslsh/dispatch-sub012/pkg/runs"
	"github.com/fwdslsh/dispatch-sub012/pkg/store"
	"github.com/fwdslsh/dispatch-sub012/pkg/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// client is one WebSocket connection. A client may hold several
// session subscriptions at once, all multiplexed over the single send
// queue drained by the write pump.
type client struct {
	conn     *websocket.Conn
	orch     *runs.Orchestrator
	identity *auth.Identity
	metrics  *telemetry.Metrics

	send chan ServerMessage

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]*subscription
}

// subscription is one attached event stream.
type subscription struct {
	sessionID string
	cancel    context.CancelFunc

	mu            sync.Mutex
	lastDelivered int64
}

func (s *subscription) setDelivered(seq int64) {
	s.mu.Lock()
	s.lastDelivered = seq
	s.mu.Unlock()
}

func (s *subscription) delivered() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDelivered
}

func newClient(conn *websocket.Conn, orch *runs.Orchestrator, identity *auth.Identity, metrics *telemetry.Metrics, queueCap int) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		conn:     conn,
		orch:     orch,
		identity: identity,
		metrics:  metrics,
		send:     make(chan ServerMessage, queueCap),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[string]*subscription),
	}
}

// run starts the pumps and blocks until the connection ends.
func (c *client) run() {
	go c.writePump()
	go c.forwardNotifications()
	c.readPump()
}

// enqueue delivers a control message, blocking until there is queue
// space or the connection ends.
func (c *client) enqueue(msg ServerMessage) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *client) sendError(sessionID string, err error) {
	code := errors.TypeOf(err)
	if code == "" {
		code = errors.ErrStoreFailure
	}
	c.enqueue(ServerMessage{
		Type:      MsgError,
		SessionID: sessionID,
		Error:     &WireError{Code: code, Message: err.Error()},
	})
}

func (c *client) readPump() {
	defer func() {
		c.cancel()
		c.detachAll()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugw("websocket read ended", "user_id", c.identity.UserID, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", errors.NewInvalidArgumentError("invalid message", err))
			continue
		}
		c.handle(msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *client) handle(msg ClientMessage) {
	switch msg.Type {
	case MsgAttach, MsgCatchup:
		c.handleAttach(msg)
	case MsgDetach:
		c.detach(msg.SessionID)
	case MsgInput:
		if err := c.orch.Write(c.ctx, c.identity.UserID, msg.SessionID, msg.Data); err != nil {
			c.sendError(msg.SessionID, err)
		}
	case MsgResize:
		if err := c.orch.Resize(c.ctx, c.identity.UserID, msg.SessionID, msg.Cols, msg.Rows); err != nil {
			c.sendError(msg.SessionID, err)
		}
	case MsgClose:
		if err := c.orch.Close(c.ctx, c.identity.UserID, msg.SessionID); err != nil {
			c.sendError(msg.SessionID, err)
		}
	default:
		c.sendError(msg.SessionID, errors.NewInvalidArgumentError(
			"unknown message type "+msg.Type, nil))
	}
}

func (c *client) handleAttach(msg ClientMessage) {
	afterSeq := int64(0)
	if msg.AfterSeq != nil {
		afterSeq = *msg.AfterSeq
	}

	subCtx, subCancel := context.WithCancel(c.ctx)
	att, err := c.orch.Attach(subCtx, c.identity.UserID, msg.SessionID, afterSeq)
	if err != nil {
		subCancel()
		c.sendError(msg.SessionID, err)
		return
	}

	sub := &subscription{sessionID: msg.SessionID, cancel: subCancel}
	if att.Snapshot != nil {
		sub.setDelivered(att.Snapshot.Seq)
	} else if afterSeq > 0 {
		sub.setDelivered(afterSeq)
	}

	// A re-attach to the same session supersedes the old subscription.
	c.mu.Lock()
	if prev, ok := c.subs[msg.SessionID]; ok {
		prev.cancel()
	}
	c.subs[msg.SessionID] = sub
	c.mu.Unlock()

	c.enqueue(ServerMessage{Type: MsgAttached, SessionID: msg.SessionID, Session: att.Session})
	if att.Snapshot != nil {
		c.enqueue(ServerMessage{Type: MsgRunEvent, SessionID: msg.SessionID, Event: att.Snapshot})
	}

	if c.metrics != nil {
		c.metrics.Subscribers.Inc()
	}
	go c.deliver(sub, att.Stream)
}

// deliver bridges one event stream to the shared send queue. A full
// queue means the client cannot keep up; the subscription is dropped
// with an overflow notice rather than stalling every other stream.
func (c *client) deliver(sub *subscription, stream store.EventStream) {
	defer func() {
		if c.metrics != nil {
			c.metrics.Subscribers.Dec()
		}
		c.removeSub(sub)
	}()

	for ev := range stream.Events() {
		select {
		case c.send <- ServerMessage{Type: MsgRunEvent, SessionID: sub.sessionID, Event: &ev}:
			sub.setDelivered(ev.Seq)
		case <-c.ctx.Done():
			return
		default:
			sub.cancel()
			if c.metrics != nil {
				c.metrics.OverflowDrops.Inc()
			}
			logger.Warnw("subscription overflow",
				"user_id", c.identity.UserID,
				"session_id", sub.sessionID,
				"last_delivered_seq", sub.delivered())
			c.enqueue(ServerMessage{
				Type:             MsgOverflow,
				SessionID:        sub.sessionID,
				LastDeliveredSeq: sub.delivered(),
			})
			return
		}
	}
	if err := stream.Err(); err != nil {
		c.sendError(sub.sessionID, errors.NewStoreFailureError("event stream failed", err))
	}
}

// forwardNotifications relays the orchestrator's control stream,
// filtered to sessions the client's user owns.
func (c *client) forwardNotifications() {
	notifications := c.orch.Subscribe(c.ctx)
	for n := range notifications {
		if n.Session.OwnerUserID != c.identity.UserID {
			continue
		}
		var msgType string
		switch n.Type {
		case runs.NotifyCreated:
			msgType = MsgSessionCreated
		case runs.NotifyUpdated:
			msgType = MsgSessionUpdated
		case runs.NotifyClosed:
			msgType = MsgSessionClosed
		default:
			continue
		}
		// Advisory stream: drop rather than stall event delivery.
		select {
		case c.send <- ServerMessage{Type: msgType, SessionID: n.Session.ID, Session: n.Session}:
		default:
		}
	}
}

func (c *client) detach(sessionID string) {
	c.mu.Lock()
	sub, ok := c.subs[sessionID]
	if ok {
		delete(c.subs, sessionID)
	}
	c.mu.Unlock()
	if ok {
		sub.cancel()
	}
}

func (c *client) removeSub(sub *subscription) {
	c.mu.Lock()
	if current, ok := c.subs[sub.sessionID]; ok && current == sub {
		delete(c.subs, sub.sessionID)
	}
	c.mu.Unlock()
	sub.cancel()
}

func (c *client) detachAll() {
	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.cancel()
	}
}
