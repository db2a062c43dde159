package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mhpenta/weaver/lifecycle"
	"github.com/mhpenta/weaver/notify"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the client.
	pongWait = 60 * time.Second
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Prompts are short; this leaves plenty of room.
	maxMessageSize = 8192
	sendBuffer     = 256
)

// Client message types.
const (
	msgInput   = "input"
	msgSubmit  = "submit"
	msgReset   = "reset"
	msgDismiss = "dismiss"
)

// Server message types.
const (
	msgState = "state"
	msgToast = "toast"
)

type clientMessage struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt,omitempty"`
	ID     string `json:"id,omitempty"`
}

type serverMessage struct {
	Type  string           `json:"type"`
	State *lifecycle.State `json:"state,omitempty"`
	Toast *notify.Toast    `json:"toast,omitempty"`
	ID    string           `json:"id,omitempty"`
}

// session binds one websocket to its own Controller and Executor.
type session struct {
	id     string
	conn   *websocket.Conn
	server *Server
	logger *zap.Logger

	exec *lifecycle.Executor
	ctrl *lifecycle.Controller

	send chan serverMessage
	done chan struct{}

	// overflow holds the newest state snapshot once send is full. While it is
	// set, later snapshots replace it instead of queueing behind it.
	stateMu    sync.Mutex
	overflow   *lifecycle.State
	stateReady chan struct{}

	unsubscribeState  func()
	unsubscribeToasts func()

	closeOnce sync.Once
}

func (s *Server) handleWS(c *gin.Context) {
	policy, err := lifecycle.ParsePolicy(c.Query("policy"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the response
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := s.newSession(conn, policy)
	if !s.register(sess) {
		sess.close()
		_ = conn.Close()
		return
	}
	sess.logger.Info("session opened")

	sess.subscribe()
	go sess.writePump()
	go sess.readPump()
}

func (s *Server) newSession(conn *websocket.Conn, policy lifecycle.Policy) *session {
	id := uuid.NewString()
	logger := s.logger.With(zap.String("session_id", id), zap.String("policy", string(policy)))
	progress := s.opts.Progress

	exec := lifecycle.NewExecutor(s.action, lifecycle.ExecutorConfig{
		Timeout:       s.opts.Timeout,
		NotifySuccess: policy == lifecycle.PolicyExplicitSubmit,
		Notifier:      s.bus,
		Scope:         id,
		Progress:      &progress,
		OnStale:       func(lifecycle.Request) { staleResultsTotal.Inc() },
		Logger:        logger,
	})
	ctrl := lifecycle.NewController(exec, lifecycle.ControllerConfig{
		Policy:   policy,
		Debounce: s.opts.Debounce,
		OnRejected: func(string) {
			validationRejectionsTotal.WithLabelValues(string(policy)).Inc()
		},
		Logger: logger,
	})

	return &session{
		id:     id,
		conn:   conn,
		server: s,
		logger: logger,
		exec:   exec,
		ctrl:   ctrl,
		send:       make(chan serverMessage, sendBuffer),
		done:       make(chan struct{}),
		stateReady: make(chan struct{}, 1),
	}
}

// subscribe starts the state and toast feeds. The first state message is
// the current snapshot.
func (sess *session) subscribe() {
	sess.unsubscribeState = sess.exec.Subscribe(func(st lifecycle.State) {
		sess.publishState(st)
	})
	sess.unsubscribeToasts = sess.server.bus.Subscribe(func(ev notify.Event) {
		if ev.Toast.Scope != sess.id {
			return
		}
		switch ev.Type {
		case notify.EventAdd:
			t := ev.Toast
			sess.enqueue(serverMessage{Type: msgToast, Toast: &t})
		case notify.EventDismiss, notify.EventRemove:
			sess.enqueue(serverMessage{Type: msgDismiss, ID: ev.Toast.ID})
		}
	})
}

// publishState queues st in order. A full queue never drops a snapshot: the
// newest one is kept aside and written after the queue drains.
func (sess *session) publishState(st lifecycle.State) {
	msg := serverMessage{Type: msgState, State: &st}

	sess.stateMu.Lock()
	if sess.overflow == nil {
		select {
		case <-sess.done:
			sess.stateMu.Unlock()
			return
		case sess.send <- msg:
			sess.stateMu.Unlock()
			return
		default:
		}
	}
	sess.overflow = &st
	sess.stateMu.Unlock()

	select {
	case sess.stateReady <- struct{}{}:
	default:
	}
}

func (sess *session) takeOverflow() *lifecycle.State {
	sess.stateMu.Lock()
	defer sess.stateMu.Unlock()
	st := sess.overflow
	sess.overflow = nil
	return st
}

func (sess *session) enqueue(msg serverMessage) {
	select {
	case <-sess.done:
	case sess.send <- msg:
	default:
		sess.logger.Warn("send queue full, dropping message", zap.String("type", msg.Type))
	}
}

func (sess *session) handle(msg clientMessage) {
	switch msg.Type {
	case msgInput:
		sess.ctrl.Input(msg.Prompt)
	case msgSubmit:
		var err error
		if msg.Prompt != "" {
			err = sess.ctrl.SubmitPrompt(msg.Prompt)
		} else {
			err = sess.ctrl.Submit()
		}
		if err != nil && !errors.Is(err, lifecycle.ErrPromptTooShort) {
			sess.logger.Warn("submit failed", zap.Error(err))
		}
	case msgReset:
		sess.exec.Reset()
	case msgDismiss:
		for _, t := range sess.server.bus.Active(sess.id) {
			if t.ID == msg.ID {
				sess.server.bus.Dismiss(msg.ID)
			}
		}
	default:
		sess.logger.Warn("unknown message type", zap.String("type", msg.Type))
	}
}

func (sess *session) readPump() {
	defer sess.close()

	sess.conn.SetReadLimit(maxMessageSize)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.logger.Warn("malformed client message", zap.Error(err))
			continue
		}
		sess.handle(msg)
	}
}

func (sess *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sess.conn.Close()
	}()

	for {
		select {
		case <-sess.done:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = sess.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-sess.stateReady:
			if !sess.flushOverflow() {
				return
			}

		case msg := <-sess.send:
			if !sess.write(msg) {
				return
			}

		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sess.logger.Warn("failed to send ping", zap.Error(err))
				sess.close()
				return
			}
		}
	}
}

// flushOverflow writes everything queued ahead of the overflow snapshot, then
// the snapshot itself.
func (sess *session) flushOverflow() bool {
	for drained := false; !drained; {
		select {
		case msg := <-sess.send:
			if !sess.write(msg) {
				return false
			}
		default:
			drained = true
		}
	}
	if st := sess.takeOverflow(); st != nil {
		return sess.write(serverMessage{Type: msgState, State: st})
	}
	return true
}

func (sess *session) write(msg serverMessage) bool {
	_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sess.conn.WriteJSON(msg); err != nil {
		sess.logger.Warn("websocket write failed", zap.Error(err))
		sess.close()
		return false
	}
	return true
}

// close tears the session down: no timer fires and no late result or toast
// reaches the socket afterwards.
func (sess *session) close() {
	sess.closeOnce.Do(func() {
		close(sess.done)
		sess.ctrl.Close()
		sess.exec.Close()
		if sess.unsubscribeState != nil {
			sess.unsubscribeState()
		}
		if sess.unsubscribeToasts != nil {
			sess.unsubscribeToasts()
		}
		sess.server.bus.DismissScope(sess.id)
		sess.server.unregister(sess.id)
		sess.logger.Info("session closed")
	})
}
