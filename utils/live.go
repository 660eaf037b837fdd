package utils

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
	liveSendBuffer = 16
)

// LiveEvent is pushed to every subscriber of a post when its reply tree changes.
type LiveEvent struct {
	Type    string    `json:"type"`
	PostID  uint      `json:"post_id"`
	ReplyID uint      `json:"reply_id,omitempty"`
	At      time.Time `json:"at"`
}

// EventRepliesChanged is the only event type clients act on: they refetch the tree.
const EventRepliesChanged = "replies_changed"

type liveClient struct {
	conn *websocket.Conn
	send chan LiveEvent
}

// LiveHub fans reply change notifications out to websocket subscribers, grouped by post.
type LiveHub struct {
	mu       sync.RWMutex
	subs     map[uint]map[*liveClient]struct{}
	upgrader websocket.Upgrader
	closed   bool
}

// NewLiveHub returns a hub accepting websocket upgrades from any origin allowed by checkOrigin.
// A nil checkOrigin accepts every origin.
func NewLiveHub(checkOrigin func(r *http.Request) bool) *LiveHub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &LiveHub{
		subs: make(map[uint]map[*liveClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Subscribers reports how many connections watch postID.
func (h *LiveHub) Subscribers(postID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[postID])
}

// Publish delivers ev to subscribers of ev.PostID. Slow clients drop events rather than block writers.
func (h *LiveHub) Publish(ev LiveEvent) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.subs[ev.PostID] {
		select {
		case cl.send <- ev:
		default:
			Logger.Debug("live event dropped", zap.Uint("post_id", ev.PostID))
		}
	}
}

// Serve upgrades the request and streams events for postID until the peer goes away.
func (h *LiveHub) Serve(w http.ResponseWriter, r *http.Request, postID uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	cl := &liveClient{conn: conn, send: make(chan LiveEvent, liveSendBuffer)}
	if !h.add(postID, cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(liveWriteWait))
		return conn.Close()
	}
	go h.writePump(cl)
	h.readPump(postID, cl)
	return nil
}

func (h *LiveHub) add(postID uint, cl *liveClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.subs[postID]
	if !ok {
		set = make(map[*liveClient]struct{})
		h.subs[postID] = set
	}
	set[cl] = struct{}{}
	LiveSubscribers.Inc()
	return true
}

func (h *LiveHub) remove(postID uint, cl *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[postID]
	if !ok {
		return
	}
	if _, ok := set[cl]; !ok {
		return
	}
	delete(set, cl)
	close(cl.send)
	LiveSubscribers.Dec()
	if len(set) == 0 {
		delete(h.subs, postID)
	}
}

// readPump discards client frames; it exists to process pongs and notice disconnects.
func (h *LiveHub) readPump(postID uint, cl *liveClient) {
	defer func() {
		h.remove(postID, cl)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(livePongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *LiveHub) writePump(cl *liveClient) {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *LiveHub) Close(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for postID, set := range h.subs {
		for cl := range set {
			close(cl.send)
			LiveSubscribers.Dec()
		}
		delete(h.subs, postID)
	}
}
