package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const sseKeepaliveInterval = 15 * time.Second

// sseSession is one open /sse stream. Responses to requests posted on
// /messages are queued on out and written by the stream handler.
type sseSession struct {
	id   string
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newSSESession() *sseSession {
	return &sseSession{
		id:   uuid.New().String(),
		out:  make(chan []byte, 32),
		done: make(chan struct{}),
	}
}

func (sess *sseSession) close() {
	sess.once.Do(func() {
		close(sess.done)
	})
}

// enqueue queues a response frame. It blocks until the stream handler drains
// the queue or the session ends.
func (sess *sseSession) enqueue(msg []byte) bool {
	select {
	case <-sess.done:
		return false
	case sess.out <- msg:
		return true
	}
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sseSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*sseSession)}
}

func (st *sessionStore) add(sess *sseSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[sess.id] = sess
}

func (st *sessionStore) get(id string) (*sseSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

func (st *sessionStore) remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

func (st *sessionStore) closeAll() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, sess := range st.sessions {
		sess.close()
	}
}

func (st *sessionStore) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// handleSSE opens the SSE side of the transport. The first frame tells the
// client where to post requests; responses then arrive as message events on
// this stream.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess := newSSESession()
	s.sessions.add(sess)
	defer func() {
		s.sessions.remove(sess.id)
		sess.close()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: /messages?session_id=%s\n\n", sess.id)
	flusher.Flush()

	log.Debug().Str("sessionId", sess.id).Msg("SSE session opened")

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case msg := <-sess.out:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			log.Debug().Str("sessionId", sess.id).Msg("SSE session closed by client")
			return
		case <-sess.done:
			log.Debug().Str("sessionId", sess.id).Msg("SSE session closed")
			return
		}
	}
}

// handleMessages accepts a JSON-RPC request for an open SSE session, responds
// 202 immediately, and dispatches the request in the background. The response
// goes out on the session's stream.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	sess, ok := s.sessions.get(sessionID)
	if !ok {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Failed to parse JSON-RPC request", http.StatusBadRequest)
		return
	}

	// The tool call may outlive this POST, so detach it from the request
	// context before handing it to the dispatch goroutine.
	ctx := context.WithoutCancel(r.Context())
	go s.dispatch(ctx, sess, req)

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) dispatch(ctx context.Context, sess *sseSession, req Request) {
	var resp Response
	if req.JSONRPC != "2.0" {
		resp = Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &Error{Code: ErrInvalidRequest, Message: "Invalid JSON-RPC version"},
		}
	} else {
		result, mcpErr := s.handleMethod(ctx, req)
		if mcpErr != nil {
			resp = Response{JSONRPC: "2.0", ID: req.ID, Error: mcpErr}
		} else {
			resultJSON, err := json.Marshal(result)
			if err != nil {
				resp = Response{
					JSONRPC: "2.0",
					ID:      req.ID,
					Error:   &Error{Code: ErrInternal, Message: "Failed to marshal result"},
				}
			} else {
				resp = Response{JSONRPC: "2.0", ID: req.ID, Result: resultJSON}
			}
		}
	}

	// Notifications carry no ID and get no response.
	if req.ID == nil {
		return
	}

	frame, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sess.id).Msg("Failed to marshal SSE response")
		return
	}
	if !sess.enqueue(frame) {
		log.Debug().Str("sessionId", sess.id).Str("method", req.Method).Msg("SSE session gone, response dropped")
	}
}
