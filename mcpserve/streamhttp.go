package mcpserve

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// SessionIDHeader carries the opaque session identifier on the multi-session
// transport.
const SessionIDHeader = "Mcp-Session-Id"

// StreamableHTTP implements the multi-session addressable transport on a
// single request path. A POST without a session identifier creates a
// session when it carries an initialize request; a POST with the identifier
// continues the session, and the matching response is delivered on that
// request. A GET upgrades to a server-sent event stream carrying
// server-to-client notifications for an existing session, and a DELETE
// terminates a session.
//
// Malformed bodies and unknown or missing session identifiers yield a
// structured error with the invalid-request code and HTTP status 400;
// unhandled failures inside a request yield the internal-error code and
// status 500.
//
// Create instances with NewStreamableHTTP.
type StreamableHTTP struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*streamSession

	incoming chan Session
	done     chan struct{}
	closed   chan struct{}
}

type streamSession struct {
	id     string
	logger *slog.Logger

	// receivedMsgs feeds the Messages iterator consumed by the server loop.
	receivedMsgs chan JSONRPCMessage

	mu      sync.Mutex
	waiters map[MustString]chan JSONRPCMessage
	stream  *sse.Session

	onStop   func(id string)
	stopOnce sync.Once
	done     chan struct{}
}

// NewStreamableHTTP creates a StreamableHTTP transport serving the given
// request path, e.g. "/mcp".
func NewStreamableHTTP(path string) *StreamableHTTP {
	return &StreamableHTTP{
		path:     path,
		logger:   slog.Default(),
		sessions: make(map[string]*streamSession),
		incoming: make(chan Session, 5),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// Router returns a chi router serving the transport's request path.
func (s *StreamableHTTP) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Post(s.path, s.handlePost)
	r.Get(s.path, s.handleGet)
	r.Delete(s.path, s.handleDelete)
	return r
}

// Sessions implements ServerTransport by yielding sessions as clients
// initialize them.
func (s *StreamableHTTP) Sessions() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		defer close(s.closed)

		for {
			select {
			case <-s.done:
				return
			case sess := <-s.incoming:
				if !yield(sess) {
					return
				}
			}
		}
	}
}

// Shutdown implements ServerTransport by stopping the session loop.
func (s *StreamableHTTP) Shutdown(ctx context.Context) error {
	close(s.done)

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to close transport: %w", ctx.Err())
	case <-s.closed:
	}
	return nil
}

func (s *StreamableHTTP) handlePost(w http.ResponseWriter, r *http.Request) {
	var msg JSONRPCMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.writeError(w, http.StatusBadRequest, JSONRPCError{
			Code:    jsonRPCInvalidRequestCode,
			Message: fmt.Sprintf("failed to decode message: %s", err),
		})
		return
	}

	sessID := r.Header.Get(SessionIDHeader)

	var sess *streamSession
	if sessID == "" {
		// A request without a session identifier is only valid to open one.
		if msg.Method != methodInitialize {
			s.writeError(w, http.StatusBadRequest, JSONRPCError{
				Code:    jsonRPCInvalidRequestCode,
				Message: "missing " + SessionIDHeader + " header",
			})
			return
		}
		sess = s.createSession()

		select {
		case <-s.done:
			s.writeError(w, http.StatusBadRequest, JSONRPCError{
				Code:    jsonRPCInvalidRequestCode,
				Message: "server is shutting down",
			})
			return
		case s.incoming <- sess:
		}
	} else {
		var ok bool
		sess, ok = s.lookup(sessID)
		if !ok {
			s.writeError(w, http.StatusBadRequest, JSONRPCError{
				Code:    jsonRPCInvalidRequestCode,
				Message: fmt.Sprintf("unknown session %q", sessID),
			})
			return
		}
	}

	w.Header().Set(SessionIDHeader, sess.id)

	// Notifications carry no ID and get no response body.
	if msg.ID == "" {
		sess.deliver(msg)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	results := sess.addWaiter(msg.ID)
	defer sess.removeWaiter(msg.ID)

	sess.deliver(msg)

	select {
	case <-r.Context().Done():
	case <-sess.done:
		s.writeError(w, http.StatusBadRequest, JSONRPCError{
			Code:    jsonRPCInvalidRequestCode,
			Message: "session is closed",
		})
	case res := <-results:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			s.logger.Error("failed to write response", slog.String("err", err.Error()))
		}
	}
}

func (s *StreamableHTTP) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(r.Header.Get(SessionIDHeader))
	if !ok {
		s.writeError(w, http.StatusBadRequest, JSONRPCError{
			Code:    jsonRPCInvalidRequestCode,
			Message: "missing or unknown session",
		})
		return
	}

	stream, err := sse.Upgrade(w, r)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, JSONRPCError{
			Code:    jsonRPCInternalErrorCode,
			Message: fmt.Sprintf("failed to upgrade stream: %s", err),
		})
		return
	}

	sess.attachStream(stream)
	defer sess.detachStream(stream)

	// Nothing goes over the wire until the first event is sent, so the client
	// would sit waiting for response headers. Acknowledge the stream right
	// away.
	ack := &sse.Message{Type: sse.Type("connected")}
	ack.AppendData(sess.id)
	if err := stream.Send(ack); err != nil {
		s.logger.Error("failed to acknowledge stream", slog.String("err", err.Error()))
		return
	}
	if err := stream.Flush(); err != nil {
		s.logger.Error("failed to flush stream", slog.String("err", err.Error()))
		return
	}

	// Keep the connection open until the client leaves or the session ends.
	select {
	case <-r.Context().Done():
	case <-sess.done:
	}
}

func (s *StreamableHTTP) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(r.Header.Get(SessionIDHeader))
	if !ok {
		s.writeError(w, http.StatusBadRequest, JSONRPCError{
			Code:    jsonRPCInvalidRequestCode,
			Message: "missing or unknown session",
		})
		return
	}

	sess.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *StreamableHTTP) createSession() *streamSession {
	sess := &streamSession{
		id:           uuid.New().String(),
		logger:       s.logger,
		receivedMsgs: make(chan JSONRPCMessage, 5),
		waiters:      make(map[MustString]chan JSONRPCMessage),
		done:         make(chan struct{}),
		onStop:       s.removeSession,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	return sess
}

func (s *StreamableHTTP) lookup(id string) (*streamSession, bool) {
	if id == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *StreamableHTTP) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
}

func (s *StreamableHTTP) writeError(w http.ResponseWriter, status int, jsonErr JSONRPCError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Error:   &jsonErr,
	}
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		s.logger.Error("failed to write error response", slog.String("err", err.Error()))
	}
}

// recoverer converts an unhandled panic inside a request into the
// internal-error response instead of tearing down the connection.
func (s *StreamableHTTP) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("request handler panicked", slog.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, JSONRPCError{
					Code:    jsonRPCInternalErrorCode,
					Message: "internal error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *streamSession) ID() string { return s.id }

// Send routes a message to the client: a response whose ID matches a
// pending request is delivered on that request, everything else rides the
// event stream. Without an attached stream the message is undeliverable and
// the client is considered gone.
func (s *streamSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	select {
	case <-s.done:
		return fmt.Errorf("session is closed")
	default:
	}

	if msg.ID != "" {
		if results := s.waiter(msg.ID); results != nil {
			select {
			case results <- msg:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-s.done:
				return fmt.Errorf("session is closed")
			}
		}
	}

	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return fmt.Errorf("no event stream attached")
	}

	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ev := &sse.Message{Type: sse.Type("message")}
	ev.AppendData(string(msgBs))
	if err := stream.Send(ev); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	if err := stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	return nil
}

func (s *streamSession) Messages() iter.Seq[JSONRPCMessage] {
	return func(yield func(JSONRPCMessage) bool) {
		for {
			select {
			case <-s.done:
				return
			case msg := <-s.receivedMsgs:
				if !yield(msg) {
					return
				}
			}
		}
	}
}

func (s *streamSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.onStop(s.id)
	})
}

func (s *streamSession) deliver(msg JSONRPCMessage) {
	select {
	case <-s.done:
	case s.receivedMsgs <- msg:
	}
}

func (s *streamSession) addWaiter(id MustString) chan JSONRPCMessage {
	results := make(chan JSONRPCMessage, 1)

	s.mu.Lock()
	s.waiters[id] = results
	s.mu.Unlock()

	return results
}

func (s *streamSession) removeWaiter(id MustString) {
	s.mu.Lock()
	delete(s.waiters, id)
	s.mu.Unlock()
}

func (s *streamSession) waiter(id MustString) chan JSONRPCMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.waiters[id]
}

func (s *streamSession) attachStream(stream *sse.Session) {
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
}

func (s *streamSession) detachStream(stream *sse.Session) {
	s.mu.Lock()
	if s.stream == stream {
		s.stream = nil
	}
	s.mu.Unlock()
}
