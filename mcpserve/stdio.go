package mcpserve

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StdIO implements the single-session transport over an io.Reader/io.Writer
// pair using newline-delimited JSON-RPC messages. It yields exactly one
// persistent session that remains active for the lifetime of the process.
//
// Create instances with NewStdIO.
type StdIO struct {
	sess   *stdIOSession
	closed chan struct{}
}

type stdIOSession struct {
	id     string
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	writeMu sync.Mutex

	done chan struct{}
}

// NewStdIO creates a StdIO transport over the given reader and writer,
// typically os.Stdin and os.Stdout.
func NewStdIO(reader io.Reader, writer io.Writer) StdIO {
	return StdIO{
		sess: &stdIOSession{
			id:     uuid.New().String(),
			reader: reader,
			writer: writer,
			logger: slog.Default(),
			done:   make(chan struct{}),
		},
		closed: make(chan struct{}),
	}
}

// Sessions implements ServerTransport by yielding the single persistent
// session and waiting until it is stopped.
func (s StdIO) Sessions() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		defer close(s.closed)

		yield(s.sess)
		<-s.sess.done
	}
}

// Shutdown implements ServerTransport by waiting for the session loop to
// break.
func (s StdIO) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
	}
	return nil
}

func (s *stdIOSession) ID() string {
	return s.id
}

func (s *stdIOSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return errors.New("session is closed")
	default:
	}

	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	// Newline framing delimits messages on the stream.
	msgBs = append(msgBs, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.writer.Write(msgBs); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (s *stdIOSession) Messages() iter.Seq[JSONRPCMessage] {
	return func(yield func(JSONRPCMessage) bool) {
		// bufio.Reader instead of bufio.Scanner avoids max token size errors.
		reader := bufio.NewReader(s.reader)
		for {
			type lineWithErr struct {
				line string
				err  error
			}
			lines := make(chan lineWithErr, 1)

			// Read in a goroutine so a blocked reader cannot keep the
			// session from observing done.
			go func() {
				line, err := reader.ReadString('\n')
				if err != nil {
					lines <- lineWithErr{err: err}
					return
				}
				lines <- lineWithErr{line: strings.TrimSuffix(line, "\n")}
			}()

			var lwe lineWithErr
			select {
			case <-s.done:
				return
			case lwe = <-lines:
			}

			if lwe.err != nil {
				if !errors.Is(lwe.err, io.EOF) {
					s.logger.Error("failed to read message", "err", lwe.err)
				}
				return
			}

			if lwe.line == "" {
				continue
			}

			var msg JSONRPCMessage
			if err := json.Unmarshal([]byte(lwe.line), &msg); err != nil {
				s.logger.Error("failed to unmarshal message", "err", err)
				continue
			}

			if !yield(msg) {
				return
			}
		}
	}
}

func (s *stdIOSession) Stop() {
	close(s.done)
}
