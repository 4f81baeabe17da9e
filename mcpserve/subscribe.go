package mcpserve

import (
	"context"
	"log/slog"
	"sync"
)

type subscriptionState int

const (
	stateActive subscriptionState = iota
	stateStopping
)

// subscription tracks one subscribed resource address. An entry exists only
// while a driving goroutine runs for the address; removal from the tracking
// map is the stopped state.
type subscription struct {
	state  subscriptionState
	cancel context.CancelFunc
}

// subscriptions is the per-server subscription state machine. At most one
// driving goroutine runs per address at any time. Driving goroutine
// failures degrade to implicit unsubscription, never to process
// termination.
type subscriptions struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*subscription
	wg      sync.WaitGroup
}

func newSubscriptions(logger *slog.Logger) *subscriptions {
	return &subscriptions{
		logger:  logger,
		entries: make(map[string]*subscription),
	}
}

// subscribe starts a driving goroutine for uri unless one is already
// tracked; a repeated subscribe is a no-op. notify sends one update
// notification to the subscribed client and returns an error when the
// client is gone.
func (s *subscriptions) subscribe(uri string, def ResourceDefinition, notify func(uri string) error) {
	mode := def.SubscribeMode()
	if mode == SubscribeNone {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, tracked := s.entries[uri]; tracked {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.entries[uri] = &subscription{state: stateActive, cancel: cancel}

	s.wg.Add(1)
	go s.drive(ctx, uri, def, mode, notify)
}

// unsubscribe marks a tracked address as stopping; the driving goroutine
// observes this at its next loop boundary and removes the entry.
// Unsubscribing an untracked address is a no-op.
func (s *subscriptions) unsubscribe(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, tracked := s.entries[uri]
	if !tracked {
		return
	}
	entry.state = stateStopping
	entry.cancel()
}

// shutdown marks every tracked address as stopping and waits for the
// driving goroutines to exit.
func (s *subscriptions) shutdown() {
	s.mu.Lock()
	for _, entry := range s.entries {
		entry.state = stateStopping
		entry.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *subscriptions) drive(
	ctx context.Context,
	uri string,
	def ResourceDefinition,
	mode SubscribeMode,
	notify func(uri string) error,
) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscription driver panicked",
				slog.String("uri", uri),
				slog.Any("panic", r))
		}
		s.remove(uri)
		s.wg.Done()
	}()

	switch mode {
	case SubscribeGenerator:
		for range def.Updates(ctx) {
			if s.stopping(uri) {
				return
			}
			if err := notify(uri); err != nil {
				s.logger.Debug("subscription notify failed, dropping subscription",
					slog.String("uri", uri),
					slog.String("err", err.Error()))
				return
			}
		}
	case SubscribePoll:
		for {
			if err := def.Poll(ctx); err != nil {
				if ctx.Err() == nil {
					s.logger.Debug("subscription poll failed, dropping subscription",
						slog.String("uri", uri),
						slog.String("err", err.Error()))
				}
				return
			}
			if s.stopping(uri) {
				return
			}
			if err := notify(uri); err != nil {
				s.logger.Debug("subscription notify failed, dropping subscription",
					slog.String("uri", uri),
					slog.String("err", err.Error()))
				return
			}
		}
	}
}

func (s *subscriptions) stopping(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, tracked := s.entries[uri]
	return !tracked || entry.state == stateStopping
}

func (s *subscriptions) remove(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, tracked := s.entries[uri]; tracked {
		entry.cancel()
		delete(s.entries, uri)
	}
}

// tracked reports whether an address currently has a driving goroutine.
func (s *subscriptions) tracked(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[uri]
	return ok
}
