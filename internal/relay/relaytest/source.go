// Package relaytest provides an in-memory relay.Source for tests.
package relaytest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"nostr-universe/internal/relay"
	"nostr-universe/internal/types"
)

// Source serves stored events to Fetch and Stream, and lets tests push live
// events into open streams.
type Source struct {
	mu        sync.Mutex
	events    []types.Event
	queries   []types.Filter
	published []types.Event
	streams   map[*stream]struct{}
	failing   bool

	// OnPublish, when set, runs after an event is recorded by Publish.
	OnPublish func(evt types.Event)
	// HoldEOSE keeps new streams from reporting EOSE until ReleaseEOSE.
	HoldEOSE bool
}

type stream struct {
	mu      sync.Mutex
	closed  bool
	filter  types.Filter
	out     chan relay.Message
	release chan struct{}
	ctx     context.Context
}

var _ relay.Source = (*Source)(nil)

func New(events ...types.Event) *Source {
	return &Source{events: events, streams: make(map[*stream]struct{})}
}

// Add stores events for later queries.
func (s *Source) Add(events ...types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

// SetFailing makes every Fetch and Stream fail with relay.ErrNoRelays.
func (s *Source) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Queries returns every filter passed to Fetch or Stream.
func (s *Source) Queries() []types.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Filter(nil), s.queries...)
}

func (s *Source) Published() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Event(nil), s.published...)
}

func (s *Source) match(filter types.Filter) []types.Event {
	var out []types.Event
	for _, evt := range s.events {
		if filter.Matches(evt) {
			out = append(out, evt.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (s *Source) Fetch(ctx context.Context, relays []string, filter types.Filter) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, filter)
	if s.failing {
		return nil, relay.ErrNoRelays
	}
	return s.match(filter), nil
}

func (s *Source) Stream(ctx context.Context, relays []string, filter types.Filter) (<-chan relay.Message, error) {
	s.mu.Lock()
	s.queries = append(s.queries, filter)
	if s.failing {
		s.mu.Unlock()
		return nil, relay.ErrNoRelays
	}
	st := &stream{
		filter:  filter,
		out:     make(chan relay.Message, 64),
		release: make(chan struct{}),
		ctx:     ctx,
	}
	backlog := s.match(filter)
	if !s.HoldEOSE {
		close(st.release)
	}
	s.streams[st] = struct{}{}
	s.mu.Unlock()

	go func() {
		for _, evt := range backlog {
			if !st.send(relay.Message{Type: relay.MessageEvent, Event: evt, Relay: "wss://test"}) {
				break
			}
		}
		select {
		case <-st.release:
			st.send(relay.Message{Type: relay.MessageEOSE})
		case <-ctx.Done():
		}
		<-ctx.Done()

		s.mu.Lock()
		delete(s.streams, st)
		s.mu.Unlock()

		st.mu.Lock()
		st.closed = true
		close(st.out)
		st.mu.Unlock()
	}()
	return st.out, nil
}

func (st *stream) send(m relay.Message) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return false
	}
	select {
	case st.out <- m:
		return true
	case <-st.ctx.Done():
		return false
	}
}

// ReleaseEOSE lets held streams report EOSE.
func (s *Source) ReleaseEOSE() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for st := range s.streams {
		select {
		case <-st.release:
		default:
			close(st.release)
		}
	}
}

// Emit stores evt and pushes it to every open stream whose filter matches.
func (s *Source) Emit(evt types.Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	var targets []*stream
	for st := range s.streams {
		if st.filter.Matches(evt) {
			targets = append(targets, st)
		}
	}
	s.mu.Unlock()

	for _, st := range targets {
		st.send(relay.Message{Type: relay.MessageEvent, Event: evt.Clone(), Relay: "wss://test"})
	}
}

// StreamCount returns the number of open streams.
func (s *Source) StreamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

func (s *Source) Publish(ctx context.Context, relayURL string, evt types.Event) error {
	s.mu.Lock()
	if s.failing {
		s.mu.Unlock()
		return errors.New("publish failed")
	}
	s.published = append(s.published, evt)
	hook := s.OnPublish
	s.mu.Unlock()

	if hook != nil {
		hook(evt)
	}
	return nil
}
