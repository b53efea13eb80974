package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v2"
	"golang.org/x/time/rate"

	"nostr-universe/internal/metrics"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/types"
)

// PoolConfig tunes relay connections.
type PoolConfig struct {
	FetchTimeout time.Duration // upper bound for one Fetch
	EOSETimeout  time.Duration // Stream reports EOSE after this even if relays stay silent
	IdleTimeout  time.Duration // connections without subscriptions are closed after this
	WriteTimeout time.Duration
	ReqPerSecond float64 // per relay, 0 = unlimited
	ReqBurst     int
	BufferSize   int // events buffered per subscription
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		FetchTimeout: 10 * time.Second,
		EOSETimeout:  5 * time.Second,
		IdleTimeout:  2 * time.Minute,
		WriteTimeout: 10 * time.Second,
		ReqPerSecond: 10,
		ReqBurst:     20,
		BufferSize:   256,
	}
}

// isRelayURLSafe validates that a relay URL is safe to connect to
// Allows localhost for development but blocks other private IP ranges
func isRelayURLSafe(relayURL string) bool {
	parsed, err := url.Parse(relayURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return false
	}

	host := parsed.Hostname()
	if host == "" {
		return false
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable hosts may still be valid externally; block obvious internal names
		return !strings.HasSuffix(host, ".") &&
			!strings.Contains(host, ".local") && !strings.Contains(host, ".internal")
	}
	for _, ip := range ips {
		if !isRelayIPSafe(ip) {
			return false
		}
	}
	return true
}

// isRelayIPSafe allows loopback but blocks private, link-local and metadata ranges
func isRelayIPSafe(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	return !ip.IsPrivate() &&
		!ip.IsLinkLocalUnicast() && !ip.IsLinkLocalMulticast() &&
		!ip.IsUnspecified() && !ip.IsMulticast()
}

// subscription is one REQ on a relay connection. Events precede the close of
// eose in the read loop, so a reader that sees eose closed can drain events
// to get the complete backlog.
type subscription struct {
	id        string
	events    chan types.Event
	eose      chan struct{}
	done      chan struct{}
	eoseOnce  sync.Once
	closeOnce sync.Once
}

func (s *subscription) markEOSE() {
	s.eoseOnce.Do(func() { close(s.eose) })
}

func (s *subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

type okResult struct {
	accepted bool
	message  string
}

// relayConn manages a single websocket connection with multiple subscriptions
type relayConn struct {
	conn         *websocket.Conn
	url          string
	pool         *Pool
	mu           sync.Mutex
	writeMu      sync.Mutex
	subs         map[string]*subscription
	pendingOK    map[string]chan okResult
	closed       bool
	done         chan struct{}
	lastActivity time.Time
}

// Pool manages connections to multiple relays. It is safe for concurrent use
// and must be closed by its owner.
type Pool struct {
	cfg      PoolConfig
	dialer   *websocket.Dialer
	metrics  *metrics.Collector
	limiters *xsync.MapOf[string, *rate.Limiter]

	mu    sync.RWMutex
	conns map[string]*relayConn

	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ Source = (*Pool)(nil)

// NewPool creates a connection pool and starts its idle cleanup loop.
func NewPool(cfg PoolConfig, m *metrics.Collector) *Pool {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultPoolConfig().BufferSize
	}
	p := &Pool{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		metrics:  m,
		limiters: xsync.NewMapOf[*rate.Limiter](),
		conns:    make(map[string]*relayConn),
		stopCh:   make(chan struct{}),
	}
	go p.cleanupLoop()
	return p
}

func (p *Pool) limiter(relayURL string) *rate.Limiter {
	l, _ := p.limiters.LoadOrCompute(relayURL, func() *rate.Limiter {
		if p.cfg.ReqPerSecond <= 0 {
			return rate.NewLimiter(rate.Inf, 0)
		}
		return rate.NewLimiter(rate.Limit(p.cfg.ReqPerSecond), p.cfg.ReqBurst)
	})
	return l
}

func (p *Pool) getOrCreateConn(ctx context.Context, relayURL string) (*relayConn, error) {
	if !isRelayURLSafe(relayURL) {
		return nil, errors.New("relay URL blocked: unsafe destination")
	}

	p.mu.RLock()
	rc := p.conns[relayURL]
	p.mu.RUnlock()
	if rc != nil && !rc.isClosed() {
		return rc, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	rc = p.conns[relayURL]
	if rc != nil && !rc.isClosed() {
		return rc, nil
	}

	slog.Debug("pool: creating new connection", "relay", relayURL)
	conn, _, err := p.dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, err
	}

	rc = &relayConn{
		conn:         conn,
		url:          relayURL,
		pool:         p,
		subs:         make(map[string]*subscription),
		pendingOK:    make(map[string]chan okResult),
		done:         make(chan struct{}),
		lastActivity: time.Now(),
	}
	p.conns[relayURL] = rc
	p.metrics.SetConnections(len(p.conns))

	go rc.readLoop()
	return rc, nil
}

// subscribe opens a REQ on one relay, retrying when a pooled connection
// turns out to be dead.
func (p *Pool) subscribe(ctx context.Context, relayURL string, filter types.Filter) (*relayConn, *subscription, error) {
	if err := p.limiter(relayURL).Wait(ctx); err != nil {
		return nil, nil, err
	}

	const maxRetries = 3
	sub := &subscription{
		id:     uuid.NewString(),
		events: make(chan types.Event, p.cfg.BufferSize),
		eose:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		rc, err := p.getOrCreateConn(ctx, relayURL)
		if err != nil {
			return nil, nil, err
		}

		rc.mu.Lock()
		if rc.closed {
			rc.mu.Unlock()
			p.dropConn(relayURL, rc)
			continue
		}
		rc.subs[sub.id] = sub
		rc.lastActivity = time.Now()
		rc.mu.Unlock()

		if err := rc.writeJSON([]interface{}{"REQ", sub.id, filter}); err != nil {
			lastErr = err
			rc.removeSub(sub.id)
			rc.markClosed()
			p.dropConn(relayURL, rc)
			continue
		}
		return rc, sub, nil
	}

	if lastErr == nil {
		lastErr = errors.New("failed to establish connection after retries")
	}
	return nil, nil, lastErr
}

// unsubscribe sends CLOSE (best effort) and releases the subscription.
func (p *Pool) unsubscribe(rc *relayConn, sub *subscription) {
	if rc.removeSub(sub.id) {
		rc.writeJSON([]interface{}{"CLOSE", sub.id})
	}
	sub.close()
}

func (p *Pool) dropConn(relayURL string, rc *relayConn) {
	p.mu.Lock()
	if p.conns[relayURL] == rc {
		delete(p.conns, relayURL)
	}
	p.metrics.SetConnections(len(p.conns))
	p.mu.Unlock()
}

// Fetch implements Source.
func (p *Pool) Fetch(ctx context.Context, relays []string, filter types.Filter) ([]types.Event, error) {
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}
	if p.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	var reached atomic.Int32
	eventCh := make(chan types.Event, p.cfg.BufferSize)

	for _, relayURL := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			if p.fetchFromRelay(ctx, relayURL, filter, eventCh) {
				reached.Add(1)
			}
		}(relayURL)
	}

	go func() {
		wg.Wait()
		close(eventCh)
	}()

	var events []types.Event
	index := make(map[string]int)
	for evt := range eventCh {
		events = mergeByID(events, index, evt)
	}

	if reached.Load() == 0 {
		return nil, fmt.Errorf("fetch from %d relays: %w", len(relays), ErrNoRelays)
	}
	return events, nil
}

// fetchFromRelay forwards the stored events of one relay. Returns false if
// the relay could not be queried.
func (p *Pool) fetchFromRelay(ctx context.Context, relayURL string, filter types.Filter, out chan<- types.Event) bool {
	rc, sub, err := p.subscribe(ctx, relayURL, filter)
	p.metrics.RecordRelayRequest(relayURL, "req", err)
	if err != nil {
		slog.Debug("pool: subscribe failed", "relay", relayURL, "error", err)
		return false
	}
	defer p.unsubscribe(rc, sub)

	emit := func(evt types.Event) bool {
		select {
		case out <- evt:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case evt := <-sub.events:
			if !emit(evt) {
				return true
			}
		case <-sub.eose:
			drainEvents(sub, emit)
			return true
		case <-sub.done:
			drainEvents(sub, emit)
			return true
		case <-ctx.Done():
			return true
		}
	}
}

func drainEvents(sub *subscription, emit func(types.Event) bool) {
	for {
		select {
		case evt := <-sub.events:
			if !emit(evt) {
				return
			}
		default:
			return
		}
	}
}

type streamLeg struct {
	rc  *relayConn
	sub *subscription
}

// Stream implements Source.
func (p *Pool) Stream(ctx context.Context, relays []string, filter types.Filter) (<-chan Message, error) {
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		legs []streamLeg
	)
	for _, relayURL := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			rc, sub, err := p.subscribe(ctx, relayURL, filter)
			p.metrics.RecordRelayRequest(relayURL, "stream", err)
			if err != nil {
				slog.Debug("pool: stream subscribe failed", "relay", relayURL, "error", err)
				return
			}
			mu.Lock()
			legs = append(legs, streamLeg{rc, sub})
			mu.Unlock()
		}(relayURL)
	}
	wg.Wait()

	if len(legs) == 0 {
		return nil, fmt.Errorf("stream from %d relays: %w", len(relays), ErrNoRelays)
	}

	out := make(chan Message, p.cfg.BufferSize)
	go p.runStream(ctx, legs, out)
	return out, nil
}

// runStream merges legs into out, passing each event id once, and emits a
// single EOSE once every leg has reached end of stored events (or ended), or
// when EOSETimeout fires first.
func (p *Pool) runStream(ctx context.Context, legs []streamLeg, out chan<- Message) {
	defer close(out)

	merged := make(chan Message)
	var wg sync.WaitGroup
	for _, leg := range legs {
		wg.Add(1)
		go func(leg streamLeg) {
			defer wg.Done()
			defer p.unsubscribe(leg.rc, leg.sub)
			forwardLeg(ctx, leg, merged)
		}(leg)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	var timeout <-chan time.Time
	if p.cfg.EOSETimeout > 0 {
		timer := time.NewTimer(p.cfg.EOSETimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	send := func(m Message) bool {
		select {
		case out <- m:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// the same event usually arrives once per relay
	seen := make(map[string]struct{})
	pending := len(legs)
	sentEOSE := false
	fireEOSE := func() bool {
		if sentEOSE {
			return true
		}
		sentEOSE = true
		return send(Message{Type: MessageEOSE})
	}

	for {
		select {
		case m, ok := <-merged:
			if !ok {
				fireEOSE()
				return
			}
			if m.Type == MessageEOSE {
				pending--
				if pending == 0 && !fireEOSE() {
					return
				}
				continue
			}
			if _, dup := seen[m.Event.ID]; dup {
				p.metrics.RecordDroppedEvent("duplicate")
				continue
			}
			seen[m.Event.ID] = struct{}{}
			if !send(m) {
				return
			}
		case <-timeout:
			timeout = nil
			if !fireEOSE() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// forwardLeg copies one relay subscription into merged. It emits exactly one
// EOSE per leg, also when the relay closes the subscription early.
func forwardLeg(ctx context.Context, leg streamLeg, merged chan<- Message) {
	relayURL := leg.rc.url
	emit := func(evt types.Event) bool {
		select {
		case merged <- Message{Type: MessageEvent, Event: evt, Relay: relayURL}:
			return true
		case <-ctx.Done():
			return false
		}
	}
	eoseSent := false
	sendEOSE := func() bool {
		if eoseSent {
			return true
		}
		eoseSent = true
		select {
		case merged <- Message{Type: MessageEOSE, Relay: relayURL}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	eose := leg.sub.eose
	for {
		select {
		case evt := <-leg.sub.events:
			if !emit(evt) {
				return
			}
		case <-eose:
			eose = nil
			drainEvents(leg.sub, emit)
			if !sendEOSE() {
				return
			}
		case <-leg.sub.done:
			drainEvents(leg.sub, emit)
			sendEOSE()
			return
		case <-ctx.Done():
			return
		}
	}
}

// Publish implements Source.
func (p *Pool) Publish(ctx context.Context, relayURL string, evt types.Event) (err error) {
	defer func() { p.metrics.RecordRelayRequest(relayURL, "publish", err) }()

	if err := p.limiter(relayURL).Wait(ctx); err != nil {
		return err
	}
	rc, err := p.getOrCreateConn(ctx, relayURL)
	if err != nil {
		return err
	}

	ch := make(chan okResult, 1)
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return errors.New("connection closed")
	}
	rc.pendingOK[evt.ID] = ch
	rc.lastActivity = time.Now()
	rc.mu.Unlock()
	defer func() {
		rc.mu.Lock()
		delete(rc.pendingOK, evt.ID)
		rc.mu.Unlock()
	}()

	if err := rc.writeJSON([]interface{}{"EVENT", evt}); err != nil {
		rc.markClosed()
		return fmt.Errorf("publish to %s: %w", relayURL, err)
	}

	select {
	case res := <-ch:
		if !res.accepted {
			return fmt.Errorf("relay %s rejected event: %s", relayURL, res.message)
		}
		return nil
	case <-rc.done:
		return fmt.Errorf("publish to %s: connection closed", relayURL)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts every connection down.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*relayConn)
	p.mu.Unlock()

	for _, rc := range conns {
		rc.markClosed()
	}
	p.metrics.SetConnections(0)
}

// ConnectionCount returns the number of pooled connections.
func (p *Pool) ConnectionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.cleanup()
		}
	}
}

// cleanup removes connections that have been idle too long
func (p *Pool) cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for relayURL, rc := range p.conns {
		rc.mu.Lock()
		closed := rc.closed
		idle := len(rc.subs) == 0 && len(rc.pendingOK) == 0 && now.Sub(rc.lastActivity) > p.cfg.IdleTimeout
		rc.mu.Unlock()

		if closed || idle {
			if !closed {
				slog.Debug("pool: closing idle connection", "relay", relayURL)
				rc.markClosed()
			}
			delete(p.conns, relayURL)
		}
	}
	p.metrics.SetConnections(len(p.conns))
}

func (rc *relayConn) isClosed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

func (rc *relayConn) writeJSON(v interface{}) error {
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	if rc.pool.cfg.WriteTimeout > 0 {
		rc.conn.SetWriteDeadline(time.Now().Add(rc.pool.cfg.WriteTimeout))
	}
	return rc.conn.WriteJSON(v)
}

// removeSub reports whether the subscription was still registered.
func (rc *relayConn) removeSub(id string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_, ok := rc.subs[id]
	delete(rc.subs, id)
	rc.lastActivity = time.Now()
	return ok && !rc.closed
}

func (rc *relayConn) sub(id string) *subscription {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.subs[id]
}

// readLoop continuously reads from the connection and routes messages
func (rc *relayConn) readLoop() {
	defer rc.markClosed()

	for {
		var msg []interface{}
		if err := rc.conn.ReadJSON(&msg); err != nil {
			if !rc.isClosed() {
				slog.Debug("pool: read error", "relay", rc.url, "error", err)
			}
			return
		}

		rc.mu.Lock()
		rc.lastActivity = time.Now()
		rc.mu.Unlock()

		if len(msg) < 2 {
			continue
		}
		msgType, _ := msg[0].(string)

		switch msgType {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			subID, _ := msg[1].(string)
			sub := rc.sub(subID)
			if sub == nil {
				continue
			}
			evt, ok := nostr.ParseEventFromInterface(msg[2])
			if !ok {
				rc.pool.metrics.RecordDroppedEvent("invalid")
				continue
			}
			evt.RelaysSeen = []string{rc.url}

			select {
			case sub.events <- evt:
			case <-sub.done:
			default:
				rc.pool.metrics.RecordDroppedEvent("buffer_full")
			}

		case "EOSE":
			subID, _ := msg[1].(string)
			if sub := rc.sub(subID); sub != nil {
				sub.markEOSE()
			}

		case "CLOSED":
			subID, _ := msg[1].(string)
			rc.mu.Lock()
			sub := rc.subs[subID]
			delete(rc.subs, subID)
			rc.mu.Unlock()
			if sub != nil {
				reason := ""
				if len(msg) >= 3 {
					reason, _ = msg[2].(string)
				}
				slog.Debug("pool: subscription closed by relay", "relay", rc.url, "reason", reason)
				sub.close()
			}

		case "OK":
			if len(msg) < 3 {
				continue
			}
			eventID, _ := msg[1].(string)
			accepted, _ := msg[2].(bool)
			message := ""
			if len(msg) >= 4 {
				message, _ = msg[3].(string)
			}
			rc.mu.Lock()
			ch := rc.pendingOK[eventID]
			rc.mu.Unlock()
			if ch != nil {
				select {
				case ch <- okResult{accepted: accepted, message: message}:
				default:
				}
			}

		case "NOTICE":
			notice, _ := msg[1].(string)
			slog.Debug("pool: notice", "relay", rc.url, "notice", notice)
		}
	}
}

// markClosed marks the connection as closed and releases all subscriptions
func (rc *relayConn) markClosed() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.done)
	rc.conn.Close()

	for _, sub := range rc.subs {
		sub.close()
	}
	rc.subs = make(map[string]*subscription)
}
