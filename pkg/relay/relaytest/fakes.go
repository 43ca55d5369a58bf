// Package relaytest provides in-memory collaborators for exercising a relay.Manager
// without network access.
package relaytest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/harun/companion/pkg/relay"
)

var ErrConnClosed = errors.New("relaytest: connection closed")

// Upstream is a relay.Dialer whose connections stay in memory.
type Upstream struct {
	// Respond, when set, is called for every frame sent upstream and the returned
	// events are delivered to the listener.
	Respond func(frame relay.Frame) []relay.Event
	// DialErr fails every dial.
	DialErr error
	// IgnoreCancel makes Recv block until the connection is closed, ignoring context
	// cancellation.
	IgnoreCancel bool

	mu    sync.Mutex
	conns []*Conn
	dials chan *Conn
}

// NewUpstream creates an upstream that answers frames with respond
func NewUpstream(respond func(frame relay.Frame) []relay.Event) *Upstream {
	return &Upstream{Respond: respond, dials: make(chan *Conn, 16)}
}

// EchoText answers every frame with a text event holding the frame payload
func EchoText(frame relay.Frame) []relay.Event {
	return []relay.Event{{Kind: relay.EventText, Text: string(frame.Data)}}
}

func (u *Upstream) Dial(ctx context.Context) (relay.UpstreamConn, error) {
	if u.DialErr != nil {
		return nil, u.DialErr
	}
	c := &Conn{
		respond:      u.Respond,
		ignoreCancel: u.IgnoreCancel,
		events:       make(chan relay.Event, 64),
		closed:       make(chan struct{}),
		dropped:      make(chan struct{}),
	}

	u.mu.Lock()
	u.conns = append(u.conns, c)
	dials := u.dials
	u.mu.Unlock()

	if dials != nil {
		select {
		case dials <- c:
		default:
		}
	}
	return c, nil
}

// Dials delivers every connection as it is dialed
func (u *Upstream) Dials() <-chan *Conn {
	return u.dials
}

// Conns returns every connection dialed so far
func (u *Upstream) Conns() []*Conn {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*Conn(nil), u.conns...)
}

// Conn is one in-memory upstream connection.
type Conn struct {
	respond      func(relay.Frame) []relay.Event
	ignoreCancel bool

	mu        sync.Mutex
	sent      []relay.Frame
	events    chan relay.Event
	closed    chan struct{}
	closeOnce sync.Once
	dropped   chan struct{}
	dropOnce  sync.Once
}

func (c *Conn) Send(ctx context.Context, frame relay.Frame) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	case <-c.dropped:
		return ErrConnClosed
	default:
	}

	c.mu.Lock()
	c.sent = append(c.sent, relay.Frame{Data: append([]byte(nil), frame.Data...), Text: frame.Text})
	c.mu.Unlock()

	if c.respond != nil {
		for _, evt := range c.respond(frame) {
			c.Emit(evt)
		}
	}
	return nil
}

func (c *Conn) Recv(ctx context.Context) (relay.Event, error) {
	done := ctx.Done()
	if c.ignoreCancel {
		done = nil
	}

	// Queued events win over a drop so nothing emitted before Drop is lost.
	select {
	case evt := <-c.events:
		return evt, nil
	default:
	}

	select {
	case evt := <-c.events:
		return evt, nil
	case <-c.dropped:
		return relay.Event{}, io.EOF
	case <-c.closed:
		return relay.Event{}, ErrConnClosed
	case <-done:
		return relay.Event{}, ctx.Err()
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Emit queues an event for the listener
func (c *Conn) Emit(evt relay.Event) {
	c.events <- evt
}

// Drop simulates the service closing the connection
func (c *Conn) Drop() {
	c.dropOnce.Do(func() { close(c.dropped) })
}

// Closed is closed once the relay has closed the connection
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Sent returns the frames received so far
func (c *Conn) Sent() []relay.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]relay.Frame(nil), c.sent...)
}

// Source is a relay.FrameSource fed by the test.
type Source struct {
	frames  chan relay.Frame
	endOnce sync.Once
	end     chan struct{}
	err     error
}

func NewSource() *Source {
	return &Source{frames: make(chan relay.Frame, 64), end: make(chan struct{})}
}

// Push queues a binary frame
func (s *Source) Push(data []byte) {
	s.frames <- relay.Frame{Data: data}
}

// End makes ReadFrame report io.EOF once queued frames are consumed
func (s *Source) End() {
	s.Fail(io.EOF)
}

// Fail makes ReadFrame return err once queued frames are consumed
func (s *Source) Fail(err error) {
	s.endOnce.Do(func() {
		s.err = err
		close(s.end)
	})
}

func (s *Source) ReadFrame(ctx context.Context) (relay.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	default:
	}

	select {
	case f := <-s.frames:
		return f, nil
	case <-s.end:
		return relay.Frame{}, s.err
	case <-ctx.Done():
		return relay.Frame{}, ctx.Err()
	}
}

// Analyzer records requests and answers with Feedback.
type Analyzer struct {
	Feedback string
	Err      error

	mu       sync.Mutex
	requests []relay.AnalysisRequest
}

func (a *Analyzer) Analyze(ctx context.Context, req relay.AnalysisRequest) (string, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	if a.Err != nil {
		return "", a.Err
	}
	return a.Feedback, nil
}

// Requests returns the analysis requests seen so far
func (a *Analyzer) Requests() []relay.AnalysisRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]relay.AnalysisRequest(nil), a.requests...)
}

// Synthesizer records texts and answers with Audio.
type Synthesizer struct {
	Audio  []byte
	Format string
	Err    error

	mu    sync.Mutex
	texts []string
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (relay.Speech, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	if s.Err != nil {
		return relay.Speech{}, s.Err
	}
	return relay.Speech{Audio: s.Audio, Format: s.Format}, nil
}

// Texts returns the texts synthesized so far
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// History is an in-memory relay.HistoryStore.
type History struct {
	LoadErr   error
	AppendErr error

	mu    sync.Mutex
	turns map[string][]relay.Turn
}

func (h *History) Load(ctx context.Context, topicRef string) ([]relay.Turn, error) {
	if h.LoadErr != nil {
		return nil, h.LoadErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]relay.Turn(nil), h.turns[topicRef]...), nil
}

func (h *History) Append(ctx context.Context, turn relay.Turn) error {
	if h.AppendErr != nil {
		return h.AppendErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.turns == nil {
		h.turns = make(map[string][]relay.Turn)
	}
	h.turns[turn.TopicRef] = append(h.turns[turn.TopicRef], turn)
	return nil
}

// Concepts is a map-backed relay.ConceptResolver.
type Concepts map[string]relay.Concept

func (c Concepts) Lookup(id string) (relay.Concept, bool) {
	concept, ok := c[id]
	return concept, ok
}

func (c Concepts) List() []relay.Concept {
	list := make([]relay.Concept, 0, len(c))
	for _, concept := range c {
		list = append(list, concept)
	}
	return list
}
