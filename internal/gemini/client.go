// Package gemini implements the duplex transport channel to the Gemini Live
// service: ordered fire-and-forget sends of captured audio and an ordered
// stream of server events.
package gemini

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/charvoice/platform/internal/errors"
	"github.com/charvoice/platform/internal/pcm"
	"github.com/charvoice/platform/internal/trace"
)

const (
	bidiPath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// Inbound audio chunks run well past the websocket default read limit.
	maxMessageBytes = 8 << 20

	eventBuffer = 64
)

// EventKind tags a server event.
type EventKind int

const (
	// EventOpen: setup handshake completed, the channel is live.
	EventOpen EventKind = iota
	// EventInputTranscript carries a fragment of the user's speech.
	EventInputTranscript
	// EventOutputTranscript carries a fragment of the model's speech.
	EventOutputTranscript
	// EventAudio carries one encoded chunk of synthesized audio.
	EventAudio
	// EventClosed: the connection ended normally.
	EventClosed
	// EventError: the connection failed; Err holds the reason. Terminal.
	EventError
)

// Event is one entry of the ordered server event stream.
type Event struct {
	Kind  EventKind
	Text  string
	Audio pcm.Chunk
	Err   error
}

// Config describes one live connection.
type Config struct {
	APIKey string
	Host   string
	Model  string

	Voice               string
	SystemInstruction   string
	InputTranscription  bool
	OutputTranscription bool

	// Endpoint overrides the derived wss URL; used by tests and proxies.
	Endpoint string
}

// Channel is a single persistent duplex connection to the live service.
// Sends are queued in order from the moment the channel is created; the
// writer flushes them once the setup handshake completes. Events are
// delivered strictly in network arrival order.
type Channel struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []realtimeInputMessage
	conn    *websocket.Conn
	closing bool

	events    chan Event
	writeOnce sync.Once
	closeOnce sync.Once
}

// NewChannel creates an unopened channel. Send may be called immediately;
// frames queue until the connection completes.
func NewChannel(cfg Config) *Channel {
	base, _ := trace.Ensure(context.Background())
	ctx, cancel := context.WithCancel(base)
	c := &Channel{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, eventBuffer),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Events returns the ordered server event stream. The channel is closed
// after EventClosed or EventError.
func (c *Channel) Events() <-chan Event { return c.events }

// Open dials the service and runs the session handshake asynchronously.
// Progress and failure surface on Events.
func (c *Channel) Open() {
	go c.run()
}

func (c *Channel) url() string {
	if c.cfg.Endpoint != "" {
		return c.cfg.Endpoint
	}
	u := url.URL{
		Scheme:   "wss",
		Host:     c.cfg.Host,
		Path:     bidiPath,
		RawQuery: "key=" + url.QueryEscape(c.cfg.APIKey),
	}
	return u.String()
}

func (c *Channel) run() {
	defer close(c.events)
	defer c.cancel()
	log := trace.Logger(c.ctx)

	conn, _, err := websocket.Dial(c.ctx, c.url(), nil)
	if err != nil {
		c.abort()
		wrapped := errors.Wrap(err, errors.CodeConnectionError, "live dial failed").
			WithMetadata("host", c.cfg.Host)
		c.emit(Event{Kind: EventError, Err: wrapped})
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "closed before open")
		c.emit(Event{Kind: EventClosed})
		return
	}
	c.conn = conn
	c.mu.Unlock()

	if err := wsjson.Write(c.ctx, conn, newSetupMessage(c.cfg)); err != nil {
		c.abort()
		c.emit(Event{Kind: EventError, Err: errors.Wrap(err, errors.CodeConnectionError, "session setup failed")})
		_ = conn.Close(websocket.StatusInternalError, "setup failed")
		return
	}

	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.closing = true
			c.cond.Broadcast()
			c.mu.Unlock()

			if closing {
				c.emit(Event{Kind: EventClosed})
			} else {
				c.emit(Event{Kind: EventError, Err: errors.Wrap(err, errors.CodeConnectionError, "live connection dropped")})
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("unparseable server message", "error", err)
			continue
		}
		c.dispatch(msg, conn)
	}
}

// dispatch converts one wire message into events, preserving the order the
// fields carry on the wire: transcripts first, then audio parts.
func (c *Channel) dispatch(msg serverMessage, conn *websocket.Conn) {
	if msg.SetupComplete != nil {
		// Queued frames stay held until the handshake is acknowledged.
		c.writeOnce.Do(func() { go c.writeLoop(conn) })
		c.emit(Event{Kind: EventOpen})
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			c.emit(Event{Kind: EventInputTranscript, Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			c.emit(Event{Kind: EventOutputTranscript, Text: sc.OutputTranscription.Text})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && part.InlineData.Data != "" {
					c.emit(Event{Kind: EventAudio, Audio: pcm.Chunk{
						Data:     part.InlineData.Data,
						MIMEType: part.InlineData.MIMEType,
					}})
				}
			}
		}
	}
	if msg.GoAway != nil {
		trace.Logger(c.ctx).Info("server requested disconnect", "time_left", msg.GoAway.TimeLeft)
	}
}

// abort marks the channel closing so no further sends queue up.
func (c *Channel) abort() {
	c.mu.Lock()
	c.closing = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Channel) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// Send queues one encoded frame for in-order transmission. Fire-and-forget:
// it never blocks on the network. Returns SendError once close has begun.
func (c *Channel) Send(chunk pcm.Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return errors.New(errors.CodeSendError, "channel is closing")
	}
	c.queue = append(c.queue, realtimeInputMessage{
		RealtimeInput: realtimeInput{MediaChunks: []pcm.Chunk{chunk}},
	})
	c.cond.Signal()
	return nil
}

func (c *Channel) writeLoop(conn *websocket.Conn) {
	log := trace.Logger(c.ctx)
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closing {
			c.cond.Wait()
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		msg := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if err := wsjson.Write(c.ctx, conn, msg); err != nil {
			// Individual frame loss is recoverable; capture keeps pace and
			// the reader decides whether the connection itself is gone.
			log.Debug("frame send failed", "error", errors.Wrap(err, errors.CodeSendError, "write failed"))
		}
	}
}

// Close requests graceful shutdown. Idempotent and non-blocking from the
// caller's perspective: no further sends are accepted, the peer is sent a
// normal closure, and the event stream terminates shortly after.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.cond.Broadcast()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			// Closing the connection unblocks the reader, which then emits
			// EventClosed and terminates the stream.
			_ = conn.Close(websocket.StatusNormalClosure, "session ended")
		} else {
			// Still dialing; abort the dial.
			c.cancel()
		}
	})
}
