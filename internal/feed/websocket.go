package feed

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/spectrum-streamer/internal/pubsub"
	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/spectrum"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Source is the part of the engine a feed consumes
type Source interface {
	Replay() []*sdr.Sample
	Subscribe() *pubsub.Subscription[sweep.Event]
	Unsubscribe(sub *pubsub.Subscription[sweep.Event])
}

// WithLogger sets the logger for a feed
func WithLogger(logger *slog.Logger) func(f *feedOptions) {
	return func(f *feedOptions) {
		f.logger = logger
	}
}

// WithCheckOrigin sets the WebSocket origin check. All origins are accepted by default.
func WithCheckOrigin(fn func(r *http.Request) bool) func(f *feedOptions) {
	return func(f *feedOptions) {
		f.checkOrigin = fn
	}
}

type feedOptions struct {
	logger      *slog.Logger
	checkOrigin func(r *http.Request) bool
}

func newFeedOptions(options []func(f *feedOptions)) feedOptions {
	o := feedOptions{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		checkOrigin: func(r *http.Request) bool { return true },
	}
	for _, option := range options {
		option(&o)
	}
	return o
}

// WebSocketHandler streams engine events to WebSocket clients. A client first
// receives the buffered samples in arrival order, then live events. Clients
// that connect with ?samples=false only receive status and error messages.
type WebSocketHandler struct {
	source   Source
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(source Source, options ...func(f *feedOptions)) *WebSocketHandler {
	o := newFeedOptions(options)

	return &WebSocketHandler{
		source: source,
		logger: o.logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     o.checkOrigin,
		},
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withSamples := r.URL.Query().Get("samples") != "false"

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("websocket upgrade failed: %s", err.Error()), slog.String("remote", r.RemoteAddr))
		return
	}

	// Subscribe before taking the replay so no sample falls in between
	sub := h.source.Subscribe()
	defer h.source.Unsubscribe(sub)

	h.logger.Info("feed client connected",
		slog.String("remote", r.RemoteAddr),
		slog.String("subscription", sub.ID.String()))

	c := client{conn: conn, sub: sub, withSamples: withSamples, done: make(chan struct{})}
	go c.readPump()

	if withSamples {
		c.replayed = h.replay(&c)
	}

	if err = c.writePump(); err != nil {
		h.logger.Debug(fmt.Sprintf("feed client write failed: %s", err.Error()), slog.String("remote", r.RemoteAddr))
	}

	h.logger.Info("feed client disconnected",
		slog.String("remote", r.RemoteAddr),
		slog.Uint64("dropped", sub.Dropped()))
}

func (h *WebSocketHandler) replay(c *client) map[*sdr.Sample]struct{} {
	samples := h.source.Replay()
	replayed := make(map[*sdr.Sample]struct{}, len(samples))

	for _, s := range samples {
		if err := c.write(spectrum.ReplayMessage(s)); err != nil {
			return replayed
		}
		replayed[s] = struct{}{}
	}
	return replayed
}

// client is a middleman between the websocket connection and a subscription
type client struct {
	conn        *websocket.Conn
	sub         *pubsub.Subscription[sweep.Event]
	withSamples bool

	// replayed holds samples already sent from the replay buffer; live copies
	// of them are skipped
	replayed map[*sdr.Sample]struct{}

	done chan struct{}
}

// readPump discards client messages and keeps the read deadline moving on pongs
func (c *client) readPump() {
	defer close(c.done)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps events from the subscription to the websocket connection.
func (c *client) writePump() error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.C:
			if !ok {
				// The engine closed the subscription
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "engine stopped"))
				return nil
			}

			if se, isSample := ev.(sweep.SampleEvent); isSample {
				if !c.withSamples {
					continue
				}
				if _, seen := c.replayed[se.Sample]; seen {
					continue
				}
				c.replayed = nil
			}

			msg, err := spectrum.FromEvent(ev)
			if err != nil {
				continue
			}
			if err = c.write(msg); err != nil {
				return err
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}

		case <-c.done:
			return nil
		}
	}
}

func (c *client) write(msg spectrum.Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}
