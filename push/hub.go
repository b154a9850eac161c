/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package push

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultQueueSize is the outbound queue length per connection.
const DefaultQueueSize = 32

// Handler hears about a Hub's connections.
type Handler interface {
	// Connect is called before the connection is upgraded.  An
	// error refuses the connection.
	Connect(ctx context.Context, id string, r *http.Request) error

	// Disconnect is called once the connection is gone.
	Disconnect(ctx context.Context, id string)

	// Message is called for each message the subscriber sends.
	Message(ctx context.Context, id string, msg []byte)
}

// Hub is a WebSocket server that hands out connection ids and pushes
// payloads to connections by id.
//
// Use NewHub so that connections close when its context is done.
type Hub struct {
	Log     zerolog.Logger
	Handler Handler

	// QueueSize is the number of payloads that can wait for a slow
	// connection.  Less than one means DefaultQueueSize.
	QueueSize int

	WriteTimeout time.Duration

	Upgrader websocket.Upgrader

	ctx   context.Context
	conns sync.Map
}

type conn struct {
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
}

// NewHub makes a Hub.  Connections close when the context is done.
func NewHub(ctx context.Context, h Handler, log zerolog.Logger) *Hub {
	return &Hub{
		Log:          log,
		Handler:      h,
		QueueSize:    DefaultQueueSize,
		WriteTimeout: 10 * time.Second,
		ctx:          ctx,
	}
}

// Push queues the payload for the connection.
func (h *Hub) Push(ctx context.Context, id string, payload []byte) error {
	x, have := h.conns.Load(id)
	if !have {
		return ErrGone
	}
	c := x.(*conn)
	select {
	case <-c.done:
		return ErrGone
	default:
	}
	select {
	case c.out <- payload:
		return nil
	default:
		return ErrBlocked
	}
}

// ServeHTTP upgrades the request and serves the connection until it
// closes.  A Hub made without NewHub still works: its connections just
// never see a done context.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := h.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	id := uuid.New().String()
	log := h.Log.With().Str("conn", id).Logger()

	if err := h.Handler.Connect(ctx, id, r); err != nil {
		log.Info().Err(err).Msg("connection refused")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already responded.
		log.Warn().Err(err).Msg("upgrade error")
		h.Handler.Disconnect(ctx, id)
		return
	}

	c := &conn{
		ws:   ws,
		out:  make(chan []byte, h.queueSize()),
		done: make(chan struct{}),
	}
	h.conns.Store(id, c)
	log.Debug().Str("remote", r.RemoteAddr).Msg("connected")

	go h.write(ctx, log, c)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Err(err).Msg("read error")
			}
			break
		}
		h.Handler.Message(ctx, id, message)
	}

	h.conns.Delete(id)
	close(c.done)
	ws.Close()
	h.Handler.Disconnect(ctx, id)
	log.Debug().Msg("disconnected")
}

func (h *Hub) queueSize() int {
	if h.QueueSize < 1 {
		return DefaultQueueSize
	}
	return h.QueueSize
}

// write is the only goroutine that writes to the connection.
func (h *Hub) write(ctx context.Context, log zerolog.Logger, c *conn) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			c.ws.Close()
			return
		case bs := <-c.out:
			if 0 < h.WriteTimeout {
				c.ws.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, bs); err != nil {
				log.Warn().Err(err).Msg("write error")
				c.ws.Close()
				return
			}
		}
	}
}
