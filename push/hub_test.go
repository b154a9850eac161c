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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// echo pushes every message back to its sender.
type echo struct {
	hub          *Hub
	connected    chan string
	disconnected chan string
}

func newEcho() *echo {
	return &echo{
		connected:    make(chan string, 4),
		disconnected: make(chan string, 4),
	}
}

func (e *echo) Connect(ctx context.Context, id string, r *http.Request) error {
	if r.URL.Query().Get("app") == "" {
		return errors.New("missing app")
	}
	e.connected <- id
	return nil
}

func (e *echo) Disconnect(ctx context.Context, id string) {
	e.disconnected <- id
}

func (e *echo) Message(ctx context.Context, id string, msg []byte) {
	e.hub.Push(ctx, id, append([]byte("echo "), msg...))
}

func serve(t *testing.T) (*Hub, *echo, string) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e := newEcho()
	h := NewHub(ctx, e, zerolog.Nop())
	e.hub = h

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return h, e, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recv(t *testing.T, ch chan string) string {
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
	return ""
}

func TestHubRoundTrip(t *testing.T) {
	h, e, url := serve(t)

	c, _, err := websocket.DefaultDialer.Dial(url+"/?app=simpsons", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	id := recv(t, e.connected)

	if err = c.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != "echo hello" {
		t.Fatal(string(msg))
	}

	if err = h.Push(context.Background(), id, []byte(`{"Action":"KeepAlive"}`)); err != nil {
		t.Fatal(err)
	}
	if _, msg, err = c.ReadMessage(); err != nil {
		t.Fatal(err)
	}
	if string(msg) != `{"Action":"KeepAlive"}` {
		t.Fatal(string(msg))
	}

	c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if gone := recv(t, e.disconnected); gone != id {
		t.Fatalf("%s != %s", gone, id)
	}

	if err = h.Push(context.Background(), id, []byte("late")); err != ErrGone {
		t.Fatalf("got %v", err)
	}
}

func TestHubRefusal(t *testing.T) {
	_, _, url := serve(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"/", nil)
	if err == nil {
		t.Fatal("should have been refused")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("%#v", resp)
	}
}

func TestHubDistinctIds(t *testing.T) {
	_, e, url := serve(t)

	for i := 0; i < 2; i++ {
		c, _, err := websocket.DefaultDialer.Dial(url+"/?app=x", nil)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
	}
	if a, b := recv(t, e.connected), recv(t, e.connected); a == b {
		t.Fatalf("both connections are %s", a)
	}
}

func TestHubPushUnknown(t *testing.T) {
	h := NewHub(context.Background(), newEcho(), zerolog.Nop())
	if err := h.Push(context.Background(), "nobody", nil); err != ErrGone {
		t.Fatal(err)
	}
}

func TestHubBlocked(t *testing.T) {
	h := NewHub(context.Background(), newEcho(), zerolog.Nop())
	h.conns.Store("slow", &conn{
		out:  make(chan []byte, 1),
		done: make(chan struct{}),
	})
	if err := h.Push(context.Background(), "slow", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := h.Push(context.Background(), "slow", []byte("2")); err != ErrBlocked {
		t.Fatalf("got %v", err)
	}
}

func TestHubZeroValue(t *testing.T) {
	e := newEcho()
	h := &Hub{Handler: e}
	e.hub = h

	srv := httptest.NewServer(h)
	defer srv.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/?app=simpsons", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	id := recv(t, e.connected)

	if err = c.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != "echo hello" {
		t.Fatal(string(msg))
	}

	c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if gone := recv(t, e.disconnected); gone != id {
		t.Fatalf("%s != %s", gone, id)
	}
}
