// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package report

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ttbt-io/uicheck/runner"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024

	eventBuffer  = 1024
	clientBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Message types of the event stream.
const (
	MsgTypeEvent     = "EVENT"
	MsgTypeSubscribe = "SUBSCRIBE"
	MsgTypePing      = "PING"
	MsgTypePong      = "PONG"
	MsgTypeError     = "ERROR"
)

// Message is the unit of the event stream in both directions. Clients send
// PING and SUBSCRIBE; the hub sends EVENT, PONG and ERROR.
type Message struct {
	Type     string          `json:"type"`
	Run      string          `json:"run,omitempty"`
	Scenario string          `json:"scenario,omitempty"`
	Event    *runner.Event   `json:"event,omitempty"`
	Summary  *runner.Summary `json:"summary,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// filter selects the events a client receives. Empty fields match all.
type filter struct {
	run      string
	scenario string
}

func (f filter) match(e runner.Event) bool {
	return (f.run == "" || f.run == e.RunID) && (f.scenario == "" || f.scenario == e.Scenario)
}

type hubRequest struct {
	client *wsClient
	msg    Message
}

// Hub fans runner events out to websocket clients. It is a runner.Observer.
type Hub struct {
	Debug bool

	clients    map[*wsClient]filter
	register   chan *wsClient
	unregister chan *wsClient
	requests   chan hubRequest
	events     chan runner.Event
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]filter),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		requests:   make(chan hubRequest),
		events:     make(chan runner.Event, eventBuffer),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done. The hub owns every client's send
// channel; only this goroutine writes to or closes it.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = c.initial
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case req := <-h.requests:
			h.handleRequest(req)
		case e := <-h.events:
			h.broadcast(e)
		}
	}
}

func (h *Hub) handleRequest(req hubRequest) {
	c := req.client
	if _, ok := h.clients[c]; !ok {
		return
	}
	switch req.msg.Type {
	case MsgTypePing:
		h.send(c, Message{Type: MsgTypePong})
	case MsgTypeSubscribe:
		h.clients[c] = filter{run: req.msg.Run, scenario: req.msg.Scenario}
	default:
		h.send(c, Message{Type: MsgTypeError, Error: "Unknown message type"})
	}
}

func (h *Hub) broadcast(e runner.Event) {
	msg := Message{Type: MsgTypeEvent}
	if e.Result != nil {
		sum := e.Result.Summary()
		msg.Summary = &sum
		e.Result = nil
	}
	msg.Event = &e
	for c, f := range h.clients {
		if f.match(e) {
			h.send(c, msg)
		}
	}
}

// send drops clients that cannot keep up.
func (h *Hub) send(c *wsClient, msg Message) {
	select {
	case c.send <- msg:
	default:
		if h.Debug {
			log.Printf("[HUB] dropping slow client %s", c.conn.RemoteAddr())
		}
		delete(h.clients, c)
		close(c.send)
	}
}

// Observe queues e for delivery without blocking the runner.
func (h *Hub) Observe(e runner.Event) {
	select {
	case <-h.done:
	case h.events <- e:
	default:
		log.Printf("[HUB] event queue full, dropped %s event of run %s", e.Type, e.RunID)
	}
}

// wsClient is a middleman between the websocket connection and the hub.
type wsClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan Message
	initial filter
}

// toHub delivers a request unless the hub has stopped.
func (c *wsClient) toHub(req hubRequest) bool {
	select {
	case c.hub.requests <- req:
		return true
	case <-c.hub.done:
		return false
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[HUB] read error: %v", err)
			}
			return
		}
		if !c.toHub(hubRequest{client: c, msg: msg}) {
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the request and streams events to the peer. The run and
// scenario query parameters set the initial filter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "Event stream closed", http.StatusServiceUnavailable)
		return
	default:
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[HUB] upgrade: %v", err)
		return
	}
	q := r.URL.Query()
	c := &wsClient{
		hub:     h,
		conn:    conn,
		send:    make(chan Message, clientBuffer),
		initial: filter{run: q.Get("run"), scenario: q.Get("scenario")},
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
