// Package wsmesh is the WebSocket-backed idchannel.Transport, for peers
// that need to cross a browser or plain HTTP boundary rather than a gRPC
// one. A WebRTC data channel is just "push inbound messages onto an
// unbounded queue, send outbound ones directly," which is exactly the
// shape idchannel.Transport already asks for — wsmesh is that shape over
// github.com/fasthttp/websocket instead.
package wsmesh

import (
	"context"
	"net/http"
	"sync"

	"github.com/fasthttp/websocket"

	"github.com/kindmesh/kindmesh/internal/meshlog"
	"github.com/kindmesh/kindmesh/meshobserve"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Transport is an idchannel.Transport backed by one WebSocket connection.
type Transport struct {
	conn *websocket.Conn
	log  meshlog.Logger

	in chan []byte

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	err    error
}

func newTransport(conn *websocket.Conn, log meshlog.Logger) *Transport {
	t := &Transport{
		conn: conn,
		log:  meshlog.OrDefault(log),
		in:   make(chan []byte, 64),
	}
	go t.recvLoop()
	return t
}

func (t *Transport) recvLoop() {
	defer close(t.in)
	for {
		kind, payload, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if !t.closed {
				t.err = err
			}
			t.mu.Unlock()
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		meshobserve.RecordTransportRequest("wsmesh", "recv")
		t.in <- payload
	}
}

// Dial connects to a wsmesh server at url and returns its Transport (the
// active side: pass active=true to idchannel.NewWith for it).
func Dial(ctx context.Context, url string, log meshlog.Logger, header http.Header) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return newTransport(conn, log), nil
}

// Accept upgrades an incoming HTTP request to a WebSocket connection and
// returns its Transport (the passive side).
func Accept(w http.ResponseWriter, r *http.Request, log meshlog.Logger) (*Transport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newTransport(conn, log), nil
}

func (t *Transport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return websocket.ErrCloseSent
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	err := t.conn.WriteMessage(websocket.BinaryMessage, frame)
	status := "ok"
	if err != nil {
		status = "error"
	}
	meshobserve.RecordTransportRequest("wsmesh", status)
	return err
}

func (t *Transport) Frames() <-chan []byte { return t.in }

func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}
