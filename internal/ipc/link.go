package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// MaxMessageSize leaves room for a 25 MiB asset after base64 encoding.
	MaxMessageSize = 40 * 1024 * 1024
)

// NewUpgrader accepts websocket connections from a remote capture page
// whose Origin is in allowed.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 32 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			return OriginAllowed(r, allowed)
		},
	}
}

// OriginAllowed reports whether a handshake may proceed. Browsers always
// send Origin, so a request without one is a native client. Any origin not
// listed is refused; an empty list refuses every browser page.
func OriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	origin = strings.TrimSuffix(strings.ToLower(origin), "/")
	for _, a := range allowed {
		if strings.TrimSuffix(strings.ToLower(strings.TrimSpace(a)), "/") == origin {
			return true
		}
	}
	return false
}

// Link relays envelopes between a websocket peer and a pair of local
// channels: frames read from the socket go to inbound, envelopes accepted by
// outbound are written to the socket.
type Link struct {
	conn     *websocket.Conn
	inbound  *Channel
	outbound *Channel
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

// NewLink wraps an established websocket connection.
func NewLink(conn *websocket.Conn, inbound, outbound *Channel) *Link {
	return &Link{
		conn:     conn,
		inbound:  inbound,
		outbound: outbound,
		send:     make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

// Dial connects to a controller's link endpoint.
func Dial(ctx context.Context, url string, inbound, outbound *Channel) (*Link, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", url, err)
	}
	return NewLink(conn, inbound, outbound), nil
}

// Run pumps frames in both directions until the connection closes or ctx
// is done.
func (l *Link) Run(ctx context.Context) error {
	untap := l.outbound.Tap(func(env Envelope) {
		data, err := json.Marshal(env)
		if err != nil {
			log.WithError(err).Warn("link: marshal envelope")
			return
		}
		select {
		case l.send <- data:
		default:
			log.WithField("action", env.Action).Warn("link: send buffer full, envelope dropped")
		}
	})
	defer untap()

	go l.writePump()
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-l.done:
		}
	}()

	return l.readPump()
}

// Close terminates the link.
func (l *Link) Close() {
	l.stopOnce.Do(func() {
		close(l.done)
		_ = l.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = l.conn.Close()
	})
}

func (l *Link) readPump() error {
	defer l.Close()

	l.conn.SetReadLimit(MaxMessageSize)
	_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("ipc: link read: %w", err)
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.WithError(err).Warn("link: malformed envelope ignored")
			continue
		}
		if err := l.inbound.Deliver(env); err != nil {
			log.WithError(err).WithField("action", env.Action).Warn("link: inbound delivery failed")
		}
	}
}

func (l *Link) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case data := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).Warn("link: write failed")
				l.Close()
				return
			}
		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.Close()
				return
			}
		}
	}
}
