package broker

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Pump timing constants, grounded directly on the teacher pack's
// websocket chat system (fs5mha-websocket-chat-system-memory-leak-bug-fix),
// adapted to spec.md §5's 30s keep-alive / 10min inactivity cap instead of
// the chat system's 60s/10s pair.
const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	inactivityCap  = 10 * time.Minute
	maxMessageSize = 4096
	sendBufferSize = 256
)

// ErrAlreadyAttached is returned by Attach when a live incumbent viewer
// already occupies the single slot.
var ErrAlreadyAttached = errors.New("broker: a viewer is already attached")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// viewer wraps the single attached websocket connection with its pumps.
type viewer struct {
	conn   *websocket.Conn
	send   chan Envelope
	closed chan struct{}
	once   sync.Once
}

func (v *viewer) close() {
	v.once.Do(func() {
		close(v.closed)
		v.conn.Close()
	})
}

// LiveBroker is the single-slot live-telemetry viewer described in
// spec.md §4.D: at most one attached viewer, best-effort lossy publish,
// probe-then-evict liveness policy on a new attach attempt.
type LiveBroker struct {
	mu     sync.Mutex
	slot   *viewer
	logger *slog.Logger
}

// NewLiveBroker returns an empty broker.
func NewLiveBroker(logger *slog.Logger) *LiveBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveBroker{logger: logger}
}

// Attach upgrades r into a websocket connection and installs it as the
// sole viewer, evicting an unresponsive incumbent or rejecting with
// ErrAlreadyAttached if the incumbent answers a liveness probe.
func (b *LiveBroker) Attach(w http.ResponseWriter, r *http.Request, history []Envelope) error {
	b.mu.Lock()
	if b.slot != nil {
		if b.probeLocked(b.slot) {
			b.mu.Unlock()
			return ErrAlreadyAttached
		}
		b.slot.close()
		b.slot = nil
	}
	b.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	v := &viewer{
		conn:   conn,
		send:   make(chan Envelope, sendBufferSize),
		closed: make(chan struct{}),
	}

	b.mu.Lock()
	b.slot = v
	b.mu.Unlock()

	go b.writePump(v)
	go b.readPump(v)

	for _, env := range history {
		b.enqueue(v, env)
	}
	return nil
}

// probeLocked sends a non-blocking ping to the incumbent and reports
// whether the send succeeded — a failure means the incumbent is dead and
// should be evicted. Caller holds b.mu.
func (b *LiveBroker) probeLocked(v *viewer) bool {
	select {
	case v.send <- Envelope{Type: EnvelopePing, Timestamp: time.Now().UnixMilli()}:
		return true
	default:
		return false
	}
}

// Detach clears the slot if it currently holds v (a no-op otherwise,
// which avoids racing a newer Attach that replaced v already).
func (b *LiveBroker) Detach(v *viewer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.slot == v {
		b.slot = nil
	}
}

// Publish best-effort delivers env to the current viewer, if any. A full
// send buffer drops the frame and logs at debug, matching spec.md's
// explicit non-back-pressure policy for telemetry.
func (b *LiveBroker) Publish(env Envelope) {
	b.mu.Lock()
	v := b.slot
	b.mu.Unlock()
	if v == nil {
		return
	}
	b.enqueue(v, env)
}

func (b *LiveBroker) enqueue(v *viewer, env Envelope) {
	select {
	case v.send <- env:
	default:
		b.logger.Debug("live broker: dropping frame, viewer send buffer full", "type", env.Type)
	}
}

// writePump drains v.send to the socket and sends periodic pings,
// grounded on the chat system's writePump (ticker-driven ping, per-write
// deadline, batch-drain of queued messages).
func (b *LiveBroker) writePump(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		b.Detach(v)
		v.close()
	}()

	for {
		select {
		case env, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := writeEnvelope(v.conn, env); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := writeEnvelope(v.conn, Envelope{Type: EnvelopePing, Timestamp: time.Now().UnixMilli()}); err != nil {
				return
			}
		case <-v.closed:
			return
		}
	}
}

func writeEnvelope(conn *websocket.Conn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readPump enforces the inactivity cap and answers viewer-initiated pings
// with a timestamped pong; any other inbound frame is ignored since the
// live channel is one-directional telemetry. Grounded on the chat
// system's readPump (SetReadDeadline/SetPongHandler shape).
func (b *LiveBroker) readPump(v *viewer) {
	defer func() {
		b.Detach(v)
		v.close()
	}()

	v.conn.SetReadLimit(maxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(inactivityCap))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(inactivityCap))
		return nil
	})

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			return
		}
		v.conn.SetReadDeadline(time.Now().Add(inactivityCap))

		var frame Envelope
		if json.Unmarshal(data, &frame) == nil && frame.Type == EnvelopePing {
			b.enqueue(v, Envelope{Type: EnvelopePong, Timestamp: time.Now().UnixMilli()})
		}
	}
}
