package voiceloop

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Bridge marshals outbound frames from any goroutine onto the single
// goroutine that owns the WebSocket write side. Backend callback goroutines
// (transcription collector, synthesis relay, pipeline worker) never touch
// the connection directly; they Post frames here.
//
// Frames posted from the same goroutine are written in the order posted.
// After Close, Post becomes a silent no-op returning false: send-after-close
// is an expected race during teardown, not a fault.
type Bridge struct {
	conn *websocket.Conn
	log  *log.Logger

	out    chan ServerMessage
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	wg     sync.WaitGroup
}

// NewBridge creates a bridge writing to conn. Call Start to begin draining.
func NewBridge(conn *websocket.Conn, logger *log.Logger) *Bridge {
	return &Bridge{
		conn: conn,
		log:  logger,
		out:  make(chan ServerMessage, 64),
		done: make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (b *Bridge) Start() {
	b.wg.Add(1)
	go b.writeLoop()
}

// Post enqueues a frame for delivery to the client. It is safe to call from
// any goroutine and reports whether the frame was accepted. False means the
// bridge has closed; callers treat that as a suppressed-by-design outcome.
func (b *Bridge) Post(msg ServerMessage) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.out <- msg:
		return true
	case <-b.done:
		return false
	}
}

// Closed reports whether the bridge has shut down.
func (b *Bridge) Closed() bool {
	return b.closed.Load()
}

// Close stops accepting frames, drains anything already queued, and waits
// for the writer goroutine to exit. Safe to call more than once and from any
// goroutine.
func (b *Bridge) Close() {
	b.once.Do(func() {
		b.closed.Store(true)
		close(b.done)
	})
	b.wg.Wait()
}

func (b *Bridge) writeLoop() {
	defer b.wg.Done()

	for {
		select {
		case msg := <-b.out:
			b.write(msg)
		case <-b.done:
			// Pending sends are allowed to drain before teardown.
			for {
				select {
				case msg := <-b.out:
					b.write(msg)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) write(msg ServerMessage) {
	if err := b.conn.WriteJSON(msg); err != nil {
		// A failed write means the transport is gone; stop accepting more.
		b.log.Printf("WebSocket write error (%s frame): %v", msg.Type, err)
		b.closed.Store(true)
	}
}
