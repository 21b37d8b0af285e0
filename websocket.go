package voiceloop

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/murmurlab/voiceloop/providers"
)

// WebConn supervises one client connection: it owns the socket's read side,
// forwards audio into the transcription session, drives the turn aggregator
// from the transcription collector goroutine, and tears everything down when
// the client goes away. All outbound traffic flows through the Bridge.
type WebConn struct {
	conn           *websocket.Conn
	log            *log.Logger
	conversationID string

	session    providers.Session
	aggregator *TurnAggregator
	bridge     *Bridge
	pipeline   *TurnPipeline
	sink       *audioSink

	cancel     context.CancelFunc
	wg         sync.WaitGroup
	eos        atomic.Bool
	bytesRecv  atomic.Int64
	sinkFailed bool
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// The conversation id is client-supplied so reconnects continue the same
	// history; generated otherwise.
	conversationID := r.URL.Query().Get("session_id")
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	session, err := NewProviderSelector(s.providers, providers.SessionConfig{
		SampleRate:     s.cfg.Audio.SampleRate,
		LanguageCode:   s.cfg.Audio.Language,
		InterimResults: true,
	}, s.log)
	if err != nil {
		s.log.Printf("Failed to create provider selector: %v", err)
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	bridge := NewBridge(conn, s.log)

	webConn := &WebConn{
		conn:           conn,
		log:            s.log,
		conversationID: conversationID,
		session:        session,
		aggregator:     NewTurnAggregator(),
		bridge:         bridge,
		cancel:         cancel,
		pipeline: NewTurnPipeline(ctx, PipelineOptions{
			ConversationID: conversationID,
			Store:          s.store,
			Generator:      s.generator,
			Synthesizer:    s.synthesizer,
			Bridge:         bridge,
			Log:            s.log,
			Voice:          s.cfg.Synthesis.Voice,
			SampleRate:     s.cfg.Synthesis.SampleRate,
		}),
	}

	if s.cfg.RecordingsDir != "" {
		sink, err := newAudioSink(s.cfg.RecordingsDir, time.Now())
		if err != nil {
			// Persistence is best-effort; the live pipeline continues.
			s.log.Printf("Audio sink unavailable: %v", err)
		} else {
			webConn.sink = sink
		}
	}

	s.addConn(webConn)
	defer s.removeConn(webConn)

	webConn.Start()
}

// Start runs the connection until the client disconnects or a fatal
// transport error occurs, then releases every resource. It blocks.
func (wc *WebConn) Start() {
	wc.bridge.Start()
	wc.pipeline.Start()

	wc.wg.Add(1)
	go wc.collector()

	wc.bridge.Post(ServerMessage{
		Type:      MessageTypeSession,
		SessionID: wc.conversationID,
	})

	wc.reader()
	wc.teardown()
}

// Stop closes the socket, which unblocks the reader and lets Start finish
// its teardown.
func (wc *WebConn) Stop() {
	if wc.conn != nil {
		wc.conn.Close()
	}
}

// teardown order matters: abort in-flight backend calls, stop outbound
// sends, close the transcription session so the collector drains out, join
// the collector before closing the pipeline queue it feeds, then release
// the sink and socket.
func (wc *WebConn) teardown() {
	wc.cancel()
	wc.bridge.Close()

	if err := wc.session.Close(); err != nil {
		wc.log.Printf("Error closing transcription session: %v", err)
	}
	wc.wg.Wait()
	wc.pipeline.Close()

	if wc.sink != nil {
		if err := wc.sink.Close(); err != nil {
			wc.log.Printf("Error closing audio sink: %v", err)
		}
	}
	wc.conn.Close()

	wc.log.Printf("Connection closed: conversation=%s bytes_received=%d",
		wc.conversationID, wc.bytesRecv.Load())
}

// reader consumes client frames: binary frames carry raw audio, text frames
// carry JSON control messages. Malformed frames are logged and ignored.
func (wc *WebConn) reader() {
	for {
		msgType, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				wc.log.Printf("%v", WrapError(KindTransport, err))
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			wc.handleAudio(data)
		case websocket.TextMessage:
			wc.handleControl(data)
		default:
			wc.log.Printf("%v", WrapError(KindProtocol, errors.New("unexpected frame type")))
		}
	}
}

func (wc *WebConn) handleAudio(data []byte) {
	if wc.eos.Load() {
		// Client declared end of stream; late audio is dropped.
		return
	}
	wc.bytesRecv.Add(int64(len(data)))

	if wc.sink != nil && !wc.sink.Write(data) && !wc.sinkFailed {
		wc.sinkFailed = true
		wc.log.Printf("Audio sink write failed; persistence disabled for this connection")
	}

	if err := wc.session.SendAudio(data); err != nil && !errors.Is(err, io.EOF) {
		wc.log.Printf("%v", WrapError(KindTranscription, err))
	}
}

func (wc *WebConn) handleControl(data []byte) {
	var ctrl ControlMessage
	if err := json.Unmarshal(data, &ctrl); err != nil {
		wc.log.Printf("%v", WrapError(KindProtocol, err))
		return
	}

	switch ctrl.Type {
	case ControlTypeEOS:
		// Stop forwarding audio; the backend's utterance-end detection
		// finalizes whatever is still buffered. The socket stays open for
		// the remaining pipeline output.
		wc.eos.Store(true)
	default:
		wc.log.Printf("%v", WrapError(KindProtocol, errors.New("unknown control message "+ctrl.Type)))
	}
}

// collector pulls transcription results off the backend session and drives
// the turn aggregator. It is the only goroutine touching the aggregator, so
// partial/final handling is strictly sequential.
func (wc *WebConn) collector() {
	defer wc.wg.Done()

	for {
		result, err := wc.session.ReceiveTranscription()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// Backend failure drops the turn, not the connection.
			wc.log.Printf("%v", WrapError(KindTranscription, err))
			wc.bridge.Post(ServerMessage{
				Type:    MessageTypeError,
				Message: "transcription unavailable",
			})
			return
		}

		action, text := wc.aggregator.Observe(result)
		switch action {
		case ActionRelayPartial:
			wc.bridge.Post(ServerMessage{Type: MessageTypePartial, Text: text})
		case ActionCompleteTurn:
			if !wc.pipeline.Enqueue(text) {
				wc.log.Printf("Turn queue full; dropping finalized turn for conversation=%s", wc.conversationID)
			}
		}
	}
}
