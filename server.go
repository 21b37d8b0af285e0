package voiceloop

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/murmurlab/voiceloop/llm"
	"github.com/murmurlab/voiceloop/providers"
	"github.com/murmurlab/voiceloop/synthesis"
)

// Server hosts the voice pipeline: it upgrades /ws requests, hands each
// connection to a WebConn supervisor, and shares the conversation history
// store across all connections.
type Server struct {
	srv         *http.Server
	log         *log.Logger
	cfg         Config
	providers   []providers.Provider
	generator   llm.Generator
	synthesizer synthesis.Synthesizer
	store       *HistoryStore

	mu    sync.Mutex
	conns map[*WebConn]struct{}
}

// New creates a server. synthesizer may be nil to disable audio replies;
// at least one transcription provider is required for connections to work.
func New(cfg Config, generator llm.Generator, synthesizer synthesis.Synthesizer, provs ...providers.Provider) *Server {
	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
	mux := http.NewServeMux()

	server := &Server{
		srv: &http.Server{
			Addr:        cfg.Addr,
			ReadTimeout: 10 * time.Second,
			// No WriteTimeout: synthesized audio streams for as long as the
			// conversation lasts.
			IdleTimeout: 60 * time.Second,
			Handler:     mux,
		},
		log:         logger,
		cfg:         cfg,
		providers:   provs,
		generator:   generator,
		synthesizer: synthesizer,
		store:       NewHistoryStore(),
		conns:       make(map[*WebConn]struct{}),
	}

	mux.HandleFunc("/ws", server.handleWebSocket)

	return server
}

// Store exposes the shared history store.
func (s *Server) Store() *HistoryStore {
	return s.store
}

// Start runs the HTTP server until Stop is called. It blocks.
func (s *Server) Start() error {
	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.log.Printf("Starting server on %s", s.srv.Addr)
		errChan <- s.srv.ListenAndServe()
	}()

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	return nil
}

// Stop closes all live connections and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.log.Println("Shutting down server...")

	s.stopAllConns()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}

func (s *Server) addConn(wc *WebConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[wc] = struct{}{}
}

func (s *Server) removeConn(wc *WebConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, wc)
}

func (s *Server) stopAllConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for wc := range s.conns {
		wc.Stop()
	}
}
