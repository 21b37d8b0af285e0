package voiceloop

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/murmurlab/voiceloop/llm"
	"github.com/murmurlab/voiceloop/synthesis"
)

// TurnPipeline runs the completion sequence for finalized user turns:
// history append, prompt build, generation, sanitation, client notification,
// speech synthesis relay. Turns are processed strictly in arrival order on a
// single worker goroutine, so assistant replies land in history in the same
// order finals were received while partial-transcript relay continues
// unblocked on other goroutines.
type TurnPipeline struct {
	conversationID string
	store          *HistoryStore
	generator      llm.Generator
	synthesizer    synthesis.Synthesizer
	bridge         *Bridge
	log            *log.Logger
	voice          string
	sampleRate     int

	ctx       context.Context
	queue     chan string
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// PipelineOptions carries the collaborators for one connection's pipeline.
type PipelineOptions struct {
	ConversationID string
	Store          *HistoryStore
	Generator      llm.Generator
	Synthesizer    synthesis.Synthesizer // nil disables audio replies
	Bridge         *Bridge
	Log            *log.Logger
	Voice          string
	SampleRate     int
}

// NewTurnPipeline creates a pipeline; call Start to launch the worker.
func NewTurnPipeline(ctx context.Context, opts PipelineOptions) *TurnPipeline {
	return &TurnPipeline{
		conversationID: opts.ConversationID,
		store:          opts.Store,
		generator:      opts.Generator,
		synthesizer:    opts.Synthesizer,
		bridge:         opts.Bridge,
		log:            opts.Log,
		voice:          opts.Voice,
		sampleRate:     opts.SampleRate,
		ctx:            ctx,
		queue:          make(chan string, 16),
	}
}

// Start launches the worker goroutine.
func (p *TurnPipeline) Start() {
	p.wg.Add(1)
	go p.run()
}

// Enqueue schedules a completion run for a finalized user turn. Runs execute
// in enqueue order, never concurrently. Returns false if the queue is full,
// in which case the turn is dropped (the backend is finalizing faster than
// turns can complete, which indicates a much bigger problem).
func (p *TurnPipeline) Enqueue(text string) bool {
	select {
	case p.queue <- text:
		return true
	default:
		return false
	}
}

// Close stops accepting turns, lets queued ones drain (closed-connection
// checks inside the worker make that fast), and joins the worker. Safe to
// call more than once.
func (p *TurnPipeline) Close() {
	p.closeOnce.Do(func() { close(p.queue) })
	p.wg.Wait()
}

func (p *TurnPipeline) run() {
	defer p.wg.Done()
	for text := range p.queue {
		p.completeTurn(text)
	}
}

// completeTurn executes steps 1-7 for one finalized user turn.
func (p *TurnPipeline) completeTurn(text string) {
	// The connection may have closed while this turn sat in the queue; no
	// new work is scheduled for a dead connection.
	if p.bridge.Closed() {
		return
	}

	p.store.Append(p.conversationID, RoleUser, text)

	prompt := llm.BuildPrompt(promptHistory(p.store.Recent(p.conversationID, displayTurns)))

	reply, err := p.generator.Generate(p.ctx, prompt)
	if err != nil {
		// The retrying generator degrades internally; an error here means a
		// bare generator was wired in. Same policy applies.
		p.log.Printf("%v", WrapError(KindGeneration, err))
		reply = llm.FallbackReply
	}
	reply = SanitizeReply(reply)

	p.store.Append(p.conversationID, RoleAssistant, reply)

	// Transcript and reply are delivered as one frame before any audio, so
	// they are never racing for the client's UI.
	posted := p.bridge.Post(ServerMessage{
		Type:        MessageTypeTurnEnd,
		Transcript:  text,
		LLMResponse: reply,
		History:     p.store.Recent(p.conversationID, displayTurns),
	})
	if !posted {
		// Send-after-close; the history entry stands, the audio is moot.
		return
	}

	p.synthesize(reply)
}

// synthesize opens a fresh synthesis context for the reply and relays each
// audio chunk to the client as it arrives. Synthesis failures are surfaced
// as an error frame but never close the connection; the text reply has
// already been delivered.
func (p *TurnPipeline) synthesize(text string) {
	if p.synthesizer == nil {
		return
	}

	session, err := p.synthesizer.NewSession(p.ctx, synthesis.SessionConfig{
		Voice:      p.voice,
		ContextID:  uuid.NewString(),
		SampleRate: p.sampleRate,
	})
	if err != nil {
		p.reportSynthesisError(err)
		return
	}
	defer session.Close()

	if err := session.Submit(text, true); err != nil {
		p.reportSynthesisError(err)
		return
	}

	for {
		chunk, err := session.ReceiveChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.reportSynthesisError(err)
			return
		}

		if len(chunk.Audio) > 0 {
			p.bridge.Post(ServerMessage{
				Type:  MessageTypeTTSChunk,
				Audio: base64.StdEncoding.EncodeToString(chunk.Audio),
			})
		}
		if chunk.Final {
			break
		}
	}

	p.bridge.Post(ServerMessage{Type: MessageTypeTTSDone})
}

func (p *TurnPipeline) reportSynthesisError(err error) {
	p.log.Printf("%v", WrapError(KindSynthesis, err))
	p.bridge.Post(ServerMessage{
		Type:    MessageTypeError,
		Message: "speech synthesis failed",
	})
}

// promptHistory converts stored turns to the llm package's prompt shape.
func promptHistory(turns []Turn) []llm.PromptTurn {
	out := make([]llm.PromptTurn, len(turns))
	for i, t := range turns {
		out[i] = llm.PromptTurn{Role: t.Role, Content: t.Content}
	}
	return out
}
