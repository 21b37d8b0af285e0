package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	speech "cloud.google.com/go/speech/apiv1"

	voiceloop "github.com/murmurlab/voiceloop"
	"github.com/murmurlab/voiceloop/llm"
	"github.com/murmurlab/voiceloop/providers"
	"github.com/murmurlab/voiceloop/providers/deepgram"
	"github.com/murmurlab/voiceloop/providers/google"
	"github.com/murmurlab/voiceloop/synthesis"
	"github.com/murmurlab/voiceloop/synthesis/murf"
)

// synthesizerOrNil keeps a nil *murf.Synthesizer from becoming a non-nil
// interface value.
func synthesizerOrNil(s *murf.Synthesizer) synthesis.Synthesizer {
	if s == nil {
		return nil
	}
	return s
}

func main() {
	var configPath = flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := voiceloop.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Transcription providers: every backend with credentials present joins
	// the selector.
	var provs []providers.Provider
	if apiKey := os.Getenv("DEEPGRAM_API_KEY"); apiKey != "" {
		provs = append(provs, deepgram.NewProvider(apiKey))
	}
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		speechClient, err := speech.NewClient(ctx)
		if err != nil {
			log.Fatalf("Failed to create speech client: %v", err)
		}
		defer speechClient.Close()
		provs = append(provs, google.NewProvider(speechClient))
	}
	if len(provs) == 0 {
		log.Fatal("No transcription provider configured: set DEEPGRAM_API_KEY and/or GOOGLE_APPLICATION_CREDENTIALS")
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		log.Fatal("GEMINI_API_KEY not set")
	}
	gemini, err := llm.NewGemini(ctx, geminiKey, cfg.LLM.Model)
	if err != nil {
		log.Fatalf("Failed to create Gemini client: %v", err)
	}
	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
	generator := llm.NewRetrying(gemini, logger)

	var synthesizer *murf.Synthesizer
	if murfKey := os.Getenv("MURF_API_KEY"); murfKey != "" {
		synthesizer = murf.NewSynthesizer(murfKey, cfg.Synthesis.Endpoint)
	} else {
		log.Print("MURF_API_KEY not set; replies will be text-only")
	}

	s := voiceloop.New(cfg, generator, synthesizerOrNil(synthesizer), provs...)

	go func() {
		if err := s.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if err := s.Stop(); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}
}
