package main

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	voiceloop "github.com/murmurlab/voiceloop"
)

// Client streams microphone audio to the server as binary frames and prints
// the conversation as it unfolds: live partials, finalized turns with the
// assistant's reply, and optionally the synthesized audio dumped to a file.
type Client struct {
	conn        *websocket.Conn
	audioReader io.Reader
	log         *log.Logger
	wg          sync.WaitGroup

	// Streaming backends re-emit close variants of the same partial; the
	// circular buffer suppresses near-duplicate lines on screen.
	msgBuffer           *MessageBuffer
	similarityThreshold float64

	bufWriter  *bufio.Writer // transcript output, optional
	audioOut   *os.File      // synthesized audio output, optional
	audioBytes int
}

func main() {
	var serverURL = flag.String("url", "ws://localhost:8081/ws", "WebSocket server URL")
	var sessionID = flag.String("session", "", "Conversation id to continue (optional)")
	var outputPath = flag.String("output", "", "Output file path for the transcript (optional)")
	var audioPath = flag.String("audio", "", "Output file path for synthesized audio (optional)")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)

	mic, err := NewMicrophoneReader()
	if err != nil {
		logger.Printf("Microphone init failed: %v", err)
		return
	}
	defer mic.Close()

	target, err := url.Parse(*serverURL)
	if err != nil {
		logger.Printf("Invalid server URL: %v", err)
		return
	}
	if *sessionID != "" {
		q := target.Query()
		q.Set("session_id", *sessionID)
		target.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(target.String(), nil)
	if err != nil {
		logger.Printf("WebSocket dial failed: %v", err)
		return
	}
	defer conn.Close()

	client := &Client{
		conn:                conn,
		audioReader:         mic,
		log:                 logger,
		msgBuffer:           NewMessageBuffer(10),
		similarityThreshold: 0.8,
	}

	if *outputPath != "" {
		outputFile, err := os.Create(*outputPath)
		if err != nil {
			logger.Printf("Failed to create output file: %v", err)
			return
		}
		defer outputFile.Close()

		client.bufWriter = bufio.NewWriter(outputFile)
		defer client.bufWriter.Flush()
	}

	if *audioPath != "" {
		audioFile, err := os.Create(*audioPath)
		if err != nil {
			logger.Printf("Failed to create audio file: %v", err)
			return
		}
		defer audioFile.Close()
		client.audioOut = audioFile
	}

	fmt.Println("Talking... Press Ctrl+C to stop.")
	client.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	client.Close()
	fmt.Println("\nDone.")
}

func (c *Client) Start() {
	c.wg.Add(2)
	go c.reader()
	go c.writer()
}

func (c *Client) reader() {
	defer c.wg.Done()
	var buf bytes.Buffer

	for {
		buf.Reset()

		_, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		if _, err := buf.ReadFrom(r); err != nil {
			c.log.Printf("Failed to read from WebSocket reader: %v", err)
			continue
		}

		var msg voiceloop.ServerMessage
		if err := json.Unmarshal(buf.Bytes(), &msg); err != nil {
			c.log.Printf("Failed to unmarshal message: %v", err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg voiceloop.ServerMessage) {
	switch msg.Type {
	case voiceloop.MessageTypeSession:
		fmt.Printf("(conversation %s)\n", msg.SessionID)

	case voiceloop.MessageTypePartial:
		if c.msgBuffer.IsSimilar(msg.Text, c.similarityThreshold) {
			return
		}
		c.msgBuffer.Add(msg.Text)
		c.printLine(fmt.Sprintf("... %s", msg.Text))

	case voiceloop.MessageTypeTurnEnd:
		c.printLine(fmt.Sprintf("You: %s", msg.Transcript))
		c.printLine(fmt.Sprintf("AI:  %s", msg.LLMResponse))

	case voiceloop.MessageTypeTTSChunk:
		if c.audioOut == nil {
			return
		}
		audio, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			c.log.Printf("Failed to decode audio chunk: %v", err)
			return
		}
		if _, err := c.audioOut.Write(audio); err != nil {
			c.log.Printf("Failed to write audio chunk: %v", err)
			return
		}
		c.audioBytes += len(audio)

	case voiceloop.MessageTypeTTSDone:
		if c.audioOut != nil {
			c.printLine(fmt.Sprintf("(audio: %d bytes)", c.audioBytes))
		}

	case voiceloop.MessageTypeError:
		c.printLine(fmt.Sprintf("error: %s", msg.Message))

	default:
		c.log.Printf("Unknown message type: %q", msg.Type)
	}
}

func (c *Client) printLine(text string) {
	timestamp := time.Now().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s\n", timestamp, text)

	fmt.Print(line)

	if c.bufWriter != nil {
		if _, err := c.bufWriter.WriteString(line); err != nil {
			c.log.Printf("Failed to write to output file: %v", err)
		} else {
			c.bufWriter.Flush()
		}
	}
}

func (c *Client) writer() {
	defer c.wg.Done()

	chunk := make([]byte, framesPerBuffer*2)
	for {
		n, err := c.audioReader.Read(chunk)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Printf("Audio read error: %v", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		if err := c.conn.WriteMessage(websocket.BinaryMessage, chunk[:n]); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.log.Printf("WebSocket write error: %v", err)
			}
			return
		}
	}
}

func (c *Client) Close() {
	c.log.Println("Closing client...")
	if c.conn != nil {
		c.conn.Close()
	}
	c.wg.Wait()
}
