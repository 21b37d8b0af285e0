package google

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/murmurlab/voiceloop/providers"
)

// fakeStream implements streamingRecognizeClient for testing without a
// live gRPC connection. Recv pops queued responses in order and returns
// io.EOF once the queue is drained.
type fakeStream struct {
	sent      []*speechpb.StreamingRecognizeRequest
	sendErr   error
	responses []fakeRecv
	closeErr  error
	closed    bool
}

type fakeRecv struct {
	resp *speechpb.StreamingRecognizeResponse
	err  error
}

func (f *fakeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	f.sent = append(f.sent, req)
	return f.sendErr
}

func (f *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	if len(f.responses) == 0 {
		return nil, io.EOF
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next.resp, next.err
}

func (f *fakeStream) CloseSend() error {
	f.closed = true
	return f.closeErr
}

func recognizeResponse(transcript string, confidence float32, isFinal bool) *speechpb.StreamingRecognizeResponse {
	return &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{
				IsFinal: isFinal,
				Alternatives: []*speechpb.SpeechRecognitionAlternative{
					{
						Transcript: transcript,
						Confidence: confidence,
					},
				},
			},
		},
	}
}

func TestSession_SendAudio(t *testing.T) {
	tests := []struct {
		name        string
		audioData   []byte
		sendErr     error
		expectedErr error
	}{
		{
			name:        "successful send",
			audioData:   []byte("test audio data"),
			expectedErr: nil,
		},
		{
			name:        "send error",
			audioData:   []byte("test audio data"),
			sendErr:     errors.New("send failed"),
			expectedErr: errors.New("send failed"),
		},
		{
			name:        "empty audio data",
			audioData:   []byte{},
			expectedErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := &fakeStream{sendErr: tt.sendErr}

			session := &Session{
				stream: stream,
				ctx:    context.Background(),
			}

			err := session.SendAudio(tt.audioData)

			if tt.expectedErr != nil {
				assert.Error(t, err)
				assert.Equal(t, tt.expectedErr.Error(), err.Error())
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, stream.sent, 1)
			assert.Equal(t, tt.audioData, stream.sent[0].GetAudioContent())
		})
	}
}

func TestSession_ReceiveTranscription(t *testing.T) {
	tests := []struct {
		name           string
		interim        bool
		responses      []fakeRecv
		expectedResult providers.TranscriptionResult
		expectedErr    error
	}{
		{
			name: "successful transcription with final result",
			responses: []fakeRecv{
				{resp: recognizeResponse("hello world", 0.95, true)},
			},
			expectedResult: providers.TranscriptionResult{
				Text:         "hello world",
				IsFinal:      true,
				Confidence:   0.95,
				ProviderName: "google",
			},
			expectedErr: nil,
		},
		{
			name: "non-final result skipped when interim disabled",
			responses: []fakeRecv{
				{resp: recognizeResponse("hello", 0.8, false)},
				{resp: recognizeResponse("hello world", 0.95, true)},
			},
			expectedResult: providers.TranscriptionResult{
				Text:         "hello world",
				IsFinal:      true,
				Confidence:   0.95,
				ProviderName: "google",
			},
			expectedErr: nil,
		},
		{
			name:    "non-final result returned when interim enabled",
			interim: true,
			responses: []fakeRecv{
				{resp: recognizeResponse("hello wor", 0.8, false)},
				{resp: recognizeResponse("hello world", 0.95, true)},
			},
			expectedResult: providers.TranscriptionResult{
				Text:         "hello wor",
				IsFinal:      false,
				Confidence:   0.8,
				ProviderName: "google",
			},
			expectedErr: nil,
		},
		{
			name: "empty alternatives",
			responses: []fakeRecv{
				{resp: &speechpb.StreamingRecognizeResponse{
					Results: []*speechpb.StreamingRecognitionResult{
						{
							IsFinal:      true,
							Alternatives: []*speechpb.SpeechRecognitionAlternative{},
						},
					},
				}},
				{resp: recognizeResponse("test", 0.9, true)},
			},
			expectedResult: providers.TranscriptionResult{
				Text:         "test",
				IsFinal:      true,
				Confidence:   0.9,
				ProviderName: "google",
			},
			expectedErr: nil,
		},
		{
			name:        "io.EOF error",
			responses:   []fakeRecv{{err: io.EOF}},
			expectedErr: io.EOF,
		},
		{
			name:        "context canceled error",
			responses:   []fakeRecv{{err: status.Error(codes.Canceled, "context canceled")}},
			expectedErr: io.EOF,
		},
		{
			name:        "other grpc error",
			responses:   []fakeRecv{{err: status.Error(codes.Internal, "internal error")}},
			expectedErr: status.Error(codes.Internal, "internal error"),
		},
		{
			name:        "generic error",
			responses:   []fakeRecv{{err: errors.New("network error")}},
			expectedErr: errors.New("network error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := &fakeStream{responses: tt.responses}

			session := &Session{
				stream:  stream,
				ctx:     context.Background(),
				interim: tt.interim,
			}

			result, err := session.ReceiveTranscription()

			if tt.expectedErr != nil {
				assert.Error(t, err)
				if errors.Is(tt.expectedErr, io.EOF) {
					assert.ErrorIs(t, err, io.EOF)
				} else {
					assert.Equal(t, tt.expectedErr.Error(), err.Error())
				}
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedResult.Text, result.Text)
				assert.Equal(t, tt.expectedResult.IsFinal, result.IsFinal)
				assert.Equal(t, tt.expectedResult.Confidence, result.Confidence)
				assert.Equal(t, tt.expectedResult.ProviderName, result.ProviderName)
				// Check that ReceivedAt is set and recent
				assert.True(t, result.ReceivedAt.After(time.Now().Add(-time.Second)))
				assert.True(t, result.ReceivedAt.Before(time.Now().Add(time.Second)))
			}
		})
	}
}

func TestSession_Close(t *testing.T) {
	tests := []struct {
		name        string
		closeErr    error
		expectedErr error
	}{
		{
			name:        "successful close",
			expectedErr: nil,
		},
		{
			name:        "close error",
			closeErr:    errors.New("close failed"),
			expectedErr: errors.New("close failed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := &fakeStream{closeErr: tt.closeErr}

			session := &Session{
				stream: stream,
				ctx:    context.Background(),
			}

			err := session.Close()

			if tt.expectedErr != nil {
				assert.Error(t, err)
				assert.Equal(t, tt.expectedErr.Error(), err.Error())
			} else {
				assert.NoError(t, err)
			}
			assert.True(t, stream.closed)
		})
	}
}
