package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"docllama/internal/ai"
	"docllama/internal/logger"
	"docllama/internal/telemetry"
	"docllama/models"
)

// ChatBackend is the part of the model backend the relay drives.
type ChatBackend interface {
	OpenStream(ctx context.Context, endpoint string, payload any) (io.ReadCloser, error)
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// StreamMode records how a stream was produced.
type StreamMode string

const (
	StreamModeChat       StreamMode = "chat"
	StreamModeGenerate   StreamMode = "generate"
	StreamModeSingleShot StreamMode = "single-shot"
)

type StreamState int32

const (
	StateIdle StreamState = iota
	StateRequestShaped
	StateStreaming
	StateTerminated
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestShaped:
		return "request-shaped"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("StreamState(%d)", int32(s))
	}
}

type ChatRelayOptions struct {
	DefaultModel string
	// PromptSingleShot answers prompt requests with one blocking generate
	// call emitted as a single increment.
	PromptSingleShot bool
	Metrics          *telemetry.Metrics
}

// ChatRelay turns chat requests into upstream calls and re-emits the
// upstream NDJSON stream as ordered token increments.
type ChatRelay struct {
	backend ChatBackend
	opts    ChatRelayOptions
}

func NewChatRelay(backend ChatBackend, opts ChatRelayOptions) *ChatRelay {
	return &ChatRelay{backend: backend, opts: opts}
}

func (r *ChatRelay) Model(model string) string {
	if strings.TrimSpace(model) == "" {
		return r.opts.DefaultModel
	}
	return model
}

// Stream is one relayed response. Tokens is closed once the stream reaches
// StateTerminated, after which Err reports why it ended.
type Stream struct {
	Mode  StreamMode
	Model string

	tokens chan string
	state  atomic.Int32
	err    error
}

func (s *Stream) Tokens() <-chan string { return s.tokens }

func (s *Stream) State() StreamState { return StreamState(s.state.Load()) }

// Err is nil when the upstream signalled completion or closed cleanly. It
// must only be read after Tokens is drained.
func (s *Stream) Err() error { return s.err }

func (s *Stream) setState(state StreamState) { s.state.Store(int32(state)) }

// Open shapes the upstream request once and starts relaying. Failures to
// reach the backend are returned here, before any token is produced.
func (r *ChatRelay) Open(ctx context.Context, input models.ChatInput, model string) (*Stream, error) {
	s := &Stream{Model: r.Model(model), tokens: make(chan string)}

	var endpoint string
	var payload map[string]any
	switch in := input.(type) {
	case models.MessagesInput:
		s.Mode, endpoint = StreamModeChat, ai.ChatEndpoint
		payload = map[string]any{"model": s.Model, "messages": []models.ChatMessage(in), "stream": true}
	case models.PromptInput:
		if r.opts.PromptSingleShot {
			s.Mode = StreamModeSingleShot
		} else {
			s.Mode, endpoint = StreamModeGenerate, ai.GenerateEndpoint
			payload = map[string]any{"model": s.Model, "prompt": string(in), "stream": true}
		}
	default:
		return nil, fmt.Errorf("%w: request has neither messages nor prompt", models.ErrValidation)
	}
	s.setState(StateRequestShaped)

	if s.Mode == StreamModeSingleShot {
		text, err := r.backend.Generate(ctx, s.Model, string(input.(models.PromptInput)))
		if err != nil {
			s.setState(StateTerminated)
			return nil, err
		}
		s.setState(StateStreaming)
		go r.emitOnce(ctx, s, text)
		return s, nil
	}

	body, err := r.backend.OpenStream(ctx, endpoint, payload)
	if err != nil {
		s.setState(StateTerminated)
		return nil, err
	}
	s.setState(StateStreaming)
	go r.pump(ctx, s, body)
	return s, nil
}

func (r *ChatRelay) emitOnce(ctx context.Context, s *Stream, text string) {
	defer r.terminate(s, "single-shot")
	if text == "" {
		return
	}
	select {
	case s.tokens <- text:
		r.opts.Metrics.RecordStreamIncrement(string(s.Mode))
	case <-ctx.Done():
		s.err = ctx.Err()
	}
}

// pump reads NDJSON records until done, EOF, an upstream error record, or
// cancellation. Undecodable lines are skipped.
func (r *ChatRelay) pump(ctx context.Context, s *Stream, body io.ReadCloser) {
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()
	defer body.Close()

	cause := "eof"
	defer func() { r.terminate(s, cause) }()

	reader := bufio.NewReader(body)
	skipped := 0
	for {
		line, readErr := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			rec, err := decodeStreamRecord(line)
			switch {
			case err != nil:
				skipped++
				logger.Debug("Skipping undecodable stream line", "model", s.Model, "error", err)
			case rec.Error != "":
				cause = "upstream error"
				s.err = fmt.Errorf("%w: %s", models.ErrUpstream, rec.Error)
				return
			default:
				if token := rec.token(); token != "" {
					select {
					case s.tokens <- token:
						r.opts.Metrics.RecordStreamIncrement(string(s.Mode))
					case <-ctx.Done():
						cause, s.err = "cancelled", ctx.Err()
						return
					}
				}
				if rec.Done {
					cause = "done"
					return
				}
			}
		}

		if readErr != nil {
			if ctx.Err() != nil {
				cause, s.err = "cancelled", ctx.Err()
			} else if !errors.Is(readErr, io.EOF) {
				cause, s.err = "read error", fmt.Errorf("%w: reading stream: %w", models.ErrUpstream, readErr)
			}
			if skipped > 0 {
				logger.Warn("Stream contained undecodable lines", "model", s.Model, "skipped", skipped)
			}
			return
		}
	}
}

func (r *ChatRelay) terminate(s *Stream, cause string) {
	s.setState(StateTerminated)
	close(s.tokens)
	if s.err != nil {
		logger.Warn("Chat stream terminated", "mode", s.Mode, "model", s.Model, "cause", cause, "error", s.err)
		return
	}
	logger.Debug("Chat stream terminated", "mode", s.Mode, "model", s.Model, "cause", cause)
}

// Complete answers a prompt with one blocking call and returns the model used.
func (r *ChatRelay) Complete(ctx context.Context, prompt, model string) (string, string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", "", fmt.Errorf("%w: prompt is required", models.ErrValidation)
	}
	model = r.Model(model)
	text, err := r.backend.Generate(ctx, model, prompt)
	if err != nil {
		return "", model, err
	}
	return text, model, nil
}

// streamRecord covers both upstream record shapes: completion records carry
// "response", chat records carry "message.content".
type streamRecord struct {
	Response string `json:"response"`
	Message  *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func decodeStreamRecord(line []byte) (streamRecord, error) {
	var rec streamRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	return rec, nil
}

func (r streamRecord) token() string {
	if r.Response != "" {
		return r.Response
	}
	if r.Message != nil {
		return r.Message.Content
	}
	return ""
}
