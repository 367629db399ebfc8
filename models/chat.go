package models

import (
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Prompt   string        `json:"prompt"`
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model"`
}

// ChatInput is either PromptInput or MessagesInput.
type ChatInput interface {
	isChatInput()
}

type PromptInput string

type MessagesInput []ChatMessage

func (PromptInput) isChatInput()   {}
func (MessagesInput) isChatInput() {}

// Input resolves the request shape once. A non-empty message list wins over a prompt.
func (r ChatRequest) Input() (ChatInput, error) {
	if len(r.Messages) > 0 {
		for i, m := range r.Messages {
			switch m.Role {
			case RoleSystem, RoleUser, RoleAssistant:
			default:
				return nil, fmt.Errorf("%w: message %d has unknown role %q", ErrValidation, i, m.Role)
			}
		}
		return MessagesInput(r.Messages), nil
	}
	if strings.TrimSpace(r.Prompt) != "" {
		return PromptInput(r.Prompt), nil
	}
	return nil, fmt.Errorf("%w: provide 'messages' or 'prompt'", ErrValidation)
}

type ChatOnceRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Model  string `json:"model"`
}

type ChatOnceResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type ModelsResponse struct {
	Generation []string `json:"generation"`
	Embeddings []string `json:"embeddings"`
	Default    string   `json:"default"`
}
