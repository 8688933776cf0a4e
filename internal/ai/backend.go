// Package ai scores postings against a candidate profile and runs the
// escalation review for promising ones. Model access goes through Backend so
// hosted and local models are interchangeable.
package ai

import "context"

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Options struct {
	Temperature float32
	MaxTokens   int
}

// Backend is a chat-completion style model endpoint. Complete returns the
// free text of the first answer.
type Backend interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}
