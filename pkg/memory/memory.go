package memory

import (
	"errors"
	"fmt"
	"strings"
)

// MemoryType classifies a stored memory.
type MemoryType string

const (
	// TypeProfile is a durable fact about the user.
	TypeProfile MemoryType = "profile"
	// TypeEpisodic is a conversation event.
	TypeEpisodic MemoryType = "episodic"
	// TypeSemantic is derived knowledge.
	TypeSemantic MemoryType = "semantic"
)

// Valid reports whether t is one of the permitted memory types.
func (t MemoryType) Valid() bool {
	switch t {
	case TypeProfile, TypeEpisodic, TypeSemantic:
		return true
	}
	return false
}

// Memory is the canonical stored entity. IDs are store-assigned and
// monotonically increasing at insertion time. CreatedAt is set once at
// insertion and never changes.
type Memory struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	AppName    string     `json:"app_name"`
	Type       MemoryType `json:"memory_type"`
	Text       string     `json:"text"`
	Source     string     `json:"source,omitempty"`
	Importance int        `json:"importance"`
	Tags       []string   `json:"tags"`
	CreatedAt  int64      `json:"created_at"`
	ExpiresAt  *int64     `json:"expires_at,omitempty"`
}

// AddInput carries the caller-supplied fields for a new memory.
type AddInput struct {
	UserID     string     `json:"user_id"`
	AppName    string     `json:"app_name"`
	Type       MemoryType `json:"memory_type"`
	Text       string     `json:"text"`
	Source     string     `json:"source,omitempty"`
	Importance int        `json:"importance,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	ExpiresAt  *int64     `json:"expires_at,omitempty"`
}

// Validate checks the input against the data model rules.
func (in AddInput) Validate() error {
	if in.UserID == "" {
		return errors.New("user id is required")
	}
	if in.AppName == "" {
		return errors.New("app name is required")
	}
	if strings.TrimSpace(in.Text) == "" {
		return errors.New("text must be non-empty")
	}
	if !in.Type.Valid() {
		return fmt.Errorf("invalid memory type %q (must be: profile, episodic, semantic)", in.Type)
	}
	if in.Importance < 0 {
		return errors.New("importance must not be negative")
	}
	return nil
}

// SearchResult is one ranked hit from hybrid search. Score is the fused
// relevance score, higher is more relevant. Never persisted.
type SearchResult struct {
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Memory Memory  `json:"memory"`
}
