// Package session holds the page-lifetime UI state: the chat transcript
// and the dashboard's event-loading phase. Nothing here is persisted.
package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the transcript.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	// Failed marks an assistant turn that carries an error text.
	Failed bool `json:"failed,omitempty"`
}

type ChatState int

const (
	Idle ChatState = iota
	AwaitingReply
)

func (s ChatState) String() string {
	if s == AwaitingReply {
		return "awaiting-reply"
	}
	return "idle"
}

var (
	ErrEmptyInput = errors.New("session: empty input")
	ErrBusy       = errors.New("session: reply pending")
	ErrNotWaiting = errors.New("session: no reply pending")
)

// MaxTurns bounds the transcript carried between requests; older turns
// are dropped first.
const MaxTurns = 50

// Chat is the transcript plus the in-flight flag.
type Chat struct {
	Turns []Turn
	State ChatState
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Chat) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Submit appends the trimmed input as a user turn and moves to
// AwaitingReply.
func (c *Chat) Submit(input string) (Turn, error) {
	if c.State == AwaitingReply {
		return Turn{}, ErrBusy
	}
	text := strings.TrimSpace(input)
	if text == "" {
		return Turn{}, ErrEmptyInput
	}
	t := c.append(RoleUser, text, false)
	c.State = AwaitingReply
	return t, nil
}

// Resolve appends the assistant reply and returns to Idle.
func (c *Chat) Resolve(reply string) (Turn, error) {
	if c.State != AwaitingReply {
		return Turn{}, ErrNotWaiting
	}
	t := c.append(RoleAssistant, reply, false)
	c.State = Idle
	return t, nil
}

// Fail appends the error text as an assistant turn and returns to Idle.
func (c *Chat) Fail(message string) (Turn, error) {
	if c.State != AwaitingReply {
		return Turn{}, ErrNotWaiting
	}
	if message == "" {
		message = "Sorry, I encountered an error. Please try again."
	}
	t := c.append(RoleAssistant, message, true)
	c.State = Idle
	return t, nil
}

func (c *Chat) append(role Role, content string, failed bool) Turn {
	t := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: c.now(),
		Failed:    failed,
	}
	c.Turns = append(c.Turns, t)
	if len(c.Turns) > MaxTurns {
		c.Turns = append([]Turn(nil), c.Turns[len(c.Turns)-MaxTurns:]...)
	}
	return t
}

// EncodeTranscript serializes turns for a hidden form field.
func EncodeTranscript(turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	if len(turns) > MaxTurns {
		turns = turns[len(turns)-MaxTurns:]
	}
	b, err := json.Marshal(turns)
	if err != nil {
		return "", fmt.Errorf("session: encode transcript: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeTranscript reverses EncodeTranscript. An empty string is an empty
// transcript.
func DecodeTranscript(s string) ([]Turn, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("session: decode transcript: %w", err)
	}
	var turns []Turn
	if err := json.Unmarshal(b, &turns); err != nil {
		return nil, fmt.Errorf("session: decode transcript: %w", err)
	}
	for _, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return nil, fmt.Errorf("session: decode transcript: unknown role %q", t.Role)
		}
	}
	if len(turns) > MaxTurns {
		turns = turns[len(turns)-MaxTurns:]
	}
	return turns, nil
}
