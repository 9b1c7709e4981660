package irtsim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Message roles. Patient turns are stored as "user", therapist turns as
// "assistant". Patient turns never carry a stage tag — the slicing logic
// depends on this asymmetry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn in a therapy conversation. Messages are created
// once and never mutated after being appended; slicing copies them.
type Message struct {
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	Stage     string    `json:"stage,omitempty"`
	Language  string    `json:"language,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation owns the ordered message log for one session plus the stage
// classification log. Stages is a log, not a set: one entry per router
// classification, duplicates expected, and its length is independent of the
// message count.
type Conversation struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Messages  []Message `json:"messages"`
	Stages    []string  `json:"stages"`
	Language  string    `json:"language,omitempty"`
}

// NewConversation creates an empty conversation.
func NewConversation(sessionID, language string) *Conversation {
	return &Conversation{
		SessionID: sessionID,
		Language:  language,
	}
}

// AddMessage appends a new message. Stage may be empty (patient turns);
// language defaults to the conversation's language.
func (c *Conversation) AddMessage(content, role string, stage Stage, language string) *Message {
	if language == "" {
		language = c.Language
	}
	c.Messages = append(c.Messages, Message{
		Content:   content,
		Role:      role,
		Stage:     string(stage),
		Language:  language,
		Timestamp: time.Now().UTC(),
	})
	return &c.Messages[len(c.Messages)-1]
}

// CurrentStage returns the most recent classified stage, or ok=false if no
// classification has happened yet.
func (c *Conversation) CurrentStage() (Stage, bool) {
	if len(c.Stages) == 0 {
		return "", false
	}
	return Stage(c.Stages[len(c.Stages)-1]), true
}

// StageHistory returns the classification log as Stage values.
func (c *Conversation) StageHistory() []Stage {
	out := make([]Stage, len(c.Stages))
	for i, s := range c.Stages {
		out[i] = Stage(s)
	}
	return out
}

// HistoryAsString renders the last maxMessages messages as alternating
// "User: …" / "Assistant: …" lines, newest last. The label strings are part
// of the contract with the prompt templates and must not change.
func (c *Conversation) HistoryAsString(maxMessages int) string {
	msgs := c.Messages
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		label := "Assistant"
		if m.Role == RoleUser {
			label = "User"
		}
		lines = append(lines, label+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// CountRewritingTurns counts therapist messages tagged with the rewriting
// stage. Patient messages are untagged by construction and never counted.
func (c *Conversation) CountRewritingTurns() int {
	n := 0
	for _, m := range c.Messages {
		if m.Role == RoleAssistant && m.Stage == string(StageRewriting) {
			n++
		}
	}
	return n
}

// SliceAtRewritingTurn returns a new conversation containing everything up
// through the n-th rewriting therapist message, plus its immediately
// following message if that message is untagged (the patient's reply). This
// produces frozen evaluation entry points that always end on a complete
// exchange, never a dangling therapist prompt.
func (c *Conversation) SliceAtRewritingTurn(n int) (*Conversation, error) {
	if n < 1 {
		return nil, fmt.Errorf("rewriting turn must be >= 1, got %d", n)
	}

	count := 0
	cut := -1
	for i, m := range c.Messages {
		if m.Role == RoleAssistant && m.Stage == string(StageRewriting) {
			count++
			if count == n {
				cut = i + 1
				if i+1 < len(c.Messages) && c.Messages[i+1].Stage == "" {
					cut = i + 2
				}
				break
			}
		}
	}
	if count < n {
		return nil, fmt.Errorf("requested rewriting turn %d but only %d found", n, count)
	}

	sliced := c.copyHeader()
	sliced.Messages = append([]Message(nil), c.Messages[:cut]...)
	sliced.Stages = dedupStages(sliced.Messages)
	return sliced, nil
}

// SliceAtStage returns a new conversation containing every message whose
// stage is at or before target in the protocol order. Untagged messages
// (patient turns) always pass through, and so do messages carrying a stage
// value outside the canonical 5 — unknown tags are treated as always included
// for forward compatibility. Unknown target stages are rejected.
func (c *Conversation) SliceAtStage(target Stage) (*Conversation, error) {
	targetIdx := StageIndex(target)
	if targetIdx < 0 {
		return nil, fmt.Errorf("unknown stage %q", target)
	}

	sliced := c.copyHeader()
	for _, m := range c.Messages {
		if m.Stage != "" {
			if idx := StageIndex(Stage(m.Stage)); idx >= 0 && idx > targetIdx {
				continue
			}
		}
		sliced.Messages = append(sliced.Messages, m)
	}
	sliced.Stages = dedupStages(sliced.Messages)
	return sliced, nil
}

// copyHeader clones the conversation identity fields without messages.
func (c *Conversation) copyHeader() *Conversation {
	return &Conversation{
		SessionID: c.SessionID,
		UserID:    c.UserID,
		Language:  c.Language,
	}
}

// dedupStages collects the stage tags present on messages in
// first-occurrence order.
func dedupStages(msgs []Message) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range msgs {
		if m.Stage != "" && !seen[m.Stage] {
			seen[m.Stage] = true
			out = append(out, m.Stage)
		}
	}
	return out
}

// SaveConversation writes the conversation as indented JSON, the frozen
// history wire format consumed by the evaluation stack.
func SaveConversation(c *Conversation, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadConversation reads a frozen history JSON file.
func LoadConversation(path string) (*Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse conversation %s: %w", path, err)
	}
	return &c, nil
}
