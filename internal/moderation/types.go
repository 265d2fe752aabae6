package moderation

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

type ChatType string

const (
	ChatTypePrivate    ChatType = "private"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
)

type (
	Member struct {
		ID        int64
		Username  string
		FirstName string
		LastName  string
		IsBot     bool
	}

	// Message is a platform-neutral inbound chat message.
	Message struct {
		ChatID    int64
		ChatType  ChatType
		MessageID int
		ThreadID  int
		Sender    Member
		Text      string
		ReplyTo   *Message
	}
)

// DisplayName prefers the full name, then the username, then the numeric ID.
func (m Member) DisplayName() string {
	if name := strings.TrimSpace(m.FirstName + " " + m.LastName); name != "" {
		return name
	}
	if m.Username != "" {
		return m.Username
	}
	return strconv.FormatInt(m.ID, 10)
}

func (m Message) IsGroup() bool {
	return m.ChatType == ChatTypeGroup || m.ChatType == ChatTypeSupergroup
}

// Target returns the author of the replied-to message, if any.
func (m Message) Target() (Member, bool) {
	if m.ReplyTo == nil || m.ReplyTo.Sender.ID == 0 {
		return Member{}, false
	}
	return m.ReplyTo.Sender, true
}

type Outcome string

const (
	OutcomeClean     Outcome = "clean"
	OutcomeExempt    Outcome = "exempt"
	OutcomeWarned    Outcome = "warned"
	OutcomeEscalated Outcome = "escalated"
	OutcomeHalted    Outcome = "halted"
)

// Report describes what happened to a single flagged message or manual warning.
// Failures collects the non-fatal platform failures met along the way.
type Report struct {
	IncidentID string
	Outcome    Outcome
	Term       string
	Count      int
	Threshold  int
	Banned     bool
	BanUntil   *time.Time
	Failures   []error
}

func (r *Report) fail(err error) {
	r.Failures = append(r.Failures, err)
}

// Err joins all recorded failures.
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.Failures...)
}

// Standing is the current moderation state of a member in a chat.
type Standing struct {
	Count     int
	Threshold int
	Banned    bool
}
