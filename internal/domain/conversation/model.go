package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"rallyup/backend/internal/store"
)

const (
	ColConversations = "conversations"
	ColMessages      = "messages"

	MaxContentLength   = 2000
	MaxMessageIDLength = 128
)

type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"isRead"`
}

// Conversation is a pairwise thread under conversations/{id}; its messages
// live in the messages sub-collection.
type Conversation struct {
	ID               string            `json:"id"`
	Participants     []string          `json:"participants"`
	ParticipantNames map[string]string `json:"participantNames"`
	LastMessage      *Message          `json:"lastMessage,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt,omitempty"`
}

func (c Conversation) HasParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// Other returns the participant that is not uid.
func (c Conversation) Other(uid string) string {
	for _, p := range c.Participants {
		if p != uid {
			return p
		}
	}
	return ""
}

// LastActivity is the newest message time, or creation time for an empty thread.
func (c Conversation) LastActivity() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return c.CreatedAt
}

// Thread is a conversation with its messages in timestamp order.
type Thread struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
	Created      bool         `json:"created"`
}

// MessagesSnapshot is one full refresh of a conversation's messages. Err is
// set when the underlying listener failed; the stream restarts after it.
type MessagesSnapshot struct {
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
	Err            error     `json:"-"`
}

type ConversationsSnapshot struct {
	Conversations []Conversation `json:"conversations"`
	Err           error          `json:"-"`
}

// PairID is the deterministic conversation id for an unordered pair. The
// sorted ids are length-prefixed before hashing so no two pairs share an id,
// whatever characters the uids contain.
func PairID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(strconv.Itoa(len(a)) + ":" + a + b))
	return "dm_" + hex.EncodeToString(sum[:20])
}

func conversationPath(id string) string {
	return store.Join(ColConversations, id)
}

func messagesPath(convID string) string {
	return store.Join(ColConversations, convID, ColMessages)
}

func messagePath(convID, msgID string) string {
	return store.Join(ColConversations, convID, ColMessages, msgID)
}

func (m Message) fields() map[string]any {
	return map[string]any{
		"id":         m.ID,
		"senderId":   m.SenderID,
		"receiverId": m.ReceiverID,
		"content":    m.Content,
		"timestamp":  m.Timestamp,
		"isRead":     m.IsRead,
	}
}

func (c Conversation) fields() map[string]any {
	m := map[string]any{
		"participants":     c.Participants,
		"participantNames": c.ParticipantNames,
		"createdAt":        c.CreatedAt,
		"updatedAt":        c.UpdatedAt,
	}
	if c.LastMessage != nil {
		m["lastMessage"] = c.LastMessage.fields()
	}
	return m
}

func decodeMessage(id string, data map[string]any) (*Message, error) {
	m := &Message{ID: id}
	var bad []string
	var ok bool
	if m.SenderID, ok = store.String(data, "senderId"); !ok {
		bad = append(bad, "senderId")
	}
	if m.ReceiverID, ok = store.String(data, "receiverId"); !ok {
		bad = append(bad, "receiverId")
	}
	if m.Content, ok = store.String(data, "content"); !ok {
		bad = append(bad, "content")
	}
	if m.Timestamp, ok = store.Time(data, "timestamp"); !ok {
		bad = append(bad, "timestamp")
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: message %s: missing or invalid %s", ErrMalformedConversation, id, strings.Join(bad, ", "))
	}
	if v, ok := store.String(data, "id"); ok && v != "" {
		m.ID = v
	}
	m.IsRead, _ = store.Bool(data, "isRead")
	return m, nil
}

func decodeConversation(id string, data map[string]any) (*Conversation, error) {
	c := &Conversation{ID: id}
	parts, ok := store.Strings(data, "participants")
	if !ok || len(parts) != 2 {
		return nil, fmt.Errorf("%w: conversation %s: participants must hold two ids", ErrMalformedConversation, id)
	}
	c.Participants = parts
	c.ParticipantNames, _ = store.StringMap(data, "participantNames")
	if c.ParticipantNames == nil {
		c.ParticipantNames = map[string]string{}
	}
	if lm, ok := store.Map(data, "lastMessage"); ok {
		lmID, _ := store.String(lm, "id")
		if m, err := decodeMessage(lmID, lm); err == nil {
			c.LastMessage = m
		}
	}
	c.CreatedAt, _ = store.Time(data, "createdAt")
	c.UpdatedAt, _ = store.Time(data, "updatedAt")
	return c, nil
}

func sortMessages(ms []Message) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Timestamp.Equal(ms[j].Timestamp) {
			return ms[i].ID < ms[j].ID
		}
		return ms[i].Timestamp.Before(ms[j].Timestamp)
	})
}

// sortByActivity orders an inbox newest first.
func sortByActivity(cs []Conversation) {
	sort.SliceStable(cs, func(i, j int) bool {
		ai, aj := cs[i].LastActivity(), cs[j].LastActivity()
		if ai.Equal(aj) {
			return cs[i].ID < cs[j].ID
		}
		return ai.After(aj)
	})
}
