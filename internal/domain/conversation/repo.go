package conversation

import (
	"context"
	"errors"
	"log/slog"

	"rallyup/backend/internal/store"
)

var errConversationExists = errors.New("conversation exists")

type Repo struct {
	st  store.Store
	log *slog.Logger
}

func NewRepo(st store.Store, log *slog.Logger) *Repo {
	if log == nil {
		log = slog.Default()
	}
	return &Repo{st: st, log: log}
}

func (r *Repo) NewMessageID(convID string) string {
	return r.st.NewID(messagesPath(convID))
}

func (r *Repo) Get(ctx context.Context, id string) (*Conversation, error) {
	doc, err := r.st.Get(ctx, conversationPath(id))
	if err != nil {
		return nil, err
	}
	return decodeConversation(doc.ID, doc.Data)
}

// ForParticipant returns every conversation listing uid.
func (r *Repo) ForParticipant(ctx context.Context, uid string) ([]Conversation, error) {
	docs, err := r.st.Query(ctx, participantQuery(uid))
	if err != nil {
		return nil, err
	}
	return r.decodeConversations(docs), nil
}

// CreateWithFirstMessage writes the conversation and its opening message in
// one transaction. errConversationExists is returned if the id is taken.
func (r *Repo) CreateWithFirstMessage(ctx context.Context, c Conversation, first Message) error {
	return r.st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Get(conversationPath(c.ID))
		if err == nil {
			return errConversationExists
		}
		if !store.IsErrNotFound(err) {
			return err
		}
		if err := tx.Set(conversationPath(c.ID), c.fields(), false); err != nil {
			return err
		}
		return tx.Set(messagePath(c.ID, first.ID), first.fields(), false)
	})
}

// AddMessage appends m. With createOnly an existing message of the same id
// is left as is and returned.
func (r *Repo) AddMessage(ctx context.Context, convID string, m Message, createOnly bool) (*Message, error) {
	path := messagePath(convID, m.ID)
	if !createOnly {
		if err := r.st.Set(ctx, path, m.fields(), false); err != nil {
			return nil, err
		}
		return &m, nil
	}
	err := r.st.Create(ctx, path, m.fields())
	if store.IsErrAlreadyExists(err) {
		return r.GetMessage(ctx, convID, m.ID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) GetMessage(ctx context.Context, convID, msgID string) (*Message, error) {
	doc, err := r.st.Get(ctx, messagePath(convID, msgID))
	if err != nil {
		return nil, err
	}
	return decodeMessage(doc.ID, doc.Data)
}

// SetLastMessage overwrites lastMessage unless the stored one is newer.
func (r *Repo) SetLastMessage(ctx context.Context, convID string, m Message) error {
	return r.st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(conversationPath(convID))
		if err != nil {
			return err
		}
		if cur, err := decodeConversation(doc.ID, doc.Data); err == nil && cur.LastMessage != nil {
			if cur.LastMessage.ID != m.ID && cur.LastMessage.Timestamp.After(m.Timestamp) {
				return nil
			}
		}
		return tx.Update(conversationPath(convID), map[string]any{
			"lastMessage": m.fields(),
			"updatedAt":   m.Timestamp,
		})
	})
}

func (r *Repo) Messages(ctx context.Context, convID string) ([]Message, error) {
	docs, err := r.st.Query(ctx, messagesQuery(convID))
	if err != nil {
		return nil, err
	}
	return r.decodeMessages(docs), nil
}

// Unread returns messages addressed to uid that are not yet read.
func (r *Repo) Unread(ctx context.Context, convID, uid string) ([]Message, error) {
	q := store.Query{Collection: messagesPath(convID)}.
		Where("receiverId", store.OpEqual, uid).
		Where("isRead", store.OpEqual, false)
	docs, err := r.st.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return r.decodeMessages(docs), nil
}

func (r *Repo) MarkMessageRead(ctx context.Context, convID, msgID string) error {
	return r.st.Update(ctx, messagePath(convID, msgID), map[string]any{"isRead": true})
}

func (r *Repo) MarkLastMessageRead(ctx context.Context, convID string) error {
	return r.st.Update(ctx, conversationPath(convID), map[string]any{"lastMessage.isRead": true})
}

func (r *Repo) ListenMessages(ctx context.Context, convID string) (store.Subscription, error) {
	return r.st.Listen(ctx, messagesQuery(convID))
}

func (r *Repo) ListenConversations(ctx context.Context, uid string) (store.Subscription, error) {
	return r.st.Listen(ctx, participantQuery(uid))
}

func participantQuery(uid string) store.Query {
	return store.Query{Collection: ColConversations}.Where("participants", store.OpArrayContains, uid)
}

func messagesQuery(convID string) store.Query {
	return store.Query{Collection: messagesPath(convID), OrderBy: "timestamp"}
}

func (r *Repo) decodeMessages(docs []store.Doc) []Message {
	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		m, err := decodeMessage(d.ID, d.Data)
		if err != nil {
			r.log.Warn("conversation: skipping malformed message", "path", d.Path, "error", err)
			continue
		}
		out = append(out, *m)
	}
	sortMessages(out)
	return out
}

func (r *Repo) decodeConversations(docs []store.Doc) []Conversation {
	out := make([]Conversation, 0, len(docs))
	for _, d := range docs {
		c, err := decodeConversation(d.ID, d.Data)
		if err != nil {
			r.log.Warn("conversation: skipping malformed conversation", "path", d.Path, "error", err)
			continue
		}
		out = append(out, *c)
	}
	sortByActivity(out)
	return out
}
