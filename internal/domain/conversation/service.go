package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/store"
)

// NameResolver resolves display names for participantNames snapshots.
type NameResolver interface {
	Names(ctx context.Context, uids ...string) (map[string]string, error)
}

type Service struct {
	repo  *Repo
	names NameResolver
	log   *slog.Logger
	obs   domain.SagaObserver

	// listener restart backoff bounds
	minBackoff, maxBackoff time.Duration
}

func NewService(repo *Repo, names NameResolver, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:       repo,
		names:      names,
		log:        log,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

func (s *Service) SetObserver(obs domain.SagaObserver) {
	s.obs = obs
}

// FindOrCreate returns the conversation between a and b with all messages.
// When none exists one is created under PairID(a, b), seeded with opener
// sent from a to b. A concurrent creator of the same pair wins and its
// conversation is returned instead. WithMessageID fixes the opener's id.
func (s *Service) FindOrCreate(ctx context.Context, a, b, opener string, opts ...SendOption) (*Thread, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	if a == "" || b == "" {
		return nil, fmt.Errorf("%w: both participants are required", ErrBadRequest)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if a == b {
		return nil, ErrCannotMessageSelf
	}

	existing, err := s.find(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.load(ctx, *existing)
	}

	opener = strings.TrimSpace(opener)
	if opener == "" {
		return nil, fmt.Errorf("%w: an opening message is required", ErrBadRequest)
	}
	if utf8.RuneCountInString(opener) > MaxContentLength {
		return nil, fmt.Errorf("%w: message is too long", ErrBadRequest)
	}

	names, err := s.names.Names(ctx, a, b)
	if err != nil {
		return nil, domain.ReadErr(err, "resolve participant names")
	}

	id := PairID(a, b)
	now := domain.Now()
	first := Message{
		ID:         o.messageID,
		SenderID:   a,
		ReceiverID: b,
		Content:    opener,
		Timestamp:  now,
	}
	if first.ID == "" {
		first.ID = s.repo.NewMessageID(id)
	}
	conv := Conversation{
		ID:               id,
		Participants:     []string{a, b},
		ParticipantNames: names,
		LastMessage:      &first,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.repo.CreateWithFirstMessage(ctx, conv, first)
	if errors.Is(err, errConversationExists) {
		s.log.Debug("conversation: lost creation race, loading existing", "conversation_id", id)
		c, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, readErr(err, "conversation %s", id)
		}
		if !c.HasParticipant(a) || !c.HasParticipant(b) {
			s.log.Error("conversation: pair id held by other participants",
				"conversation_id", id, "participants", c.Participants)
			return nil, fmt.Errorf("%w: %s", ErrPairConflict, id)
		}
		return s.load(ctx, *c)
	}
	if err != nil {
		return nil, domain.WriteErr(err, "create conversation %s", id)
	}

	s.log.Info("conversation: created", "conversation_id", id, "sender_id", a, "receiver_id", b)
	return &Thread{Conversation: conv, Messages: []Message{first}, Created: true}, nil
}

// find scans a's conversations for one that also lists b. The pair id wins
// over older randomly keyed duplicates.
func (s *Service) find(ctx context.Context, a, b string) (*Conversation, error) {
	convs, err := s.repo.ForParticipant(ctx, a)
	if err != nil {
		return nil, domain.ReadErr(err, "conversations of %s", a)
	}
	var found *Conversation
	for i := range convs {
		c := &convs[i]
		if !c.HasParticipant(b) {
			continue
		}
		if c.ID == PairID(a, b) {
			return c, nil
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			found = c
		}
	}
	return found, nil
}

func (s *Service) load(ctx context.Context, c Conversation) (*Thread, error) {
	msgs, err := s.repo.Messages(ctx, c.ID)
	if err != nil {
		return nil, domain.ReadErr(err, "messages of %s", c.ID)
	}
	return &Thread{Conversation: c, Messages: msgs}, nil
}

type sendOptions struct {
	messageID string
}

// validate rejects caller-chosen ids that are not a single store path segment.
func (o sendOptions) validate() error {
	id := o.messageID
	switch {
	case id == "":
		return nil
	case len(id) > MaxMessageIDLength:
		return fmt.Errorf("%w: messageId is longer than %d bytes", ErrBadRequest, MaxMessageIDLength)
	case strings.Contains(id, "/"), id == ".", id == "..",
		strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__"):
		return fmt.Errorf("%w: invalid messageId %q", ErrBadRequest, id)
	}
	return nil
}

type SendOption func(*sendOptions)

// WithMessageID fixes the message id so a retried send does not duplicate.
func WithMessageID(id string) SendOption {
	return func(o *sendOptions) { o.messageID = id }
}

// SendMessage appends a message and then overwrites lastMessage. If the
// second write fails the durable message is returned with a *PartialFailure.
func (s *Service) SendMessage(ctx context.Context, convID, senderID, receiverID, content string, opts ...SendOption) (*Message, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	content = strings.TrimSpace(content)
	switch {
	case convID == "" || senderID == "" || receiverID == "":
		return nil, fmt.Errorf("%w: conversationId, senderId and receiverId are required", ErrBadRequest)
	case content == "":
		return nil, fmt.Errorf("%w: message content is empty", ErrBadRequest)
	case utf8.RuneCountInString(content) > MaxContentLength:
		return nil, fmt.Errorf("%w: message is too long", ErrBadRequest)
	case senderID == receiverID:
		return nil, ErrCannotMessageSelf
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	conv, err := s.repo.Get(ctx, convID)
	if err != nil {
		return nil, readErr(err, "conversation %s", convID)
	}
	if !conv.HasParticipant(senderID) || !conv.HasParticipant(receiverID) {
		return nil, ErrNotParticipant
	}

	msg := Message{
		ID:         o.messageID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  domain.Now(),
	}
	if msg.ID == "" {
		msg.ID = s.repo.NewMessageID(convID)
	}

	saga := domain.Saga{Op: "send_message", Logger: s.log, Observer: s.obs}
	err = saga.Run(ctx,
		domain.Step{Name: "append_message", Run: func(ctx context.Context) error {
			stored, err := s.repo.AddMessage(ctx, convID, msg, o.messageID != "")
			if err != nil {
				return domain.WriteErr(err, "append message to %s", convID)
			}
			msg = *stored
			return nil
		}},
		domain.Step{Name: "update_last_message", Run: func(ctx context.Context) error {
			return domain.WriteErr(s.repo.SetLastMessage(ctx, convID, msg), "update lastMessage of %s", convID)
		}},
	)
	if err != nil {
		if domain.IsErrPartialFailure(err) {
			return &msg, err
		}
		return nil, err
	}
	return &msg, nil
}

// MarkRead flips isRead on each listed message addressed to forUser. Writes
// are independent and best-effort; failures are joined. It returns how many
// messages were marked.
func (s *Service) MarkRead(ctx context.Context, convID string, msgIDs []string, forUser string) (int, error) {
	if convID == "" || forUser == "" {
		return 0, fmt.Errorf("%w: conversationId and user are required", ErrBadRequest)
	}
	conv, err := s.repo.Get(ctx, convID)
	if err != nil {
		return 0, readErr(err, "conversation %s", convID)
	}
	if !conv.HasParticipant(forUser) {
		return 0, ErrNotParticipant
	}

	var (
		mu     sync.Mutex
		errs   []error
		marked int
		last   bool
	)
	var g errgroup.Group
	g.SetLimit(8)
	for _, id := range msgIDs {
		if id == "" {
			continue
		}
		g.Go(func() error {
			ok, err := s.markOne(ctx, convID, id, forUser)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			if ok {
				marked++
				if conv.LastMessage != nil && conv.LastMessage.ID == id {
					last = true
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if last {
		if err := s.repo.MarkLastMessageRead(ctx, convID); err != nil {
			errs = append(errs, domain.WriteErr(err, "mark lastMessage read in %s", convID))
		}
	}
	return marked, errors.Join(errs...)
}

func (s *Service) markOne(ctx context.Context, convID, msgID, forUser string) (bool, error) {
	m, err := s.repo.GetMessage(ctx, convID, msgID)
	if store.IsErrNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, readErr(err, "message %s", msgID)
	}
	if m.ReceiverID != forUser || m.IsRead {
		return false, nil
	}
	if err := s.repo.MarkMessageRead(ctx, convID, msgID); err != nil {
		return false, domain.WriteErr(err, "mark message %s read", msgID)
	}
	return true, nil
}

// MarkAllRead marks every unread message addressed to forUser.
func (s *Service) MarkAllRead(ctx context.Context, convID, forUser string) (int, error) {
	unread, err := s.repo.Unread(ctx, convID, forUser)
	if err != nil {
		return 0, domain.ReadErr(err, "unread messages of %s", convID)
	}
	if len(unread) == 0 {
		return 0, nil
	}
	ids := make([]string, len(unread))
	for i, m := range unread {
		ids[i] = m.ID
	}
	return s.MarkRead(ctx, convID, ids, forUser)
}

func (s *Service) Get(ctx context.Context, id string) (*Conversation, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: conversationId is required", ErrBadRequest)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, readErr(err, "conversation %s", id)
	}
	return c, nil
}

// Open loads a conversation and its messages for one of its participants.
func (s *Service) Open(ctx context.Context, id, viewer string) (*Thread, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(viewer) {
		return nil, ErrNotParticipant
	}
	return s.load(ctx, *c)
}

// List returns uid's conversations, most recent activity first.
func (s *Service) List(ctx context.Context, uid string) ([]Conversation, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: uid is required", ErrBadRequest)
	}
	out, err := s.repo.ForParticipant(ctx, uid)
	if err != nil {
		return nil, domain.ReadErr(err, "conversations of %s", uid)
	}
	return out, nil
}

func (s *Service) Messages(ctx context.Context, id string) ([]Message, error) {
	out, err := s.repo.Messages(ctx, id)
	if err != nil {
		return nil, domain.ReadErr(err, "messages of %s", id)
	}
	return out, nil
}

func readErr(err error, format string, args ...any) error {
	if domain.IsKnown(err) {
		return err
	}
	return domain.ReadErr(err, format, args...)
}

// Deliver sends content from one user to another, opening their
// conversation with it when none exists yet.
func (s *Service) Deliver(ctx context.Context, from, to, content string, opts ...SendOption) (*Message, error) {
	th, err := s.FindOrCreate(ctx, from, to, content, opts...)
	if err != nil {
		return nil, err
	}
	if th.Created {
		m := *th.Conversation.LastMessage
		return &m, nil
	}
	return s.SendMessage(ctx, th.Conversation.ID, from, to, content, opts...)
}
