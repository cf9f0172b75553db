package conversation

import (
	"context"
	"errors"
	"time"

	"rallyup/backend/internal/store"
)

// ListenForMessages streams full refreshes of a conversation's messages until
// ctx ends, then closes the channel. A listener failure is delivered as a
// snapshot with Err set and the listener is re-attached after a backoff.
func (s *Service) ListenForMessages(ctx context.Context, convID string) <-chan MessagesSnapshot {
	out := make(chan MessagesSnapshot, 1)
	go func() {
		defer close(out)
		s.follow(ctx, "messages", convID,
			func(ctx context.Context) (store.Subscription, error) {
				return s.repo.ListenMessages(ctx, convID)
			},
			func(docs []store.Doc, err error) bool {
				snap := MessagesSnapshot{ConversationID: convID, Err: err}
				if err == nil {
					snap.Messages = s.repo.decodeMessages(docs)
				}
				return send(ctx, out, snap)
			})
	}()
	return out
}

// ListenForConversations streams uid's inbox, newest activity first, with the
// same restart behaviour as ListenForMessages.
func (s *Service) ListenForConversations(ctx context.Context, uid string) <-chan ConversationsSnapshot {
	out := make(chan ConversationsSnapshot, 1)
	go func() {
		defer close(out)
		s.follow(ctx, "conversations", uid,
			func(ctx context.Context) (store.Subscription, error) {
				return s.repo.ListenConversations(ctx, uid)
			},
			func(docs []store.Doc, err error) bool {
				snap := ConversationsSnapshot{Err: err}
				if err == nil {
					snap.Conversations = s.repo.decodeConversations(docs)
				}
				return send(ctx, out, snap)
			})
	}()
	return out
}

// follow attaches a subscription and hands every snapshot to emit until ctx
// ends or emit returns false.
func (s *Service) follow(
	ctx context.Context,
	kind, key string,
	attach func(context.Context) (store.Subscription, error),
	emit func([]store.Doc, error) bool,
) {
	backoff := s.minBackoff
	for ctx.Err() == nil {
		sub, err := attach(ctx)
		if err == nil {
			err = s.drain(ctx, sub, emit, &backoff)
			sub.Stop()
			if err == nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		s.log.Warn("conversation: listener failed, restarting",
			"kind", kind, "key", key, "backoff", backoff, "error", err)
		if !emit(nil, err) {
			return
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// drain returns nil when the stream ended normally.
func (s *Service) drain(ctx context.Context, sub store.Subscription, emit func([]store.Doc, error) bool, backoff *time.Duration) error {
	for {
		docs, err := sub.Next()
		if errors.Is(err, store.ErrDone) {
			return nil
		}
		if err != nil {
			return err
		}
		*backoff = s.minBackoff
		if !emit(docs, nil) {
			return nil
		}
	}
}

func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
