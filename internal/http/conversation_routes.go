package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rallyup/backend/internal/domain/conversation"
)

func mountConversations(pr chi.Router, d RouterDeps) {
	pr.Get("/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		out, err := d.ConversationSvc.List(r.Context(), principal(r).UID)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, map[string]any{"conversations": out})
	})

	pr.Post("/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			OtherUserID string `json:"otherUserId"`
			Message     string `json:"message"`
		}
		if !decode(w, r, &in) {
			return
		}
		th, err := d.ConversationSvc.FindOrCreate(r.Context(), principal(r).UID, in.OtherUserID, in.Message)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		status := 200
		if th.Created {
			status = 201
		}
		WriteJSON(w, status, th)
	})

	// static before {id}
	pr.Get("/v1/conversations/stream", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Streams.Conversations(w, r, principal(r).UID); err != nil {
			failErr(w, r, d.Log, err)
		}
	})

	pr.Get("/v1/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		th, err := d.ConversationSvc.Open(r.Context(), chi.URLParam(r, "id"), principal(r).UID)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, th)
	})

	pr.Get("/v1/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		th, err := d.ConversationSvc.Open(r.Context(), chi.URLParam(r, "id"), principal(r).UID)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, map[string]any{"messages": th.Messages})
	})

	pr.Post("/v1/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Content   string `json:"content"`
			MessageID string `json:"messageId,omitempty"`
		}
		if !decode(w, r, &in) {
			return
		}
		id, uid := chi.URLParam(r, "id"), principal(r).UID
		conv, err := d.ConversationSvc.Get(r.Context(), id)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		if !conv.HasParticipant(uid) {
			failErr(w, r, d.Log, conversation.ErrNotParticipant)
			return
		}

		var opts []conversation.SendOption
		if in.MessageID != "" {
			opts = append(opts, conversation.WithMessageID(in.MessageID))
		}
		msg, err := d.ConversationSvc.SendMessage(r.Context(), id, uid, conv.Other(uid), in.Content, opts...)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 201, msg)
	})

	pr.Post("/v1/conversations/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			MessageIDs []string `json:"messageIds,omitempty"`
		}
		if r.ContentLength != 0 && !decode(w, r, &in) {
			return
		}
		id, uid := chi.URLParam(r, "id"), principal(r).UID
		var (
			n   int
			err error
		)
		if len(in.MessageIDs) == 0 {
			n, err = d.ConversationSvc.MarkAllRead(r.Context(), id, uid)
		} else {
			n, err = d.ConversationSvc.MarkRead(r.Context(), id, in.MessageIDs, uid)
		}
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, map[string]any{"marked": n})
	})

	pr.Get("/v1/conversations/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Streams.Messages(w, r, chi.URLParam(r, "id"), principal(r).UID); err != nil {
			failErr(w, r, d.Log, err)
		}
	})
}
