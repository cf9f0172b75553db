package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/domain/session"
	"rallyup/backend/internal/utils"
	"rallyup/backend/internal/venues"
)

func mountSessions(pr chi.Router, d RouterDeps) {
	pr.Get("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := session.ListFilter{
			Sport:         q.Get("sport"),
			Query:         q.Get("q"),
			HostID:        q.Get("host"),
			ParticipantID: q.Get("participant"),
		}
		if q.Get("participant") == "me" {
			f.ParticipantID = principal(r).UID
		}
		if q.Get("host") == "me" {
			f.HostID = principal(r).UID
		}
		if up, _ := strconv.ParseBool(q.Get("upcoming")); up {
			f.UpcomingOnly = true
			f.Now = time.Now().UTC()
		}
		// from=<time> lists sessions starting after that instant
		if v := q.Get("from"); v != "" {
			from, err := utils.ParseTime(v)
			if err != nil {
				failErr(w, r, d.Log, badRequest("from must be an RFC 3339 time or date"))
				return
			}
			f.UpcomingOnly = true
			f.Now = from
		}
		out, err := d.SessionSvc.List(r.Context(), f)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, map[string]any{"sessions": out})
	})

	pr.Post("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		var in session.Draft
		if !decode(w, r, &in) {
			return
		}
		sess, err := d.SessionSvc.Create(r.Context(), principal(r).UID, in)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 201, sess)
	})

	pr.Get("/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sess, err := d.SessionSvc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, sess)
	})

	pr.Patch("/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		var in session.UpdateDetailsInput
		if !decode(w, r, &in) {
			return
		}
		sess, err := d.SessionSvc.UpdateDetails(r.Context(), chi.URLParam(r, "id"), principal(r).UID, in)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, sess)
	})

	pr.Delete("/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Lifecycle.DeleteSession(r.Context(), chi.URLParam(r, "id"), principal(r).UID); err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, map[string]any{"ok": true})
	})

	pr.Post("/v1/sessions/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		if err := d.SessionSvc.Join(r.Context(), chi.URLParam(r, "id"), principal(r).UID); err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, map[string]any{"ok": true})
	})

	pr.Post("/v1/sessions/{id}/leave", func(w http.ResponseWriter, r *http.Request) {
		if err := d.SessionSvc.Leave(r.Context(), chi.URLParam(r, "id"), principal(r).UID); err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, map[string]any{"ok": true})
	})

	pr.Post("/v1/sessions/{id}/toggle", func(w http.ResponseWriter, r *http.Request) {
		joined, err := d.Lifecycle.ToggleParticipation(r.Context(), chi.URLParam(r, "id"), principal(r).UID)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, map[string]any{"joined": joined})
	})

	pr.Post("/v1/sessions/{id}/message-host", func(w http.ResponseWriter, r *http.Request) {
		th, err := d.Lifecycle.MessageHost(r.Context(), chi.URLParam(r, "id"), principal(r).UID)
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

	pr.Delete("/v1/sessions/{id}/participants/{uid}", func(w http.ResponseWriter, r *http.Request) {
		err := d.Lifecycle.RemoveParticipant(r.Context(), chi.URLParam(r, "id"), principal(r).UID, chi.URLParam(r, "uid"))
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, map[string]any{"ok": true})
	})
}

func venueParams(r *http.Request) (venues.SearchParams, error) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err1 != nil || err2 != nil {
		return venues.SearchParams{}, badRequest("lat and lng are required numbers")
	}
	p := venues.SearchParams{
		Lat:          lat,
		Lng:          lng,
		Query:        strings.TrimSpace(q.Get("q")),
		CategoryHint: strings.TrimSpace(q.Get("sport")),
	}
	if v := q.Get("radius"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return venues.SearchParams{}, badRequest("radius must be an integer")
		}
		p.RadiusMeters = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return venues.SearchParams{}, badRequest("limit must be an integer")
		}
		p.Limit = n
	}
	return p, nil
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrBadRequest, msg)
}
