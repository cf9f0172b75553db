package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"rallyup/backend/internal/domain/profile"
)

func mountProfile(pr chi.Router, d RouterDeps) {
	// create the stub profile for the signed-in user
	pr.Post("/v1/me/profile", func(w http.ResponseWriter, r *http.Request) {
		p := principal(r)
		var in struct {
			FullName string `json:"fullName"`
			Email    string `json:"email"`
		}
		if r.ContentLength != 0 && !decode(w, r, &in) {
			return
		}
		name := strings.TrimSpace(in.FullName)
		if name == "" {
			name = p.Name
		}
		email := p.Email
		if email == "" {
			email = in.Email
		}
		if err := d.ProfileSvc.CreateStubProfile(r.Context(), p.UID, name, email); err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 201, map[string]any{"ok": true, "uid": p.UID})
	})

	pr.Get("/v1/me/profile", func(w http.ResponseWriter, r *http.Request) {
		u, err := d.ProfileSvc.GetProfile(r.Context(), principal(r).UID)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, u)
	})

	pr.Patch("/v1/me/profile", func(w http.ResponseWriter, r *http.Request) {
		var in profile.UpdateProfileInput
		if !decode(w, r, &in) {
			return
		}
		uid := principal(r).UID
		if in.ProfileImage != nil && *in.ProfileImage != "" && d.Uploads != nil {
			if err := d.Uploads.VerifyAvatar(r.Context(), uid, *in.ProfileImage); err != nil {
				failErr(w, r, d.Log, err)
				return
			}
		}
		if err := d.ProfileSvc.UpdateProfile(r.Context(), uid, in); err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		complete, _ := d.ProfileSvc.IsProfileComplete(r.Context(), uid)
		WriteJSON(w, 200, map[string]any{"ok": true, "profileComplete": complete})
	})

	pr.Get("/v1/me/profile/complete", func(w http.ResponseWriter, r *http.Request) {
		complete, err := d.ProfileSvc.IsProfileComplete(r.Context(), principal(r).UID)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, map[string]any{"complete": complete})
	})

	pr.Post("/v1/me/reconcile", func(w http.ResponseWriter, r *http.Request) {
		rep, err := d.Lifecycle.Reconcile(r.Context(), principal(r).UID)
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		WriteJSON(w, 200, rep)
	})

	pr.Get("/v1/users/{uid}/profile", func(w http.ResponseWriter, r *http.Request) {
		u, err := d.ProfileSvc.GetProfile(r.Context(), chi.URLParam(r, "uid"))
		if err != nil {
			failErr(w, r, d.Log, err)
			return
		}
		// public view
		u.SessionHistory = nil
		u.CreatedSessions = nil
		u.Email = ""
		WriteJSON(w, 200, u)
	})
}
