// Package app wires the store, the domain services and their collaborators
// for the API server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/auth"

	"rallyup/backend/internal/config"
	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/domain/conversation"
	"rallyup/backend/internal/domain/lifecycle"
	"rallyup/backend/internal/domain/profile"
	"rallyup/backend/internal/domain/session"
	"rallyup/backend/internal/firebase"
	"rallyup/backend/internal/store"
	"rallyup/backend/internal/store/memstore"
)

type App struct {
	Cfg     config.Config
	Log     *slog.Logger
	Store   store.Store
	Clients *firebase.Clients // nil on the memory backend

	Profiles      *profile.Service
	Sessions      *session.Service
	Conversations *conversation.Service
	Lifecycle     *lifecycle.Orchestrator
}

// New connects the configured backend and builds the services on it.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn("app: using in-memory store; data is lost on exit")
		a.Store = memstore.New()
	case config.BackendFirestore:
		clients, err := firebase.NewClients(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("firebase init failed: %w", err)
		}
		a.Clients = clients
		a.Store = store.NewFirestore(clients.Firestore)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	a.build()
	return a, nil
}

// NewWithStore builds the services on an existing store.
func NewWithStore(cfg config.Config, st store.Store, log *slog.Logger) *App {
	a := &App{Cfg: cfg, Log: log, Store: st}
	a.build()
	return a
}

func (a *App) build() {
	a.Profiles = profile.NewService(profile.NewRepo(a.Store), a.Log)
	a.Sessions = session.NewService(session.NewRepo(a.Store), a.Profiles, a.Log)
	a.Conversations = conversation.NewService(conversation.NewRepo(a.Store, a.Log), a.Profiles.Names(), a.Log)
	a.Lifecycle = lifecycle.New(a.Sessions, a.Profiles, a.Conversations, a.Log)
	if a.Clients != nil {
		a.Profiles.SetAuthUpdater(a.Clients.Auth)
	}
}

// Observe routes saga outcomes of every service to obs.
func (a *App) Observe(obs domain.SagaObserver) {
	a.Sessions.SetObserver(obs)
	a.Conversations.SetObserver(obs)
	a.Lifecycle.SetObserver(obs)
}

// Auth is the Firebase Auth client, nil on the memory backend.
func (a *App) Auth() *auth.Client {
	if a.Clients == nil {
		return nil
	}
	return a.Clients.Auth
}

func (a *App) Close() error {
	return a.Clients.Close()
}
