package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"

	"rallyup/backend/internal/app"
	"rallyup/backend/internal/config"
	"rallyup/backend/internal/handlers"
	apihttp "rallyup/backend/internal/http"
	"rallyup/backend/internal/logging"
	"rallyup/backend/internal/metrics"
	"rallyup/backend/internal/middleware"
	"rallyup/backend/internal/realtime"
	"rallyup/backend/internal/telemetry"
	"rallyup/backend/internal/venues"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "info", "text").Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	shutdownTracing, err := telemetry.Init("rallyup-api", cfg.TraceExporter)
	if err != nil {
		log.Error("tracing init failed", "error", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("app init failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	m := metrics.New()
	a.Observe(m)

	var verifier middleware.TokenVerifier
	switch {
	case cfg.AuthInsecureDev:
		log.Warn("AUTH_INSECURE_DEV is set: bearer tokens are taken as uids")
		verifier = middleware.InsecureDevVerifier{}
	case a.Auth() != nil:
		verifier = a.Auth()
	default:
		log.Error("no token verifier: the memory backend requires AUTH_INSECURE_DEV=true")
		os.Exit(1)
	}

	venueClient := venues.New(venues.Config{
		BaseURL:  cfg.FoursquareBaseURL,
		APIKey:   cfg.FoursquareAPIKey,
		Observer: m,
	})
	if !venueClient.Enabled() {
		log.Info("FOURSQUARE_API_KEY not set, venue search disabled")
	}

	// IAM client is optional; only needed for signed URLs.
	var signer handlers.BlobSigner
	if cfg.SignedURLServiceAccountEmail != "" {
		iamClient, err := credentials.NewIamCredentialsClient(ctx)
		if err != nil {
			log.Warn("iam credentials client init failed, avatar uploads disabled", "error", err)
		} else {
			defer iamClient.Close()
			signer = handlers.IAMSigner(iamClient)
		}
	}

	uploads := handlers.NewUploads(cfg, signer, log)
	if a.Clients != nil {
		uploads.SetObjectStat(handlers.StorageStat(a.Clients.Storage))
	}

	streams := realtime.New(a.Conversations, cfg.AllowedOrigins, log)
	streams.SetObserver(m)

	router := apihttp.NewRouter(apihttp.RouterDeps{
		Cfg:             cfg,
		Log:             log,
		Verifier:        verifier,
		Metrics:         m,
		ProfileSvc:      a.Profiles,
		SessionSvc:      a.Sessions,
		ConversationSvc: a.Conversations,
		Lifecycle:       a.Lifecycle,
		Venues:          venueClient,
		Streams:         streams,
		Uploads:         uploads,
	})

	// WriteTimeout does not apply to hijacked websocket connections.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// graceful shutdown
	go func() {
		log.Info("API listening", "port", cfg.Port, "project", cfg.ProjectID, "backend", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("shutting down...")
	_ = srv.Shutdown(ctxShutdown)
	_ = shutdownTracing(ctxShutdown)
}
