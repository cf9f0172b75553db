package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/cors"
)

func CORS(allowedOrigins []string, log *slog.Logger) func(http.Handler) http.Handler {
	log.Info("middleware: cors configured", "allowed_origins", allowedOrigins)

	// empty allows all (development)
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
