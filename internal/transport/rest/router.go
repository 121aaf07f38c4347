package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"peercourt/internal/transport/rest/handler"
	"peercourt/internal/transport/ws"
)

// Container holds the router's dependencies.
type Container struct {
	WSHandler      *ws.Handler
	StatusHandler  *handler.StatusHandler
	AllowedOrigins string
}

// NewRouter creates the HTTP router: websocket upgrade plus the read-only
// status surface.
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	r.Use(corsMiddleware(c.AllowedOrigins))

	r.HandleFunc("/ws", c.WSHandler.ServeWS).Methods("GET")
	r.HandleFunc("/status", c.StatusHandler.Status).Methods("GET", "OPTIONS")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
