package rest

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/sambamount/internal/version"
)

// RouterConfig holds everything the HTTP surface serves.
type RouterConfig struct {
	Mounts MountService
	// OnChange runs after a successful mount or unmount.
	OnChange func()
	// SocketIO serves /socket.io/. Optional.
	SocketIO http.Handler
	// Metrics serves /metrics. Nil disables the endpoint.
	Metrics http.Handler
	// StaticDir, when set, is served as a single page app.
	StaticDir string
}

// NewRouter creates the chi router with middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /api/v1/version - Build information
//   - GET|POST|DELETE /api/v1/mounts - Mount management
//   - /socket.io/* - Socket.io transport
//   - GET /metrics - Prometheus metrics (when enabled)
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(corsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusOK, version.GetInfo())
		})
		NewMountHandler(cfg.Mounts, cfg.OnChange).Routes(r)
	})

	if cfg.SocketIO != nil {
		r.Handle("/socket.io/*", cfg.SocketIO)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.StaticDir != "" {
		log.Info().Str("dir", cfg.StaticDir).Msg("Serving static files")
		r.Get("/*", spaHandler(cfg.StaticDir))
	}

	return r
}

// spaHandler serves files from dir and falls back to index.html for
// unknown paths so client side routing works.
func spaHandler(dir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return func(w http.ResponseWriter, r *http.Request) {
		p := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if r.URL.Path == "/" {
			p = index
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			http.ServeFile(w, r, index)
			return
		}
		fs.ServeHTTP(w, r)
	}
}

// requestLogger logs each API request. Socket.io polling and health checks
// are logged at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		ev := log.Info()
		if quietPath(r.URL.Path) {
			ev = log.Debug()
		}
		ev.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("API request completed")
	})
}

func quietPath(p string) bool {
	return p == "/health" || p == "/metrics" || strings.HasPrefix(p, "/socket.io/")
}
