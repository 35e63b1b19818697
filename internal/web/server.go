package web

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/auto-accounting/internal/backend"
	"github.com/zombor/auto-accounting/internal/imagestate"
	"github.com/zombor/auto-accounting/internal/ledger"
	"github.com/zombor/auto-accounting/internal/preview"
)

// Binarizer sends the selected image to the backend
type Binarizer interface {
	Binarize(ctx context.Context, filename string, data []byte) (*backend.Result, error)
}

// Previewer opens live preview handles for display
type Previewer interface {
	Open(h preview.Handle) ([]byte, string, error)
}

// Server serves the top and result screens
type Server struct {
	sessions  *imagestate.Registry
	previews  Previewer
	backend   Binarizer
	catalog   []ledger.LineItem
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(sessions *imagestate.Registry, previews Previewer, binarizer Binarizer, catalog []ledger.LineItem, basicAuth BasicAuth) *Server {
	return NewServerWithMux(sessions, previews, binarizer, catalog, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(sessions *imagestate.Registry, previews Previewer, binarizer Binarizer, catalog []ledger.LineItem, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	if catalog == nil {
		catalog = ledger.DefaultCatalog()
	}
	s := &Server{
		sessions:  sessions,
		previews:  previews,
		backend:   binarizer,
		catalog:   catalog,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	return user == s.basicAuth.Username && pass == s.basicAuth.Password
}

// corsMiddleware adds CORS headers and answers preflight requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Auto Accounting"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.handleStaticCSS)

	// Top screen
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleTop))
	s.mux.HandleFunc("POST /image", s.requireAuth(s.handleSelectImage))
	s.mux.HandleFunc("POST /image/clear", s.requireAuth(s.handleClearImage))
	s.mux.HandleFunc("POST /account", s.requireAuth(s.handleAccount))

	// Result screen
	s.mux.HandleFunc("GET /result", s.requireAuth(s.handleResult))

	s.mux.HandleFunc("GET /preview/{handle}", s.requireAuth(s.handlePreview))

	// JSON API
	s.mux.HandleFunc("GET /api/image", s.requireAuth(s.handleAPIImage))
	s.mux.HandleFunc("GET /api/result", s.requireAuth(s.handleAPIResult))
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// Start serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
