package web

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/simonvc/custody/internal/ledger"
	"github.com/simonvc/custody/internal/server"
	"go.uber.org/zap"
)

//go:embed static/index.html
var indexHTML []byte

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Server serves the web terminal UI. Every browser session is a sandbox:
// its own SQLite ledger under ledgerDir and its own account.
type Server struct {
	addr      string
	ledgerDir string
	router    chi.Router
	log       *zap.Logger
}

func NewServer(addr, ledgerDir string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(server.RequestLogger(log))
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:      addr,
		ledgerDir: ledgerDir,
		router:    r,
		log:       log,
	}

	r.Get("/", s.handleIndex)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/session", s.handleSession)
	r.Post("/reset", s.handleReset)
	r.Get("/join/{id}", s.handleJoin)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return s
}

const cookieName = "custody_session"

// sessionAccount is the caller a session deposits and withdraws as.
func sessionAccount(id string) ledger.AccountID {
	return ledger.AccountIDFromName("web-session:" + id)
}

func (s *Server) dbPath(id string) string {
	return filepath.Join(s.ledgerDir, id+".db")
}

// sessionID reads or creates a session UUID cookie.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil && uuidRe.MatchString(c.Value) {
		return c.Value
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60, // 30 days
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// readSessionID reads the session cookie without writing headers.
func readSessionID(r *http.Request) (string, error) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return "", fmt.Errorf("no session cookie")
	}
	if !uuidRe.MatchString(c.Value) {
		return "", fmt.Errorf("invalid session cookie")
	}
	return c.Value, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.sessionID(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, err := readSessionID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"session":%q,"account":%q,"join":%q}`, id, sessionAccount(id), "/join/"+id)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, err := readSessionID(r)
	if err != nil {
		http.Error(w, "no valid session", http.StatusBadRequest)
		return
	}

	base := s.dbPath(id)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		os.Remove(base + suffix)
	}
	s.log.Info("session reset", zap.String("session", id))

	// Clear the cookie so the next page load gets a fresh session.
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("reset"))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !uuidRe.MatchString(id) {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	if _, err := os.Stat(s.dbPath(id)); os.IsNotExist(err) {
		http.Error(w, "ledger not found", http.StatusNotFound)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves the web terminal until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web terminal listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
