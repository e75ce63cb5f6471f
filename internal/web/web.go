package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"findash/internal/agenda"
	"findash/internal/chat"
	"findash/internal/diag"
	"findash/internal/finance"
	appLog "findash/internal/log"
	"findash/internal/model"
	"findash/internal/present"
	"findash/internal/session"
)

// maxChatBody bounds POST bodies on the chat endpoints.
const maxChatBody = 64 << 10

// weekEndLayout keeps millisecond precision so the inclusive week end
// reads as Sunday 23:59:59.999.
const weekEndLayout = "2006-01-02T15:04:05.000Z07:00"

// WeekProvider is satisfied by *agenda.Service.
type WeekProvider interface {
	Week(ctx context.Context) (agenda.Week, error)
}

// Replier is satisfied by *chat.Relay.
type Replier interface {
	Reply(ctx context.Context, message string) (string, error)
}

// StatusSource is satisfied by *diag.Registry.
type StatusSource interface {
	Snapshot() []diag.Status
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Week     WeekProvider
	Chat     Replier
	Status   StatusSource
	Renderer *present.Renderer
	Finance  finance.Snapshot
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server serves the dashboard pages and the JSON API.
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// embeddedStatic holds the stylesheet and the script that loads the events
// fragment into the dashboard shell.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on listen until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/calendar", s.handleCalendar)
	s.mux.HandleFunc("/api/chat", s.handleChatAPI)
	s.mux.HandleFunc("/api/sources", s.handleSources)
	s.mux.HandleFunc("/partials/events", s.handleEventsPartial)
	s.mux.HandleFunc("/chat", s.handleChatPage)
	s.mux.Handle("/static/", s.staticFileServer())
	s.mux.HandleFunc("/", s.handleShell)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// calendarResponse is the JSON response shape for /api/calendar.
type calendarResponse struct {
	Events    []model.CalendarEvent `json:"events"`
	WeekStart string                `json:"week_start"`
	WeekEnd   string                `json:"week_end"`
	TimeZone  string                `json:"timezone"`
}

// handleCalendar returns the current week's events from every source,
// flattened in day order.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	wk, err := s.deps.Week.Week(r.Context())
	if err != nil {
		appLog.Error("api calendar failed", err)
		writeError(w, http.StatusInternalServerError, session.LoadError)
		return
	}

	writeJSON(w, http.StatusOK, calendarResponse{
		Events:    wk.Events,
		WeekStart: wk.Window.Start.Format(time.RFC3339),
		WeekEnd:   wk.Window.Last().Format(weekEndLayout),
		TimeZone:  wk.Window.Location.String(),
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// handleChatAPI relays one message. POST only.
func (s *Server) handleChatAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reply, err := s.deps.Chat.Reply(r.Context(), req.Message)
	if err != nil {
		status, msg := chatErrorStatus(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

func chatErrorStatus(err error) (int, string) {
	if errors.Is(err, chat.ErrEmptyMessage) {
		return http.StatusBadRequest, "No message provided"
	}
	var ue *chat.UpstreamError
	if errors.As(err, &ue) {
		if ue.Retryable {
			return http.StatusGatewayTimeout, ue.UserMessage()
		}
		return http.StatusBadGateway, ue.UserMessage()
	}
	appLog.Error("chat failed", err)
	return http.StatusInternalServerError, "Failed to process chat message"
}

type sourcesResponse struct {
	Sources []diag.Status `json:"sources"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, sourcesResponse{Sources: s.deps.Status.Snapshot()})
}

// handleShell serves the dashboard page at "/" only.
func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.deps.Renderer.Shell(w, s.deps.Now(), s.deps.Finance); err != nil {
		appLog.Error("render shell failed", err)
	}
}

// handleEventsPartial renders the events panel in its loaded, empty or
// failed state.
func (s *Server) handleEventsPartial(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := session.NewDashboard()
	if wk, err := s.deps.Week.Week(r.Context()); err != nil {
		appLog.Error("events partial failed", err)
		state = state.Update(session.EventsFailed{Message: session.LoadError})
	} else {
		state = state.Update(session.EventsLoaded{Buckets: wk.Buckets})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.deps.Renderer.Events(w, state); err != nil {
		appLog.Error("render events failed", err)
	}
}

// handleChatPage serves the form-based chat. The transcript travels with
// each POST in a hidden field, so reloading the page clears it.
func (s *Server) handleChatPage(w http.ResponseWriter, r *http.Request) {
	page := present.ChatPage{}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}
		page = s.converse(r.Context(), r.PostForm.Get("transcript"), r.PostForm.Get("message"))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.deps.Renderer.Chat(w, page); err != nil {
		appLog.Error("render chat failed", err)
	}
}

func (s *Server) converse(ctx context.Context, transcript, message string) present.ChatPage {
	c := &session.Chat{Now: s.deps.Now}
	page := present.ChatPage{}

	turns, err := session.DecodeTranscript(transcript)
	if err != nil {
		appLog.Error("chat transcript discarded", err)
		page.Notice = "Previous messages could not be restored."
	}
	c.Turns = turns

	if turn, err := c.Submit(message); err != nil {
		page.Notice = "Please type a message."
	} else {
		reply, err := s.deps.Chat.Reply(ctx, turn.Content)
		if err != nil {
			_, msg := chatErrorStatus(err)
			_, _ = c.Fail(msg)
		} else {
			_, _ = c.Resolve(reply)
		}
	}

	page.Turns = c.Turns
	enc, err := session.EncodeTranscript(c.Turns)
	if err != nil {
		appLog.Error("chat transcript encode failed", err)
	}
	page.Transcript = enc
	return page
}

// staticFileServer serves the embedded assets under /static/.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static assets not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No directory listings.
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
