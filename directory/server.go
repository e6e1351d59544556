package directory

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"panel-lab/auth"
	"panel-lab/domain"
	"panel-lab/errors"
	"panel-lab/services"

	"github.com/go-playground/validator/v10"
)

const maxBodySize = 64 << 10

// Server is the Session Directory: accounts, coarse panel state, audit trail
// and the signaling relay, all behind one mux.
type Server struct {
	log    *slog.Logger
	auth   services.IAuthService
	panels services.IPanelService
	issuer auth.Issuer
	relay  http.Handler
}

func NewServer(log *slog.Logger, authService services.IAuthService, panelService services.IPanelService,
	issuer auth.Issuer, relay http.Handler) *Server {
	return &Server{log: log, auth: authService, panels: panelService, issuer: issuer, relay: relay}
}

// Handler routes every endpoint. Only /auth/ and /signal skip the token check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register/{$}", s.register)
	mux.HandleFunc("POST /auth/login/{$}", s.login)

	mux.HandleFunc("GET /panels/{$}", s.listPanels)
	mux.HandleFunc("POST /panels/create/{$}", s.createPanel)
	mux.HandleFunc("POST /panels/{id}/join/{$}", s.joinPanel)
	mux.HandleFunc("POST /panels/{id}/leave/{$}", s.leavePanel)
	mux.HandleFunc("POST /panels/{id}/raise-hand/{$}", s.recordAction(domain.AuditRaiseHand))
	mux.HandleFunc("POST /panels/{id}/lower-hand/{$}", s.recordAction(domain.AuditLowerHand))
	mux.HandleFunc("POST /panels/{id}/mute-all/{$}", s.recordAction(domain.AuditMuteAll))
	mux.HandleFunc("POST /panels/{id}/promote/{participantId}/{$}", s.recordAction(domain.AuditPromote))
	mux.HandleFunc("POST /panels/{id}/kick/{participantId}/{$}", s.kick)
	mux.HandleFunc("POST /panels/{id}/end/{$}", s.endPanel)
	mux.HandleFunc("GET /panels/{id}/audit/{$}", s.audit)

	if s.relay != nil {
		mux.Handle("GET /signal", s.relay)
	}

	return auth.Middleware(s.issuer, "/auth/", "/signal")(mux)
}

type tokenResponse struct {
	Token string `json:"token"`
}

type createResponse struct {
	ID domain.PanelID `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body auth.RegisterRequest
	if !s.decode(w, r, &body) {
		return
	}
	token, err := s.auth.Register(body.Email, body.Password, body.DisplayName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, http.StatusCreated, tokenResponse{Token: string(token)})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body auth.LoginRequest
	if !s.decode(w, r, &body) {
		return
	}
	if err := auth.ValidateLogin(body); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.auth.Login(body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, http.StatusOK, tokenResponse{Token: string(token)})
}

func (s *Server) listPanels(w http.ResponseWriter, r *http.Request) {
	panels, err := s.panels.ListPanels()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if panels == nil {
		panels = []domain.PanelSummary{}
	}
	s.reply(w, http.StatusOK, panels)
}

func (s *Server) createPanel(w http.ResponseWriter, r *http.Request) {
	var body domain.CreatePanelRequest
	if !s.decode(w, r, &body) {
		return
	}
	id, err := s.panels.CreatePanel(caller(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, http.StatusCreated, createResponse{ID: id})
}

func (s *Server) joinPanel(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.panels.JoinPanel(caller(r), panelID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w, http.StatusOK, ticket)
}

func (s *Server) leavePanel(w http.ResponseWriter, r *http.Request) {
	s.done(w, r, s.panels.LeavePanel(caller(r), panelID(r)))
}

func (s *Server) recordAction(action domain.AuditAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.done(w, r, s.panels.Record(caller(r), panelID(r), action, r.PathValue("participantId")))
	}
}

func (s *Server) kick(w http.ResponseWriter, r *http.Request) {
	s.done(w, r, s.panels.Kick(caller(r), panelID(r), r.PathValue("participantId")))
}

func (s *Server) endPanel(w http.ResponseWriter, r *http.Request) {
	s.done(w, r, s.panels.EndPanel(caller(r), panelID(r)))
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.panels.Audit(panelID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	s.reply(w, http.StatusOK, entries)
}

func caller(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}

func panelID(r *http.Request) domain.PanelID {
	return domain.PanelID(r.PathValue("id"))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		s.reply(w, http.StatusBadRequest, errorResponse{Error: "malformed body"})
		return false
	}
	return true
}

func (s *Server) done(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("Unable to write response", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("Directory request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	s.reply(w, status, errorResponse{Error: message})
}

// StatusOf maps a service error to its HTTP status.
func StatusOf(err error) int {
	var validationErrors validator.ValidationErrors
	switch {
	case stderrors.Is(err, errors.ErrInvalidPayload),
		stderrors.Is(err, errors.ErrInvalidPassword),
		stderrors.Is(err, errors.ErrHostImmutable),
		stderrors.As(err, &validationErrors):
		return http.StatusBadRequest
	case stderrors.Is(err, errors.ErrInvalidCredentials),
		stderrors.Is(err, errors.ErrUnauthenticated):
		return http.StatusUnauthorized
	case stderrors.Is(err, errors.ErrNotPanelHost):
		return http.StatusForbidden
	case stderrors.Is(err, errors.ErrPanelNotFound),
		stderrors.Is(err, errors.ErrUserNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		return http.StatusConflict
	case stderrors.Is(err, errors.ErrPanelEnded):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
