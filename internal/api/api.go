// Package api is the HTTP control surface of the bot.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/bot"
)

// Controller starts and stops the control loop.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// StatusSource returns the last published status.
type StatusSource interface {
	Status() bot.BotStatus
}

// Options are the collaborators of a Server.
type Options struct {
	// Context bounds loops started through the API. Request contexts end
	// with the request and cannot be used for that.
	Context    context.Context
	Controller Controller
	Settings   *bot.SettingsStore
	Status     StatusSource
	Socket     http.Handler // status websocket, optional
}

// Server serves /api/bot/* and /api/ws/bot-status.
type Server struct {
	opts Options
	mux  *http.ServeMux
}

type response struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message,omitempty"`
	Settings *bot.BotSettings `json:"settings,omitempty"`
}

// NewServer wires the routes.
func NewServer(opts Options) *Server {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	s := &Server{opts: opts, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /api/bot/start", s.handleStart)
	s.mux.HandleFunc("POST /api/bot/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/bot/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/bot/settings", s.handleGetSettings)
	s.mux.HandleFunc("POST /api/bot/settings", s.handleUpdateSettings)
	if opts.Socket != nil {
		s.mux.Handle("GET /api/ws/bot-status", opts.Socket)
	}
	return s
}

// ServeHTTP implements http.Handler with permissive CORS for the dashboard.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	err := s.opts.Controller.Start(s.opts.Context)
	switch {
	case errors.Is(err, bot.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, response{Message: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, response{Message: err.Error()})
	default:
		log.Info().Str("remote", r.RemoteAddr).Msg("Bot started via API")
		writeJSON(w, http.StatusOK, response{Success: true, Message: "Bot started"})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	err := s.opts.Controller.Stop()
	switch {
	case errors.Is(err, bot.ErrNotRunning):
		writeJSON(w, http.StatusConflict, response{Message: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, response{Message: err.Error()})
	default:
		log.Info().Str("remote", r.RemoteAddr).Msg("Bot stopped via API")
		writeJSON(w, http.StatusOK, response{Success: true, Message: "Bot stopped"})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.opts.Status.Status()
	status.Running = s.opts.Controller.Running()
	status.Settings = s.opts.Settings.Get()
	if status.Status == "" {
		status.Status = bot.StateIdle.String()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Settings.Get())
}

// handleUpdateSettings applies the posted fields on top of the current
// settings. Invalid combinations answer 422 and change nothing.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	next := s.opts.Settings.Get()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&next); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "malformed settings: " + err.Error()})
		return
	}

	res := s.opts.Settings.Update(next)
	if !res.OK() {
		code := http.StatusInternalServerError
		if bot.IsInvalidSettings(res.Err) {
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, response{Message: res.Err.Error(), Settings: &res.Settings})
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Settings: &res.Settings})
}
