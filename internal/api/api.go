// Package api exposes the HTTP surface: account and session management,
// character creation, the dialogue endpoints, and the websocket turn stream.
//
// Handlers stay thin; they bind JSON, call a collaborator, and translate its
// errors onto the HTTP taxonomy in errors.go. All domain decisions live in
// the internal packages behind them.
package api

import (
	"log/slog"

	"github.com/talkscene/talkscene/internal/auth"
	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/dialogue"
	"github.com/talkscene/talkscene/internal/observe"
	"github.com/talkscene/talkscene/internal/payment"
	"github.com/talkscene/talkscene/internal/usage"
	"github.com/talkscene/talkscene/internal/user"
	"github.com/talkscene/talkscene/pkg/provider/stt"
	"github.com/talkscene/talkscene/pkg/provider/tts"
)

// Deps bundles the collaborators behind the HTTP surface. Auth, Users,
// Ledger, Characters, Orchestrator, and Tutor are required; the rest may be
// nil, disabling their endpoints with a uniform error.
type Deps struct {
	Auth     *auth.Service
	Google   *auth.Google
	Users    user.Store
	Ledger   *usage.Ledger
	Payments *payment.Service

	Characters character.Store
	Creator    *character.Creator

	Orchestrator *dialogue.Orchestrator
	Tutor        *dialogue.Tutor
	TTS          tts.Provider
	STT          stt.Provider

	Metrics *observe.Metrics
	Log     *slog.Logger

	// AllowedOrigins configures CORS. Empty disables cross-origin access.
	AllowedOrigins []string
}

// Server is the HTTP layer over the application services.
type Server struct {
	deps Deps
	log  *slog.Logger
}

// New creates a Server. Call [Server.Routes] for the ready-to-serve handler.
func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{deps: deps, log: log}
}
