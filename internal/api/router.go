// Package api assembles the HTTP router for the AgentDeck control
// plane.
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentdeck/agentdeck/internal/api/handlers"
	"github.com/agentdeck/agentdeck/internal/api/middleware"
	"github.com/agentdeck/agentdeck/internal/auth"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/livesync"
)

// NewRouter creates the HTTP router with all API routes. The auth
// endpoints are open; everything else sits behind the provider chain.
func NewRouter(cfg *config.Config, h *handlers.Handlers, chain *auth.ProviderChain, ws *livesync.WSHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-ID", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	// Account endpoints, reachable without a token
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/signin", h.Signin)
		r.Post("/verify-otp", h.VerifyOTP)
		r.Post("/resend-otp", h.ResendOTP)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
		r.With(middleware.Authenticate(chain)).Post("/signout", h.Signout)
	})

	// Everything below requires an identity
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(chain))

		r.Route("/features", func(r chi.Router) {
			r.Get("/get-user", h.GetUser)
			r.Get("/get-user-teams", h.GetUserTeams)
			r.Get("/get-user-team-by-id/{teamID}", h.GetUserTeamByID)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/new", h.NewTask)
			r.Post("/message", h.SendMessage)
			r.Get("/user/summary", h.TaskSummary)
			r.Route("/scheduled", func(r chi.Router) {
				r.Get("/", h.ListScheduledTasks)
				r.Post("/", h.ScheduleTask)
				r.Route("/{taskID}", func(r chi.Router) {
					r.Get("/", h.GetScheduledTask)
					r.Put("/", h.UpdateScheduledTask)
					r.Delete("/", h.DeleteScheduledTask)
				})
			})
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/teams", func(r chi.Router) {
				r.Post("/", h.CreateTeam)
			})

			r.Route("/agents", func(r chi.Router) {
				r.Get("/", h.ListAgents)
				r.Post("/", h.CreateAgent)
				r.Route("/{agentID}", func(r chi.Router) {
					r.Get("/", h.GetAgent)
					r.Put("/", h.UpdateAgent)
					r.Delete("/", h.DeleteAgent)
				})
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", h.ListConversations)
				r.Get("/{conversationID}", h.GetConversation)
				r.Get("/thread/{threadID}/messages", h.ListMessages)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", h.CreateChatSession)
				r.Delete("/{sessionID}", h.DeleteChatSession)
			})

			r.Route("/credentials", func(r chi.Router) {
				r.Get("/", h.ListCredentials)
				r.Post("/", h.CreateCredential)
				r.Delete("/{credentialID}", h.DeleteCredential)
			})

			r.Get("/tools", h.ListTools)

			r.Route("/wizard", func(r chi.Router) {
				r.Post("/", h.StartWizard)
				r.Route("/{wizardID}", func(r chi.Router) {
					r.Get("/", h.GetWizard)
					r.Post("/tools", h.WizardSelectTools)
					r.Post("/details", h.WizardSetDetails)
					r.Post("/bind", h.WizardBindCredential)
					r.Post("/traits", h.WizardSetTrait)
					r.Post("/skip-traits", h.WizardSkipTraits)
					r.Post("/next", h.WizardNext)
					r.Post("/back", h.WizardBack)
					r.Get("/preview", h.WizardPreview)
					r.Post("/submit", h.WizardSubmit)
				})
			})
		})
	})

	// Live sync websocket; the token rides the query string and the
	// handler validates it itself.
	r.Get("/ws", ws.ServeHTTP)

	return r
}

func corsOrigins(cfg *config.Config) []string {
	if cfg.CORSOrigins == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(cfg.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
