package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/handsfree-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket authenticates with a ticket, validated in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermHeadsetRead))

				r.Post("/auth/ws-ticket", s.handleWSTicket)

				r.Get("/headsets", s.handleListHeadsets)
				r.Get("/headsets/{address}", s.handleGetHeadset)
				r.Get("/headsets/{address}/priority", s.handleGetPriority)
				r.Get("/headsets/{address}/history", s.handleGetHistory)
				r.Get("/audio", s.handleGetAudio)
				r.Get("/session", s.handleGetSession)
			})

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermHeadsetAdmin))
				r.Use(s.auditMiddleware)

				r.Get("/audit", s.handleListAudit)

				r.Delete("/headsets/{address}", s.handleEvictHeadset)
				r.Post("/headsets/{address}/connect", s.deviceCommand(Headsets.Connect))
				r.Post("/headsets/{address}/disconnect", s.deviceCommand(Headsets.Disconnect))
				r.Post("/headsets/{address}/accept", s.deviceCommand(acceptIncoming))
				r.Post("/headsets/{address}/reject", s.deviceCommand(rejectIncoming))
				r.Put("/headsets/{address}/priority", s.handleSetPriority)
				r.Post("/headsets/{address}/voice-recognition/start", s.deviceCommand(Headsets.StartVoiceRecognition))
				r.Post("/headsets/{address}/voice-recognition/stop", s.deviceCommand(Headsets.StopVoiceRecognition))
				r.Post("/headsets/{address}/virtual-call/start", s.deviceCommand(Headsets.StartVirtualVoiceCall))
				r.Post("/headsets/{address}/virtual-call/stop", s.deviceCommand(Headsets.StopVirtualVoiceCall))

				r.Post("/audio/connect", s.sessionCommand(Headsets.ConnectAudio))
				r.Post("/audio/disconnect", s.sessionCommand(Headsets.DisconnectAudio))

				r.Post("/session/call-state", s.handleCallState)
				r.Post("/session/roam", s.handleRoam)
				r.Post("/session/clcc", s.handleClcc)
				r.Post("/session/battery", s.handleBattery)
				r.Post("/session/volume", s.handleVolume)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !s.headsets.Running() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
	})
}
