package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/handsfree-core/internal/audit"
	"github.com/nerrad567/handsfree-core/internal/headset"
)

const auditWriteTimeout = 5 * time.Second

// ctxKeyAuditNote carries the *auditNote a handler may annotate.
const ctxKeyAuditNote contextKey = "audit_note"

// auditNote collects details a handler wants recorded with its request.
type auditNote struct {
	details map[string]any
}

func (n *auditNote) set(key string, value any) {
	if n.details == nil {
		n.details = make(map[string]any)
	}
	n.details[key] = value
}

// writeDecision answers a gatekeeper command and records whether it was
// accepted.
func writeDecision(w http.ResponseWriter, r *http.Request, ok bool) {
	if note, found := r.Context().Value(ctxKeyAuditNote).(*auditNote); found {
		note.set("accepted", ok)
	}
	writeOK(w, ok)
}

// auditMiddleware records every state-changing request made by an
// authenticated operator. Reads are not recorded.
func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.audit == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		note := &auditNote{}
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), ctxKeyAuditNote, note)))

		entry := &audit.Entry{
			Action:  r.Method + " " + strings.TrimPrefix(routePattern(r), "/api/v1"),
			Address: auditAddress(chi.URLParam(r, "address")),
			Status:  wrapped.status,
			Details: note.details,
		}
		if claims := claimsFromContext(r.Context()); claims != nil {
			entry.Operator = claims.Subject
			entry.Role = string(claims.Role)
		}
		if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
			entry.RequestID = id
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditWriteTimeout)
		defer cancel()
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("recording audit entry failed",
				"action", entry.Action,
				"operator", entry.Operator,
				"error", err,
			)
		}
	})
}

// auditAddress normalises raw the way the headset routes do, keeping it
// verbatim when it does not parse.
func auditAddress(raw string) string {
	if raw == "" {
		return ""
	}
	if id, err := headset.ParseDeviceID(raw); err == nil {
		return string(id)
	}
	return raw
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// handleListAudit returns recorded operator actions, newest first.
// Query: operator, address, action, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "audit log is not enabled")
		return
	}

	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
	}

	res, err := s.audit.List(r.Context(), audit.Filter{
		Operator: q.Get("operator"),
		Address:  auditAddress(q.Get("address")),
		Action:   q.Get("action"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to read audit log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
