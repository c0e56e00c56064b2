package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/handsfree-core/internal/headset"
)

// timeFormat is used for every timestamp in responses.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// handleGetSession returns the last session-global state sent to the link.
func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.headsets.Session())
}

// decodeBody decodes the request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// Session updates are forwarded without a result; they answer 204.

func (s *Server) handleCallState(w http.ResponseWriter, r *http.Request) {
	var cs headset.CallState
	if !decodeBody(w, r, &cs) {
		return
	}
	s.headsets.PhoneStateChanged(r.Context(), cs)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Roaming *bool `json:"roaming"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Roaming == nil {
		writeBadRequest(w, "roaming is required")
		return
	}
	s.headsets.RoamChanged(r.Context(), *req.Roaming)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClcc(w http.ResponseWriter, r *http.Request) {
	var entry headset.ClccEntry
	if !decodeBody(w, r, &entry) {
		return
	}
	s.headsets.ClccResponse(r.Context(), entry)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	var level headset.BatteryLevel
	if !decodeBody(w, r, &level) {
		return
	}
	if level.Scale <= 0 || level.Level < 0 || level.Level > level.Scale {
		writeBadRequest(w, "level must be within 0..scale")
		return
	}
	s.headsets.BatteryChanged(r.Context(), level)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *int `json:"volume"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Volume == nil {
		writeBadRequest(w, "volume is required")
		return
	}
	s.headsets.ScoVolumeChanged(r.Context(), *req.Volume)
	w.WriteHeader(http.StatusNoContent)
}
