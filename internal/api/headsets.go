package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/handsfree-core/internal/headset"
)

// headsetResponse is the full view of one headset.
type headsetResponse struct {
	Address          headset.DeviceID `json:"address"`
	Tracked          bool             `json:"tracked"`
	ConnectionState  string           `json:"connection_state"`
	AudioState       string           `json:"audio_state"`
	AudioConnected   bool             `json:"audio_connected"`
	VoiceRecognition bool             `json:"voice_recognition"`
	VirtualCall      bool             `json:"virtual_call"`
	Priority         string           `json:"priority"`
	BatteryUsageHint int              `json:"battery_usage_hint"`
	UpdatedAt        string           `json:"updated_at,omitempty"`
}

// priorityResponse reports a stored priority by name and raw value.
type priorityResponse struct {
	Address  headset.DeviceID `json:"address"`
	Priority string           `json:"priority"`
	Value    int              `json:"value"`
}

// setPriorityRequest accepts either a priority name or a raw value.
type setPriorityRequest struct {
	Priority string `json:"priority,omitempty"`
	Value    *int   `json:"value,omitempty"`
}

// addressParam parses the {address} URL parameter, writing a 400 on failure.
func addressParam(w http.ResponseWriter, r *http.Request) (headset.DeviceID, bool) {
	id, err := headset.ParseDeviceID(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, "invalid headset address")
		return "", false
	}
	return id, true
}

// handleListHeadsets returns connected headsets, or the headsets in the
// states named by repeated or comma-separated ?state= parameters.
func (s *Server) handleListHeadsets(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query()["state"]
	if len(raw) == 0 {
		ids := s.headsets.ConnectedDevices()
		writeJSON(w, http.StatusOK, map[string]any{"headsets": ids, "count": len(ids)})
		return
	}

	var states []headset.ConnectionState
	for _, param := range raw {
		for _, name := range strings.Split(param, ",") {
			st, err := headset.ParseConnectionState(strings.TrimSpace(name))
			if err != nil {
				writeBadRequest(w, err.Error())
				return
			}
			states = append(states, st)
		}
	}

	ids := s.headsets.DevicesMatchingStates(states...)
	writeJSON(w, http.StatusOK, map[string]any{"headsets": ids, "count": len(ids)})
}

// handleGetHeadset returns one headset's state and priority. Untracked
// headsets report the disconnected defaults.
func (s *Server) handleGetHeadset(w http.ResponseWriter, r *http.Request) {
	id, ok := addressParam(w, r)
	if !ok {
		return
	}

	resp := headsetResponse{
		Address:          id,
		ConnectionState:  headset.StateDisconnected.String(),
		AudioState:       headset.AudioDisconnected.String(),
		Priority:         s.headsets.Priority(r.Context(), id).String(),
		BatteryUsageHint: s.headsets.BatteryUsageHint(id),
	}
	if rec, found := s.headsets.Device(id); found {
		resp.Tracked = true
		resp.ConnectionState = rec.Connection.String()
		resp.AudioState = rec.Audio.String()
		resp.AudioConnected = rec.Audio == headset.AudioConnected
		resp.VoiceRecognition = rec.VoiceRecognition
		resp.VirtualCall = rec.VirtualCall
		if !rec.UpdatedAt.IsZero() {
			resp.UpdatedAt = rec.UpdatedAt.UTC().Format(timeFormat)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvictHeadset forgets a fully disconnected headset. A headset that
// still has a link or audio is refused with {"ok": false}.
func (s *Server) handleEvictHeadset(w http.ResponseWriter, r *http.Request) {
	id, ok := addressParam(w, r)
	if !ok {
		return
	}

	err := s.headsets.Evict(id)
	switch {
	case err == nil:
		writeDecision(w, r, true)
	case errors.Is(err, headset.ErrInvalidTransition):
		writeDecision(w, r, false)
	default:
		s.logger.Warn("evicting headset failed", "address", id, "error", err)
		writeUnavailable(w, "headset service unavailable")
	}
}

// handleGetPriority returns the stored connection priority.
func (s *Server) handleGetPriority(w http.ResponseWriter, r *http.Request) {
	id, ok := addressParam(w, r)
	if !ok {
		return
	}
	p := s.headsets.Priority(r.Context(), id)
	writeJSON(w, http.StatusOK, priorityResponse{Address: id, Priority: p.String(), Value: int(p)})
}

// handleSetPriority stores a connection priority. Unknown raw values are
// passed through so the service reports them as {"ok": false}.
func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	id, ok := addressParam(w, r)
	if !ok {
		return
	}

	var req setPriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var p headset.Priority
	switch {
	case req.Value != nil:
		p = headset.Priority(*req.Value)
	case req.Priority != "":
		parsed, err := headset.ParsePriority(req.Priority)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		p = parsed
	default:
		writeBadRequest(w, "priority or value is required")
		return
	}

	writeDecision(w, r, s.headsets.SetPriority(r.Context(), id, p))
}

// deviceCommand adapts a per-headset boolean call to a handler.
func (s *Server) deviceCommand(call func(Headsets, context.Context, headset.DeviceID) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := addressParam(w, r)
		if !ok {
			return
		}
		writeDecision(w, r, call(s.headsets, r.Context(), id))
	}
}

// sessionCommand adapts a device-less boolean call to a handler.
func (s *Server) sessionCommand(call func(Headsets, context.Context) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeDecision(w, r, call(s.headsets, r.Context()))
	}
}

func acceptIncoming(h Headsets, _ context.Context, id headset.DeviceID) bool {
	return h.AcceptIncomingConnect(id)
}

func rejectIncoming(h Headsets, _ context.Context, id headset.DeviceID) bool {
	return h.RejectIncomingConnect(id)
}

// audioDevice is one headset with audio not disconnected.
type audioDevice struct {
	Address    headset.DeviceID `json:"address"`
	AudioState string           `json:"audio_state"`
}

// handleGetAudio reports whether audio is on and which headsets carry it.
func (s *Server) handleGetAudio(w http.ResponseWriter, _ *http.Request) {
	devices := []audioDevice{}
	for _, rec := range s.headsets.Devices() {
		if rec.Audio != headset.AudioDisconnected || rec.VirtualCall {
			devices = append(devices, audioDevice{Address: rec.ID, AudioState: rec.Audio.String()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"audio_on": s.headsets.IsAudioOn(),
		"devices":  devices,
	})
}
