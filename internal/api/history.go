package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/nerrad567/handsfree-core/internal/headset"
)

// historyResponse wraps history entries for one headset.
type historyResponse struct {
	Address headset.DeviceID       `json:"address"`
	Entries []headset.HistoryEntry `json:"entries"`
	Count   int                    `json:"count"`
}

// handleGetHistory returns a headset's transitions, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := addressParam(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeUnavailable(w, "transition history is not enabled")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("reading transition history", "device", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	if entries == nil {
		entries = []headset.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Address: id, Entries: entries, Count: len(entries)})
}

// parseLimit parses ?limit=. Zero means the repository default; the
// repository also clamps the maximum.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return n, nil
}
