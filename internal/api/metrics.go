package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/handsfree-core/internal/headset"
	"github.com/nerrad567/handsfree-core/internal/process"
)

// AgentReporter exposes the supervised link agent. *process.Supervisor
// implements it.
type AgentReporter interface {
	Stats() process.Stats
}

// SystemMetrics is the /metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Backends      BackendMetrics   `json:"backends"`
	Headsets      HeadsetMetrics   `json:"headsets"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
	Agent         *process.Stats   `json:"agent,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// BackendMetrics reports optional backend connectivity. Nil means the
// backend is not configured.
type BackendMetrics struct {
	MQTT     *bool `json:"mqtt,omitempty"`
	InfluxDB *bool `json:"influxdb,omitempty"`
}

// HeadsetMetrics summarises the device registry.
type HeadsetMetrics struct {
	Running      bool           `json:"running"`
	Tracked      int            `json:"tracked"`
	ByConnection map[string]int `json:"by_connection"`
	ByAudio      map[string]int `json:"by_audio"`
	AudioOn      bool           `json:"audio_on"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, backend and registry statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Backends: BackendMetrics{
			MQTT:     connected(s.mqtt),
			InfluxDB: connected(s.influx),
		},
		Headsets: headsetMetrics(s.headsets),
	}

	if s.db != nil {
		st := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}

	if s.agent != nil {
		st := s.agent.Stats()
		metrics.Agent = &st
	}

	writeJSON(w, http.StatusOK, metrics)
}

func connected(r ConnectionReporter) *bool {
	if r == nil {
		return nil
	}
	c := r.IsConnected()
	return &c
}

func headsetMetrics(h Headsets) HeadsetMetrics {
	records := h.Devices()
	m := HeadsetMetrics{
		Running:      h.Running(),
		Tracked:      len(records),
		ByConnection: make(map[string]int),
		ByAudio:      make(map[string]int),
		AudioOn:      h.IsAudioOn(),
	}
	for _, rec := range records {
		m.ByConnection[rec.Connection.String()]++
		m.ByAudio[rec.Audio.String()]++
	}
	return m
}

var _ Headsets = (*headset.Service)(nil)
