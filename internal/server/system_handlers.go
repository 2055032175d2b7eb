package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ukaya/piyasa/internal/cache"
	"github.com/ukaya/piyasa/internal/config"
	"github.com/ukaya/piyasa/internal/database"
)

// SystemHandlers serves process and host diagnostics.
type SystemHandlers struct {
	log       zerolog.Logger
	cfg       *config.Config
	db        *database.DB
	cache     *cache.Cache
	startedAt time.Time
}

// NewSystemHandlers creates the system diagnostics handlers.
func NewSystemHandlers(log zerolog.Logger, cfg *config.Config, db *database.DB, c *cache.Cache, startedAt time.Time) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handlers", "system").Logger(),
		cfg:       cfg,
		db:        db,
		cache:     c,
		startedAt: startedAt,
	}
}

type systemStatus struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	GoVersion     string  `json:"go_version"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	CacheEntries  int     `json:"cache_entries"`
	Database      string  `json:"database"`
}

// HandleStatus reports process uptime and host resource usage.
// GET /api/system/status
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := systemStatus{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		CacheEntries:  h.cache.Len(),
		Database:      h.db.Name(),
	}

	// Short sample interval so the endpoint stays fast for pollers.
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read CPU usage")
	} else if len(cpuPercent) > 0 {
		status.CPUPercent = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read memory usage")
	} else {
		status.MemPercent = memStat.UsedPercent
	}

	diskStat, err := disk.Usage(h.cfg.DataDir)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read disk usage")
	} else {
		status.DiskPercent = diskStat.UsedPercent
	}

	if err := h.db.Conn().PingContext(r.Context()); err != nil {
		status.Status = "degraded"
	}

	h.writeJSON(w, status)
}

// HandleCacheStats reports the live cache entry count.
// GET /api/system/cache
func (h *SystemHandlers) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]int{"entries": h.cache.Len()})
}

// HandleCachePurge drops expired cache entries immediately.
// POST /api/system/cache/purge
func (h *SystemHandlers) HandleCachePurge(w http.ResponseWriter, r *http.Request) {
	removed := h.cache.Purge()
	h.log.Info().Int("removed", removed).Msg("Cache purged via API")
	h.writeJSON(w, map[string]int{"removed": removed})
}

// HandleCacheSnapshot persists the cache to disk for warm restarts.
// POST /api/system/cache/snapshot
func (h *SystemHandlers) HandleCacheSnapshot(w http.ResponseWriter, r *http.Request) {
	path := h.cfg.CacheSnapshotPath()
	if err := h.cache.Snapshot(path); err != nil {
		h.log.Error().Err(err).Str("path", path).Msg("Cache snapshot failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, map[string]string{"status": "ok", "path": path})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
