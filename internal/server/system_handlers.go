package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/pocketfolio/pocketfolio/internal/database"
	"github.com/pocketfolio/pocketfolio/internal/marketclock"
	"github.com/pocketfolio/pocketfolio/internal/refresh"
)

// SystemHandlers serves process and database health endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	db          *database.DB
	coordinator *refresh.Coordinator
	clock       *marketclock.Clock
	startupTime time.Time
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(log zerolog.Logger, db *database.DB, coordinator *refresh.Coordinator, clock *marketclock.Clock) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handlers", "system").Logger(),
		db:          db,
		coordinator: coordinator,
		clock:       clock,
		startupTime: time.Now(),
	}
}

// SystemStatusResponse reports process health and coordinator state
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeHours   float64 `json:"uptime_hours"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	MarketOpen    bool    `json:"market_open"`
	RefreshPaused bool    `json:"refresh_paused"`
	Streams       int     `json:"streams"`
	DatabaseOK    bool    `json:"database_ok"`
}

// HandleSystemStatus returns process health plus coordinator state
// GET /api/v1/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	dbOK := false
	if h.db != nil {
		dbOK = h.db.QuickCheck(r.Context()) == nil
	}

	status := "ok"
	if !dbOK {
		status = "degraded"
	}

	writeJSON(w, h.log, http.StatusOK, SystemStatusResponse{
		Status:        status,
		UptimeHours:   time.Since(h.startupTime).Hours(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		MarketOpen:    h.clock.Open(),
		RefreshPaused: h.coordinator.Paused(),
		Streams:       len(h.coordinator.Status()),
		DatabaseOK:    dbOK,
	})
}

// DatabaseStatsResponse reports snapshot database size and page stats
type DatabaseStatsResponse struct {
	Name          string `json:"name"`
	SizeBytes     int64  `json:"size_bytes"`
	WALSizeBytes  int64  `json:"wal_size_bytes"`
	PageCount     int64  `json:"page_count"`
	PageSize      int64  `json:"page_size"`
	FreelistCount int64  `json:"freelist_count"`
}

// HandleDatabaseStats returns snapshot database statistics
// GET /api/v1/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, h.log, http.StatusServiceUnavailable, "database not configured")
		return
	}

	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get database stats")
		writeError(w, h.log, http.StatusInternalServerError, "failed to get database stats")
		return
	}

	writeJSON(w, h.log, http.StatusOK, DatabaseStatsResponse{
		Name:          h.db.Name(),
		SizeBytes:     stats.SizeBytes,
		WALSizeBytes:  stats.WALSizeBytes,
		PageCount:     stats.PageCount,
		PageSize:      stats.PageSize,
		FreelistCount: stats.FreelistCount,
	})
}

// getSystemStats calculates CPU and RAM usage percentages. A short
// 100ms sample keeps the endpoint responsive for frequent pollers.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
