package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/skourlis/allocator/internal/backup"
	"github.com/skourlis/allocator/internal/database"
	"github.com/skourlis/allocator/internal/modules/prices"
	"github.com/skourlis/allocator/internal/queue"
)

// SystemStatusResponse is the system-wide health and resource snapshot.
type SystemStatusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	QueueDepth    int               `json:"queue_depth"`
	Databases     map[string]string `json:"databases"`
}

// DBStatsInfo describes one database's on-disk footprint.
type DBStatsInfo struct {
	Name      string  `json:"name"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
	FreePages int64   `json:"free_pages"`
}

// DatabaseStatsResponse aggregates per-database statistics.
type DatabaseStatsResponse struct {
	Databases   []DBStatsInfo `json:"databases"`
	TotalSizeMB float64       `json:"total_size_mb"`
	LastChecked string        `json:"last_checked"`
}

// DiskUsageResponse reports the data directory footprint.
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	TotalMB   float64 `json:"total_mb"`
}

// SystemHandlers handles system-wide monitoring and maintenance endpoints.
type SystemHandlers struct {
	log           zerolog.Logger
	dataDir       string
	startupTime   time.Time
	configDB      *database.DB
	resultsDB     *database.DB
	historyDB     *prices.HistoryDB
	queueManager  *queue.Manager
	backupService *backup.Service // nil when backups are not configured
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	configDB, resultsDB *database.DB,
	historyDB *prices.HistoryDB,
	queueManager *queue.Manager,
	backupService *backup.Service,
) *SystemHandlers {
	return &SystemHandlers{
		log:           log.With().Str("component", "system_handlers").Logger(),
		dataDir:       dataDir,
		startupTime:   time.Now(),
		configDB:      configDB,
		resultsDB:     resultsDB,
		historyDB:     historyDB,
		queueManager:  queueManager,
		backupService: backupService,
	}
}

// RegisterRoutes registers the system routes.
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/health", h.HandleSystemHealth)
		r.Get("/jobs", h.HandleJobsStatus)
		r.Get("/database/stats", h.HandleDatabaseStats)
		r.Get("/disk", h.HandleDiskUsage)

		r.Get("/backups", h.HandleListBackups)
		r.Post("/jobs/backup", h.HandleTriggerBackup)
		r.Post("/jobs/wal-checkpoint", h.HandleTriggerWALCheckpoint)
		r.Post("/jobs/price-refresh", h.HandleTriggerPriceRefresh)
	})
}

// GetSystemStatusSnapshot collects health and resource usage for the status
// endpoint and the status monitor.
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) SystemStatusResponse {
	databases := make(map[string]string)
	status := "healthy"

	check := func(name string, err error) {
		if err != nil {
			h.log.Error().Err(err).Str("database", name).Msg("Database health check failed")
			databases[name] = "unhealthy"
			status = "degraded"
			return
		}
		databases[name] = "healthy"
	}
	check("config", h.configDB.QuickCheck(ctx))
	check("results", h.resultsDB.QuickCheck(ctx))
	check("history", h.historyDB.Conn().PingContext(ctx))

	cpuPercent, memPercent := h.getSystemStats()

	return SystemStatusResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		QueueDepth:    h.queueManager.Depth(),
		Databases:     databases,
	}
}

// HandleSystemStatus returns the system status snapshot
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")
	h.writeJSON(w, h.GetSystemStatusSnapshot(r.Context()))
}

// HandleSystemHealth runs database integrity checks. Returns 503 when any
// database fails its check so load balancers can act on it.
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	databases := make(map[string]string)
	healthy := true

	check := func(name string, err error) {
		if err != nil {
			h.log.Error().Err(err).Str("database", name).Msg("Integrity check failed")
			databases[name] = "unhealthy"
			healthy = false
			return
		}
		databases[name] = "healthy"
	}
	check("config", h.configDB.QuickCheck(r.Context()))
	check("results", h.resultsDB.QuickCheck(r.Context()))
	check("history", h.historyDB.Conn().PingContext(r.Context()))

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"databases": databases,
	}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// HandleJobsStatus returns recent queue jobs, newest first
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting jobs status")

	jobs := h.queueManager.List()
	h.writeJSON(w, map[string]interface{}{
		"total_jobs":  len(jobs),
		"queue_depth": h.queueManager.Depth(),
		"jobs":        jobs,
	})
}

// HandleDatabaseStats returns per-database file statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   []DBStatsInfo{},
		LastChecked: time.Now().Format(time.RFC3339),
	}

	for _, db := range []*database.DB{h.configDB, h.resultsDB} {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}
		info := DBStatsInfo{
			Name:      db.Name(),
			SizeMB:    float64(stats.SizeBytes) / 1024 / 1024,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount: stats.PageCount,
			FreePages: stats.FreelistCount,
		}
		response.Databases = append(response.Databases, info)
		response.TotalSizeMB += info.SizeMB + info.WALSizeMB
	}

	// The history database sits outside the core database layer; report its
	// file size directly.
	historyPath := filepath.Join(h.dataDir, "history", "history.db")
	if info, err := os.Stat(historyPath); err == nil {
		sizeMB := float64(info.Size()) / 1024 / 1024
		response.Databases = append(response.Databases, DBStatsInfo{
			Name:   "history",
			SizeMB: sizeMB,
		})
		response.TotalSizeMB += sizeMB
	}

	h.writeJSON(w, response)
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	dataDirSize := h.getDirSize(h.dataDir)
	h.writeJSON(w, DiskUsageResponse{
		DataDirMB: dataDirSize,
		TotalMB:   dataDirSize,
	})
}

// HandleListBackups returns the archives stored in the backup bucket
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		h.writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}

	backups, err := h.backupService.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		h.writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	h.writeJSON(w, map[string]interface{}{
		"total":   len(backups),
		"backups": backups,
	})
}

// HandleTriggerBackup enqueues a backup job
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		h.writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	h.enqueueJob(w, queue.JobTypeBackup, queue.PriorityHigh)
}

// HandleTriggerWALCheckpoint enqueues a WAL checkpoint job
func (h *SystemHandlers) HandleTriggerWALCheckpoint(w http.ResponseWriter, r *http.Request) {
	h.enqueueJob(w, queue.JobTypeWALCheckpoint, queue.PriorityHigh)
}

// HandleTriggerPriceRefresh enqueues a refresh of every tracked symbol
func (h *SystemHandlers) HandleTriggerPriceRefresh(w http.ResponseWriter, r *http.Request) {
	h.enqueueJob(w, queue.JobTypePriceRefresh, queue.PriorityHigh)
}

// enqueueJob submits a job and reports the accepted status.
func (h *SystemHandlers) enqueueJob(w http.ResponseWriter, jobType queue.JobType, priority queue.Priority) {
	status, err := h.queueManager.Submit(jobType, priority, nil)
	if err != nil {
		h.log.Error().Err(err).Str("job_type", string(jobType)).Msg("Failed to enqueue job")
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short 100ms sampling interval to keep the status endpoint fast.
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

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (h *SystemHandlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
