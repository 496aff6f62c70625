package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mizanhq/mizan/internal/database"
	"github.com/mizanhq/mizan/internal/reliability"
	"github.com/mizanhq/mizan/internal/version"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log           zerolog.Logger
	startupTime   time.Time
	databases     []*database.DB
	backupService *reliability.BackupService // nil when backups are disabled
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, databases []*database.DB, backupService *reliability.BackupService) *SystemHandlers {
	return &SystemHandlers{
		log:           log.With().Str("component", "system_handlers").Logger(),
		startupTime:   time.Now(),
		databases:     databases,
		backupService: backupService,
	}
}

// HandleHealth handles GET /api/system/health
// Pings every database and reports system load.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	dbs := make(map[string]string, len(h.databases))
	for _, db := range h.databases {
		if err := db.QuickCheck(ctx); err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			dbs[db.Name()] = "unreachable"
			status = "degraded"
		} else {
			dbs[db.Name()] = "ok"
		}
	}

	cpuPercent, ramPercent := h.getSystemStats()

	httpStatus := http.StatusOK
	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	h.writeJSON(w, httpStatus, map[string]interface{}{
		"status":         status,
		"databases":      dbs,
		"cpu_percent":    cpuPercent,
		"ram_percent":    ramPercent,
		"uptime_seconds": int64(time.Since(h.startupTime).Seconds()),
	})
}

// HandleInfo handles GET /api/system/info
func (h *SystemHandlers) HandleInfo(w http.ResponseWriter, r *http.Request) {
	dbs := make([]map[string]interface{}, 0, len(h.databases))
	for _, db := range h.databases {
		entry := map[string]interface{}{
			"name": db.Name(),
			"path": db.Path(),
		}
		if info, err := os.Stat(db.Path()); err == nil {
			entry["size_bytes"] = info.Size()
		}
		dbs = append(dbs, entry)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":         version.Version,
		"go_version":      runtime.Version(),
		"goroutines":      runtime.NumGoroutine(),
		"started_at":      h.startupTime.UTC().Format(time.RFC3339),
		"backups_enabled": h.backupService != nil,
		"databases":       dbs,
	})
}

// HandleTriggerBackup handles POST /api/system/backup
// Runs the backup in the background; the upload can take minutes.
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		http.Error(w, "backups are not configured", http.StatusServiceUnavailable)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()

		if err := h.backupService.CreateAndUploadBackup(ctx); err != nil {
			h.log.Error().Err(err).Msg("Manual backup failed")
			return
		}
		if err := h.backupService.RotateOldBackups(ctx); err != nil {
			h.log.Error().Err(err).Msg("Backup rotation failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "backup started"})
}

// HandleListBackups handles GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		http.Error(w, "backups are not configured", http.StatusServiceUnavailable)
		return
	}

	backups, err := h.backupService.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, "failed to list backups", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
