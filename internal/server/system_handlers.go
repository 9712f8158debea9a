package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleSystemHealth reports process and database health.
// GET /api/system/health
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	dbStatus := "ok"
	if err := s.db.QuickCheck(r.Context()); err != nil {
		dbStatus = err.Error()
		status = "degraded"
	}

	response := map[string]interface{}{
		"status":         status,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"database": map[string]interface{}{
			"name":   s.db.Name(),
			"status": dbStatus,
		},
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		response["cpu_percent"] = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		response["memory"] = map[string]interface{}{
			"total_mb":     memStat.Total / 1024 / 1024,
			"used_mb":      memStat.Used / 1024 / 1024,
			"used_percent": memStat.UsedPercent,
		}
	}
	if dbStats, err := s.db.GetStats(); err == nil {
		response["database_stats"] = dbStats
	}

	s.writeJSON(w, http.StatusOK, response)
}
