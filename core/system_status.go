package core

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

// SystemStatus は管理者向けの集約ステータス。
type SystemStatus struct {
	Database string      `json:"database"`
	Redis    string      `json:"redis"`
	Logins   LoginCounts `json:"logins_today"`
	Memory   struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
	} `json:"memory"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// Healthy reports whether every dependency answered.
func (s SystemStatus) Healthy() bool {
	return s.Database == "ok" && s.Redis == "ok"
}

// StatusService checks the process dependencies.
type StatusService struct {
	store     UserStore
	redis     RedisClientRaw
	metrics   *MetricsService
	startedAt time.Time
}

func NewStatusService(store UserStore, redis RedisClientRaw, metrics *MetricsService, startedAt time.Time) *StatusService {
	return &StatusService{store: store, redis: redis, metrics: metrics, startedAt: startedAt}
}

// Collect で現在のステータスを集約する。個々の失敗はフィールドに反映し、エラーにはしない。
func (s *StatusService) Collect(ctx context.Context) SystemStatus {
	var st SystemStatus

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st.Database = "ok"
	if err := s.store.Ping(ctx); err != nil {
		st.Database = "error: " + err.Error()
	}
	st.Redis = "ok"
	if s.redis == nil {
		st.Redis = "not configured"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		st.Redis = "error: " + err.Error()
	}

	if counts, err := s.metrics.LoginsToday(ctx); err == nil {
		st.Logins = counts
	}

	// Memory (best-effort from /proc/meminfo)
	used, total := readMemInfo()
	st.Memory.UsedBytes = used
	st.Memory.TotalBytes = total

	if !s.startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}

	return st
}

// readMemInfo returns used and total bytes using /proc/meminfo.
// If unavailable, returns zeros.
func readMemInfo() (used, total uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			memTotal = parseKiBLine(line)
		} else if strings.HasPrefix(line, "MemAvailable:") {
			memAvailable = parseKiBLine(line)
		}
	}
	if memTotal > 0 {
		total = memTotal
		if memAvailable <= memTotal {
			used = memTotal - memAvailable
		}
		// convert KiB -> bytes
		used *= 1024
		total *= 1024
	}
	return used, total
}

func parseKiBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
