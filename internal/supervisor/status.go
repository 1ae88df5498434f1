// internal/supervisor/status.go
package supervisor

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sua-org/safetynet/internal/core"
)

// Status é o heartbeat do processo, publicado periodicamente.
type Status struct {
	Collector      string                       `json:"collector"`
	Status         string                       `json:"status"`
	Timestamp      string                       `json:"timestamp"`
	Hostname       string                       `json:"hostname"`
	Cameras        int                          `json:"cameras"`
	Sessions       map[core.ConnectionState]int `json:"sessions"`
	StoredLogs     int                          `json:"stored_logs"`
	PendingMerges  int                          `json:"pending_merges"`
	CPUPercent     float64                      `json:"cpu_percent"`
	MemoryPercent  float64                      `json:"memory_percent"`
	MemoryRSSBytes uint64                       `json:"memory_rss_bytes"`
}

func newProcessHandle() *process.Process {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger().Warn().Err(err).Msg("sem métricas de processo")
		return nil
	}
	return p
}

// Status junta o estado do núcleo (via loop) com CPU/memória do processo.
func (s *Supervisor) Status(ctx context.Context) (Status, error) {
	hostname, _ := os.Hostname()
	st := Status{
		Collector: "safetynet",
		Status:    "online",
		Hostname:  hostname,
		Sessions:  make(map[core.ConnectionState]int),
	}

	err := s.loop.Do(ctx, func() {
		st.Timestamp = s.now().UTC().Format(time.RFC3339)
		st.Cameras = s.reg.Len()
		for _, snap := range s.sessions.Snapshot() {
			st.Sessions[snap.State]++
		}
		st.StoredLogs = s.store.Len()
		st.PendingMerges = len(s.batches)
	})
	if err != nil {
		return st, err
	}

	if s.proc != nil {
		if cpu, err := s.proc.CPUPercent(); err == nil {
			st.CPUPercent = cpu
		}
		if memInfo, err := s.proc.MemoryInfo(); err == nil {
			st.MemoryRSSBytes = memInfo.RSS
		}
		if memP, err := s.proc.MemoryPercent(); err == nil {
			st.MemoryPercent = float64(memP)
		}
	}
	return st, nil
}
