package process

import (
	"fmt"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Stats is a resource usage sample of the live bridge process.
type Stats struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats samples the live run. CPU and thread counts are best effort and
// left zero when the platform refuses them.
func (s *Supervisor) Stats() (Stats, error) {
	h, ok := s.Current()
	if !ok {
		return Stats{}, ErrNotStarted
	}
	p, err := gopsproc.NewProcess(int32(h.PID))
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create process handle: %w", err)
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	st := Stats{
		PID:       p.Pid,
		MemoryRSS: mem.RSS,
		MemoryMB:  float64(mem.RSS) / 1024 / 1024,
	}
	if cpu, err := p.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	if n, err := p.NumThreads(); err == nil {
		st.NumThreads = n
	}
	if ms, err := p.CreateTime(); err == nil && ms > 0 {
		st.CreatedAt = time.UnixMilli(ms)
	}
	return st, nil
}
