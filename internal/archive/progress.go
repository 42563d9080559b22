package archive

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	jww "github.com/spf13/jwalterweatherman"
)

// ProgressFunc receives periodic updates during a long run: records
// indexed so far, total lines consumed so far (including dropped and
// malformed ones), and the consumption rate in lines per second.
type ProgressFunc func(indexed, total int64, rate float64)

// progressInterval is the minimum number of consumed lines between two
// callback invocations.
const progressInterval = 2000

// progressTracker throttles the callback to batch boundaries, at most
// once per progressInterval lines.
type progressTracker struct {
	fn        ProgressFunc
	start     time.Time
	lastFired int64
}

func newProgressTracker(fn ProgressFunc) *progressTracker {
	return &progressTracker{fn: fn, start: time.Now()}
}

// observe is called after each stored batch with the running totals.
func (p *progressTracker) observe(indexed, total int64) {
	if p.fn == nil {
		return
	}
	if total-p.lastFired < progressInterval {
		return
	}
	p.lastFired = total
	p.fn(indexed, total, p.rate(total))
}

func (p *progressTracker) rate(total int64) float64 {
	elapsed := time.Since(p.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total) / elapsed
}

// memSampler tracks the peak resident set size of this process. The
// sample points are batch boundaries; the peak is an observability
// signal, not an enforced limit.
type memSampler struct {
	proc   *process.Process
	peakMB float64
}

func newMemSampler() *memSampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		jww.DEBUG.Printf("archive: memory sampling unavailable: %v", err)
		return &memSampler{}
	}
	return &memSampler{proc: proc}
}

// sample records the current RSS if it exceeds the peak so far.
func (m *memSampler) sample() {
	if m.proc == nil {
		return
	}
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return
	}
	mb := float64(info.RSS) / (1 << 20)
	if mb > m.peakMB {
		m.peakMB = mb
	}
}

// peak returns the highest RSS observed, in megabytes.
func (m *memSampler) peak() float64 { return m.peakMB }
