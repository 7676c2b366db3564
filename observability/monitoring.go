// Package observability aggregates pipeline telemetry. Counters are plain
// atomics bumped on the hot path; Snapshot assembles a point-in-time view
// with process stats for the inspection CLI.
package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

type Metrics struct {
	log *slog.Logger

	messagesSealed  uint64
	messagesOpened  uint64
	decryptFailures uint64
	accessDenials   uint64
	deliveryMarks   uint64
	readMarks       uint64

	startedAt time.Time
}

func NewMetrics(log *slog.Logger) *Metrics {
	return &Metrics{log: log, startedAt: time.Now()}
}

func (m *Metrics) IncrSealed()          { atomic.AddUint64(&m.messagesSealed, 1) }
func (m *Metrics) IncrOpened()          { atomic.AddUint64(&m.messagesOpened, 1) }
func (m *Metrics) IncrDecryptFailures() { atomic.AddUint64(&m.decryptFailures, 1) }
func (m *Metrics) IncrAccessDenials()   { atomic.AddUint64(&m.accessDenials, 1) }
func (m *Metrics) IncrDeliveryMarks()   { atomic.AddUint64(&m.deliveryMarks, 1) }
func (m *Metrics) IncrReadMarks()       { atomic.AddUint64(&m.readMarks, 1) }

// Snapshot is the read-only aggregate handed to operators. It carries no
// message content, only counts and process health.
type Snapshot struct {
	MessagesSealed  uint64
	MessagesOpened  uint64
	DecryptFailures uint64
	AccessDenials   uint64
	DeliveryMarks   uint64
	ReadMarks       uint64

	Uptime     time.Duration
	AllocMemMB uint64
	NumGC      uint32
	CPUPercent float64
	RSSMemMB   uint64
}

func (m *Metrics) Snapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := Snapshot{
		MessagesSealed:  atomic.LoadUint64(&m.messagesSealed),
		MessagesOpened:  atomic.LoadUint64(&m.messagesOpened),
		DecryptFailures: atomic.LoadUint64(&m.decryptFailures),
		AccessDenials:   atomic.LoadUint64(&m.accessDenials),
		DeliveryMarks:   atomic.LoadUint64(&m.deliveryMarks),
		ReadMarks:       atomic.LoadUint64(&m.readMarks),
		Uptime:          time.Since(m.startedAt),
		AllocMemMB:      memStats.Alloc / 1024 / 1024,
		NumGC:           memStats.NumGC,
	}

	// gopsutil failures are non-fatal; the snapshot just omits those fields.
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			snap.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			snap.RSSMemMB = mem.RSS / 1024 / 1024
		}
	} else if m.log != nil {
		m.log.Debug("process stats unavailable", "error", err)
	}

	return snap
}
