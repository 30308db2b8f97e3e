// Package memdiag logs heap usage while a conversion runs, to check that
// chunking keeps memory bounded.
//
// Enable with ZOLLTOOLS_MEM_DEBUG=1. ZOLLTOOLS_MEM_PPROF=<addr> also
// serves net/http/pprof on addr.
package memdiag

import (
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	// Registers pprof handlers on DefaultServeMux for the pprof HTTP server.
	_ "net/http/pprof"

	"github.com/rs/zerolog"

	"github.com/Jython1415/zolltools/pkg/humanfmt"
	"github.com/Jython1415/zolltools/pkg/membudget"
)

const (
	EnvDebug = "ZOLLTOOLS_MEM_DEBUG"
	EnvPprof = "ZOLLTOOLS_MEM_PPROF"
)

// Config holds configuration for memory diagnostics.
type Config struct {
	Enabled bool

	// PprofAddr, when set, is where the pprof server listens.
	PprofAddr string

	// Interval is the period of the background log. Defaults to 5s.
	Interval time.Duration

	// Budget, when set, is reported next to the heap.
	Budget *membudget.Budget
}

// FromEnv returns the configuration selected by the environment.
func FromEnv(getenv func(string) string) Config {
	return Config{
		Enabled:   getenv(EnvDebug) == "1",
		PprofAddr: getenv(EnvPprof),
		Interval:  5 * time.Second,
	}
}

// Stats is the subset of runtime.MemStats that is logged.
type Stats struct {
	HeapAlloc  uint64
	HeapSys    uint64
	HeapInuse  uint64
	StackInuse uint64
	Sys        uint64
	NumGC      uint32
}

// Read reads current memory statistics.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		HeapInuse:  m.HeapInuse,
		StackInuse: m.StackInuse,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// Tracker logs memory usage periodically and remembers the peak heap.
// A disabled Tracker does nothing.
type Tracker struct {
	cfg     Config
	log     zerolog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool

	mu       sync.Mutex
	peakHeap uint64
}

// NewTracker creates a tracker that writes to log.
func NewTracker(cfg Config, log zerolog.Logger) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Tracker{
		cfg:    cfg,
		log:    log.With().Str("component", "memdiag").Logger(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins periodic logging. It is a no-op when disabled or already
// started.
func (t *Tracker) Start() {
	if !t.cfg.Enabled || !t.started.CompareAndSwap(false, true) {
		return
	}
	t.log.Info().Dur("interval", t.cfg.Interval).Msg("memory diagnostics enabled")

	if addr := t.cfg.PprofAddr; addr != "" {
		go func() {
			t.log.Info().Str("addr", addr).Msg("starting pprof server")
			if err := http.ListenAndServe(addr, nil); err != nil {
				t.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}
	go t.loop()
}

// Stop stops periodic logging after one final sample.
func (t *Tracker) Stop() {
	if !t.started.Load() {
		return
	}
	close(t.stopCh)
	<-t.doneCh
}

// Sample records the current heap and logs it with reason.
func (t *Tracker) Sample(reason string) Stats {
	stats := Read()

	t.mu.Lock()
	t.peakHeap = max(t.peakHeap, stats.HeapAlloc)
	peak := t.peakHeap
	t.mu.Unlock()

	if !t.cfg.Enabled {
		return stats
	}
	ev := t.log.Debug().
		Str("reason", reason).
		Str("heap_alloc", humanfmt.Bytes(int64(stats.HeapAlloc))).
		Str("heap_inuse", humanfmt.Bytes(int64(stats.HeapInuse))).
		Str("stack_inuse", humanfmt.Bytes(int64(stats.StackInuse))).
		Str("sys_total", humanfmt.Bytes(int64(stats.Sys))).
		Str("peak_heap", humanfmt.Bytes(int64(peak))).
		Uint32("num_gc", stats.NumGC)
	if b := t.cfg.Budget; b != nil {
		ev = ev.Str("budget_inuse", humanfmt.Bytes(int64(b.InUse()))).
			Str("budget_total", humanfmt.Bytes(int64(b.Total())))
	}
	ev.Msg("memory stats")
	return stats
}

// PeakHeap returns the largest heap allocation seen by Sample.
func (t *Tracker) PeakHeap() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}

func (t *Tracker) loop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			t.Sample("shutdown")
			return
		case <-ticker.C:
			t.Sample("periodic")
		}
	}
}
