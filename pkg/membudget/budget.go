// Package membudget limits how much table data concurrent conversions hold
// in memory at once.
//
// Each conversion reserves its target chunk size before it starts reading
// and releases it when it finishes, so a directory with many large files
// cannot oversubscribe RAM even when every file runs in its own goroutine.
package membudget

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Jython1415/zolltools/pkg/humanfmt"
	"github.com/Jython1415/zolltools/pkg/sysmem"
)

// DefaultBudgetBytes is the fallback budget when system RAM cannot be detected.
const DefaultBudgetBytes uint64 = 2 * 1024 * 1024 * 1024

// BudgetSource indicates how the memory budget was determined.
type BudgetSource string

const (
	// BudgetSourceAuto50Pct indicates the budget was set to 50% of detected RAM.
	BudgetSourceAuto50Pct BudgetSource = "auto-50pct"
	// BudgetSourceDefault indicates the budget used the fallback default.
	BudgetSourceDefault BudgetSource = "default"
	// BudgetSourceConfig indicates an explicit size from configuration.
	BudgetSourceConfig BudgetSource = "config"
)

// Budget is a counting semaphore over bytes. It is safe for concurrent use.
type Budget struct {
	total  uint64
	inUse  atomic.Uint64
	source BudgetSource

	mu   sync.Mutex
	cond *sync.Cond
}

// Config holds configuration for creating a Budget.
type Config struct {
	TotalBytes uint64
	Source     BudgetSource
}

// New creates a new Budget with the given configuration.
func New(cfg Config) *Budget {
	b := &Budget{
		total:  cfg.TotalBytes,
		source: cfg.Source,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// NewFromSystemRAM creates a Budget set to 50% of system RAM.
// If RAM cannot be detected, uses DefaultBudgetBytes.
func NewFromSystemRAM() *Budget {
	snap := sysmem.Read()
	if !snap.Reliable {
		return New(Config{TotalBytes: DefaultBudgetBytes, Source: BudgetSourceDefault})
	}
	return New(Config{TotalBytes: snap.Fraction(0.5), Source: BudgetSourceAuto50Pct})
}

// Parse builds a Budget from a configuration value: "auto" (or empty)
// means half of system RAM, anything else is a size for humanfmt.ParseBytes.
func Parse(s string) (*Budget, error) {
	if v := strings.TrimSpace(strings.ToLower(s)); v == "" || v == "auto" {
		return NewFromSystemRAM(), nil
	}
	n, err := humanfmt.ParseBytes(s)
	if err != nil {
		return nil, fmt.Errorf("memory budget: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("memory budget must be positive, got %q", s)
	}
	return New(Config{TotalBytes: uint64(n), Source: BudgetSourceConfig}), nil
}

// Total returns the total budget in bytes.
func (b *Budget) Total() uint64 {
	return b.total
}

// InUse returns the currently reserved bytes.
func (b *Budget) InUse() uint64 {
	return b.inUse.Load()
}

// Available returns the available bytes (total - inUse).
func (b *Budget) Available() uint64 {
	inUse := b.inUse.Load()
	if inUse >= b.total {
		return 0
	}
	return b.total - inUse
}

// Source returns how the budget was determined.
func (b *Budget) Source() BudgetSource {
	return b.source
}

// Clamp caps a request at the total budget so that a single oversized
// file can still run, alone.
func (b *Budget) Clamp(n uint64) uint64 {
	if n > b.total {
		return b.total
	}
	return n
}

// TryReserve attempts to reserve n bytes without blocking.
func (b *Budget) TryReserve(n uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tryReserveLocked(n)
}

// Reserve blocks until n bytes can be reserved.
// Returns an error if the reservation is impossible (n > total).
func (b *Budget) Reserve(n uint64) error {
	if n > b.total {
		return fmt.Errorf("reservation of %s exceeds total budget of %s",
			humanfmt.Bytes(int64(n)), humanfmt.Bytes(int64(b.total)))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.tryReserveLocked(n) {
		b.cond.Wait()
	}
	return nil
}

func (b *Budget) tryReserveLocked(n uint64) bool {
	current := b.inUse.Load()
	if current+n > b.total {
		return false
	}
	b.inUse.Store(current + n)
	return true
}

// Release returns n bytes to the pool and wakes blocked reservations.
func (b *Budget) Release(n uint64) {
	b.mu.Lock()
	current := b.inUse.Load()
	if n > current {
		n = current
	}
	b.inUse.Store(current - n)
	b.mu.Unlock()

	b.cond.Broadcast()
}

// Stats is a snapshot of budget usage.
type Stats struct {
	TotalBytes     uint64
	InUseBytes     uint64
	AvailableBytes uint64
	Source         BudgetSource
	UsagePercent   float64
}

// Stats returns current budget statistics.
func (b *Budget) Stats() Stats {
	inUse := b.inUse.Load()
	var pct float64
	if b.total > 0 {
		pct = float64(inUse) / float64(b.total) * 100.0
	}
	return Stats{
		TotalBytes:     b.total,
		InUseBytes:     inUse,
		AvailableBytes: b.Available(),
		Source:         b.source,
		UsagePercent:   pct,
	}
}
