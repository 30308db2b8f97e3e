// Package sysmem reads the machine's physical memory so that memory
// budgets can default to a share of installed RAM.
package sysmem

// DefaultMemoryBytes is the fallback total (4 GiB) used when the platform
// cannot report its memory.
const DefaultMemoryBytes uint64 = 4 * 1024 * 1024 * 1024

// Snapshot is a point-in-time view of physical memory.
type Snapshot struct {
	// TotalBytes is installed physical memory.
	TotalBytes uint64

	// AvailableBytes is memory the OS reports as free for new allocations.
	// Zero means the platform did not report it.
	AvailableBytes uint64

	// Reliable is false when TotalBytes is DefaultMemoryBytes because
	// detection failed.
	Reliable bool
}

// Read takes a memory snapshot. It never fails; on unsupported platforms
// it reports DefaultMemoryBytes with Reliable=false.
func Read() Snapshot {
	total, avail, ok := readMemory()
	if !ok || total == 0 {
		return Snapshot{TotalBytes: DefaultMemoryBytes}
	}
	if avail > total {
		avail = total
	}
	return Snapshot{TotalBytes: total, AvailableBytes: avail, Reliable: true}
}

// Fraction returns frac of the total, at least 1 byte.
func (s Snapshot) Fraction(frac float64) uint64 {
	n := uint64(float64(s.TotalBytes) * frac)
	if n == 0 {
		return 1
	}
	return n
}
