//go:build !linux && !darwin && !windows && !freebsd && !openbsd && !netbsd && !dragonfly

package sysmem

func readMemory() (total, avail uint64, ok bool) {
	return 0, 0, false
}
