//go:build darwin

package sysmem

import "golang.org/x/sys/unix"

func readMemory() (total, avail uint64, ok bool) {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0, 0, false
	}
	free, err1 := unix.SysctlUint32("vm.page_free_count")
	page, err2 := unix.SysctlUint32("hw.pagesize")
	if err1 == nil && err2 == nil {
		avail = uint64(free) * uint64(page)
	}
	return total, avail, true
}
