//go:build freebsd || openbsd || netbsd || dragonfly

package sysmem

import "golang.org/x/sys/unix"

func readMemory() (total, avail uint64, ok bool) {
	for _, name := range []string{"hw.physmem", "hw.realmem"} {
		if mem, err := unix.SysctlUint64(name); err == nil && mem > 0 {
			total = mem
			break
		}
	}
	if total == 0 {
		return 0, 0, false
	}
	// Only FreeBSD and DragonFly expose the free page count.
	free, err1 := unix.SysctlUint32("vm.stats.vm.v_free_count")
	page, err2 := unix.SysctlUint32("hw.pagesize")
	if err1 == nil && err2 == nil {
		avail = uint64(free) * uint64(page)
	}
	return total, avail, true
}
