//go:build linux

package snapshot

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// statTimes returns the modify, change and access times of path.
func statTimes(path string, info fs.FileInfo) times {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return fallbackTimes(info)
	}
	return times{
		modify: st.Mtim.Nano(),
		change: st.Ctim.Nano(),
		access: st.Atim.Nano(),
	}
}
