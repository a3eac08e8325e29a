//go:build linux

package fsops

import (
	"os"
	"syscall"

	"github.com/distantsrv/hostd/protocol"
)

// applyPermissions sets the full Unix rwx bitset on p from permissions,
// per spec.md §4.5's "Unix: full chmod bits" — every field in
// protocol.Permissions is a plain bool rather than an optional patch bit,
// so the whole mode is replaced rather than merged with what is already
// on disk.
func applyPermissions(p string, permissions protocol.Permissions) error {
	return os.Chmod(p, os.FileMode(permissions.Mode()))
}

func populatePlatformMetadata(m *protocol.Metadata, info os.FileInfo) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	m.Unix = &protocol.UnixMetadata{
		Owner: sys.Uid,
		Group: sys.Gid,
		Mode:  uint32(info.Mode().Perm()),
	}
	m.AccessedUnix = timespecToEpoch(sys.Atim)
}

func timespecToEpoch(ts syscall.Timespec) *uint64 {
	v := uint64(ts.Sec)
	return &v
}
