//go:build windows

package fsops

import (
	"os"
	"syscall"

	"github.com/distantsrv/hostd/protocol"
)

// applyPermissions applies only the readonly bit on Windows, where the
// full Unix rwx bitset has no meaning.
func applyPermissions(p string, permissions protocol.Permissions) error {
	if permissions.SetReadonly == nil {
		return nil
	}
	info, err := os.Lstat(p)
	if err != nil {
		return err
	}
	mode := info.Mode()
	if *permissions.SetReadonly {
		mode &^= 0o222
	} else {
		mode |= 0o200
	}
	return os.Chmod(p, mode)
}

func populatePlatformMetadata(m *protocol.Metadata, info os.FileInfo) {
	sys, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return
	}
	const (
		fileAttributeArchive  = 0x20
		fileAttributeCompress = 0x800
		fileAttributeSystem   = 0x4
	)
	m.Windows = &protocol.WindowsMetadata{
		Archive:    sys.FileAttributes&fileAttributeArchive != 0,
		Compressed: sys.FileAttributes&fileAttributeCompress != 0,
		System:     sys.FileAttributes&fileAttributeSystem != 0,
	}
	m.AccessedUnix = filetimeToEpoch(sys.LastAccessTime)
	m.CreatedUnix = filetimeToEpoch(sys.CreationTime)
}

func filetimeToEpoch(ft syscall.Filetime) *uint64 {
	v := uint64(ft.Nanoseconds() / int64(1_000_000_000))
	return &v
}
