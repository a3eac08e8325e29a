// Package fsops implements the leaf filesystem operations: pure wrappers
// over the host OS with no dependency on the dispatcher, process
// supervisor, watcher, or search engine. Every exported function here
// corresponds to one entry in the closed operation set's filesystem
// half, grounded file-for-file on the upstream project's
// distant-local/src/api.rs.
package fsops

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/distantsrv/hostd/pkg/perr"
	"github.com/distantsrv/hostd/pkg/version"
	"github.com/distantsrv/hostd/protocol"
)

// ReadChunkSize is the buffer size used when streaming large files; the
// leaf read/write operations below load whole files (spec.md §4.5), but
// Copy reuses this for its io.CopyBuffer calls.
const ReadChunkSize = 64 * 1024

// FileRead reads path whole and returns its raw bytes.
func FileRead(path string) ([]byte, *perr.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.FromOS(err)
	}
	return data, nil
}

// FileReadText reads path whole and requires it be valid UTF-8.
func FileReadText(path string) (string, *perr.Error) {
	data, perr2 := FileRead(path)
	if perr2 != nil {
		return "", perr2
	}
	if !utf8.Valid(data) {
		return "", perr.InvalidData("file %s does not contain valid UTF-8", path)
	}
	return string(data), nil
}

// FileWrite truncates-or-creates path and writes data.
func FileWrite(path string, data []byte) *perr.Error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return perr.FromOS(err)
	}
	return nil
}

// FileWriteText is FileWrite with a text payload.
func FileWriteText(path string, text string) *perr.Error {
	return FileWrite(path, []byte(text))
}

// FileAppend creates path if missing, then appends data.
func FileAppend(path string, data []byte) *perr.Error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return perr.FromOS(err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return perr.FromOS(err)
	}
	return nil
}

// FileAppendText is FileAppend with a text payload.
func FileAppendText(path string, text string) *perr.Error {
	return FileAppend(path, []byte(text))
}

// DirRead lists the contents of a directory per spec.md §4.5's policy:
// canonicalize the root, walk it depth-first (sorted by name), strip
// entries of the root prefix unless absolute is requested, and collect
// per-entry canonicalize failures into a parallel error list rather
// than aborting.
func DirRead(path string, depth uint, absolute, canonicalize, includeRoot bool) ([]protocol.DirEntry, []string, *perr.Error) {
	rootPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, nil, perr.FromOS(err)
	}
	rootPath, err = filepath.Abs(rootPath)
	if err != nil {
		return nil, nil, perr.FromOS(err)
	}

	var entries []protocol.DirEntry
	var errs []string

	if includeRoot {
		rootInfo, err := os.Lstat(rootPath)
		if err != nil {
			return nil, nil, perr.FromOS(err)
		}
		entries = append(entries, protocol.DirEntry{
			Path:     rootPath,
			FileType: lstatFileType(rootInfo),
			Depth:    0,
		})
	}

	var walk func(dir string, depthHere uint) *perr.Error
	walk = func(dir string, depthHere uint) *perr.Error {
		children, err := os.ReadDir(dir)
		if err != nil {
			return perr.FromOS(err)
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })

		for _, child := range children {
			childPath := filepath.Join(dir, child.Name())
			info, err := child.Info()
			if err != nil {
				errs = append(errs, childPath+": "+err.Error())
				continue
			}

			displayPath := childPath
			if canonicalize {
				resolved, err := filepath.EvalSymlinks(childPath)
				if err != nil {
					errs = append(errs, childPath+": "+err.Error())
					continue
				}
				displayPath = resolved
			}
			if !absolute {
				if rel, err := filepath.Rel(rootPath, displayPath); err == nil {
					displayPath = rel
				}
			}

			entries = append(entries, protocol.DirEntry{
				Path:     displayPath,
				FileType: fileType(info),
				Depth:    int(depthHere),
			})

			if info.IsDir() && (depth == 0 || depthHere < depth) {
				if perr2 := walk(childPath, depthHere+1); perr2 != nil {
					return perr2
				}
			}
		}
		return nil
	}

	if perr2 := walk(rootPath, 1); perr2 != nil {
		return nil, nil, perr2
	}

	return entries, errs, nil
}

// DirCreate creates a directory, optionally with its parents.
func DirCreate(path string, all bool) *perr.Error {
	var err error
	if all {
		err = os.MkdirAll(path, 0o755)
	} else {
		err = os.Mkdir(path, 0o755)
	}
	if err != nil {
		return perr.FromOS(err)
	}
	return nil
}

// Remove deletes a file or directory; force deletes non-empty
// directories recursively.
func Remove(path string, force bool) *perr.Error {
	info, err := os.Lstat(path)
	if err != nil {
		return perr.FromOS(err)
	}
	if info.IsDir() {
		if force {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return perr.FromOS(err)
	}
	return nil
}

// Copy copies a file or, recursively, a directory: the destination
// directory tree is created first regardless of whether the source has
// any contents, then every file and dir beneath src is replicated
// under dst. A symlink is copied as a regular file holding its target's
// contents; a symlink to a directory makes Copy fail.
func Copy(src, dst string) *perr.Error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return perr.FromOS(err)
	}

	if !srcInfo.IsDir() {
		return copyFile(src, dst)
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return perr.FromOS(err)
	}

	var walk func(dir string) *perr.Error
	walk = func(dir string) *perr.Error {
		children, err := os.ReadDir(dir)
		if err != nil {
			return perr.FromOS(err)
		}
		for _, child := range children {
			srcPath := filepath.Join(dir, child.Name())
			rel, err := filepath.Rel(src, srcPath)
			if err != nil {
				return perr.FromOS(err)
			}
			dstPath := filepath.Join(dst, rel)

			info, err := child.Info()
			if err != nil {
				return perr.FromOS(err)
			}

			switch {
			case info.IsDir():
				if err := os.MkdirAll(dstPath, 0o755); err != nil {
					return perr.FromOS(err)
				}
				if perr2 := walk(srcPath); perr2 != nil {
					return perr2
				}
			default:
				if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
					return perr.FromOS(err)
				}
				if perr2 := copyFile(srcPath, dstPath); perr2 != nil {
					return perr2
				}
			}
		}
		return nil
	}

	return walk(src)
}

func copyFile(src, dst string) *perr.Error {
	in, err := os.Open(src)
	if err != nil {
		return perr.FromOS(err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return perr.FromOS(err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return perr.FromOS(err)
	}
	defer out.Close()

	buf := make([]byte, ReadChunkSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return perr.FromOS(err)
	}
	return nil
}

// Rename moves a file or directory in a single host rename call.
func Rename(src, dst string) *perr.Error {
	if err := os.Rename(src, dst); err != nil {
		return perr.FromOS(err)
	}
	return nil
}

// Exists reports whether path exists; any error other than NotFound
// surfaces rather than being folded into false.
func Exists(path string) (bool, *perr.Error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, perr.FromOS(err)
}

// Metadata populates the full Metadata result for path.
func Metadata(path string, canonicalize, resolveFileType bool) (protocol.Metadata, *perr.Error) {
	info, err := os.Lstat(path)
	if err != nil {
		return protocol.Metadata{}, perr.FromOS(err)
	}

	var canonicalized *string
	if canonicalize {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return protocol.Metadata{}, perr.FromOS(err)
		}
		abs, err := filepath.Abs(resolved)
		if err != nil {
			return protocol.Metadata{}, perr.FromOS(err)
		}
		canonicalized = &abs
	}

	ft := lstatFileType(info)
	if resolveFileType && ft == protocol.FileTypeSymlink {
		resolvedInfo, err := os.Stat(path)
		if err != nil {
			return protocol.Metadata{}, perr.FromOS(err)
		}
		ft = fileType(resolvedInfo)
	}

	m := protocol.Metadata{
		Canonicalized: canonicalized,
		FileType:      ft,
		Len:           uint64(info.Size()),
		Readonly:      info.Mode().Perm()&0o222 == 0,
		ModifiedUnix:  epochPtr(info.ModTime()),
	}
	populatePlatformMetadata(&m, info)
	return m, nil
}

func epochPtr(t time.Time) *uint64 {
	if t.IsZero() {
		return nil
	}
	v := uint64(t.Unix())
	return &v
}

// SetPermissions applies permissions to path, optionally walking a
// directory tree.
func SetPermissions(path string, permissions protocol.Permissions, options protocol.SetPermissionsOptions) *perr.Error {
	target := path
	if options.FollowSymlinks {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return perr.FromOS(err)
		}
		target = resolved
	}

	paths := []string{target}
	if options.Recursive {
		info, err := os.Lstat(target)
		if err != nil {
			return perr.FromOS(err)
		}
		if info.IsDir() {
			paths = paths[:0]
			err := filepath.WalkDir(target, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				paths = append(paths, p)
				return nil
			})
			if err != nil {
				return perr.FromOS(err)
			}
		}
	}

	var errs []string
	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			errs = append(errs, p+": "+err.Error())
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 && options.ExcludeSymlinks {
			continue
		}
		if err := applyPermissions(p, permissions); err != nil {
			errs = append(errs, p+": "+err.Error())
		}
	}

	if len(errs) > 0 {
		return perr.New(perr.KindPermissionDenied, "%s", strings.Join(errs, "\n"))
	}
	return nil
}

// SystemInfo reports host information about this server process.
func SystemInfo() protocol.SystemInfo {
	cwd, _ := os.Getwd()

	shellVar, shellDefault := "SHELL", "/bin/sh"
	if runtime.GOOS == "windows" {
		shellVar, shellDefault = "ComSpec", "cmd.exe"
	}
	shell := os.Getenv(shellVar)
	if shell == "" {
		shell = shellDefault
	}

	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}

	return protocol.SystemInfo{
		Family:        goosFamily(),
		Os:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		CurrentDir:    cwd,
		MainSeparator: string(filepath.Separator),
		Username:      username,
		Shell:         shell,
	}
}

// Version reports this server's protocol version handshake.
func Version() protocol.VersionResult {
	caps := version.All()
	strs := make([]string, len(caps))
	for i, c := range caps {
		strs[i] = string(c)
	}
	return protocol.VersionResult{
		ServerVersion:   version.Version,
		ProtocolVersion: version.Protocol,
		Capabilities:    strs,
	}
}

func goosFamily() string {
	if runtime.GOOS == "windows" {
		return "windows"
	}
	return "unix"
}

func fileType(info os.FileInfo) protocol.FileType {
	switch {
	case info.IsDir():
		return protocol.FileTypeDir
	case info.Mode()&os.ModeSymlink != 0:
		return protocol.FileTypeSymlink
	default:
		return protocol.FileTypeFile
	}
}

func lstatFileType(info os.FileInfo) protocol.FileType {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return protocol.FileTypeSymlink
	case info.IsDir():
		return protocol.FileTypeDir
	default:
		return protocol.FileTypeFile
	}
}
