// Package protocol defines the wire-level request/response envelopes and
// value types exchanged between a client and the dispatcher (spec.md §3
// and §6), plus JSON and MsgPack codecs that round-trip them byte-for-byte
// in value.
//
// Field names and defaulting rules are grounded on the upstream Rust
// project's distant-protocol/src/request.rs, translated into idiomatic Go
// rather than transliterated: tagged unions become an interface plus one
// concrete struct per variant instead of a derive-macro enum.
package protocol

import (
	"strings"

	"github.com/distantsrv/hostd/pkg/id"
	"github.com/distantsrv/hostd/pkg/perr"
)

// RequestID is the client-chosen correlation token copied verbatim into
// every response generated for a request.
type RequestID uint32

// ConnectionID identifies one client connection for the server's lifetime.
type ConnectionID = id.Connection

// ProcessID identifies one spawned child process.
type ProcessID = id.Process

// SearchID identifies one in-flight or completed search.
type SearchID = id.Search

// Environment is the set of environment variables handed to a spawned
// process, in addition to (or overriding) the server's own environment.
type Environment map[string]string

// Cmd is the full command line for a spawned process. No shell
// interpretation is performed by the core; Program/Args split it on
// runs of whitespace, with no quoting support.
type Cmd string

// Program returns the executable portion of the command line.
func (c Cmd) Program() string {
	prog, _ := c.split()
	return prog
}

// Args returns the argument vector, split by the host's shell-lexer-free
// whitespace rule: split on the first run of whitespace only, then the
// remainder is split on further whitespace runs with no quoting support.
func (c Cmd) Args() []string {
	_, args := c.split()
	return args
}

func (c Cmd) split() (string, []string) {
	fields := strings.Fields(string(c))
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// String returns the original, unsplit command line.
func (c Cmd) String() string { return string(c) }

// PtySize is the terminal window size used when spawning or resizing a
// PTY-mode process.
type PtySize struct {
	Rows        uint16 `json:"rows" msgpack:"rows"`
	Cols        uint16 `json:"cols" msgpack:"cols"`
	PixelWidth  uint16 `json:"pixel_width,omitempty" msgpack:"pixel_width,omitempty"`
	PixelHeight uint16 `json:"pixel_height,omitempty" msgpack:"pixel_height,omitempty"`
}

// Permissions describes the Unix-style rwx bits on a file, directory, or
// symlink, plus the cross-platform readonly fallback used on platforms
// (Windows) where only the readonly bit is modeled.
type Permissions struct {
	OwnerRead    bool  `json:"owner_read,omitempty" msgpack:"owner_read,omitempty"`
	OwnerWrite   bool  `json:"owner_write,omitempty" msgpack:"owner_write,omitempty"`
	OwnerExec    bool  `json:"owner_exec,omitempty" msgpack:"owner_exec,omitempty"`
	GroupRead    bool  `json:"group_read,omitempty" msgpack:"group_read,omitempty"`
	GroupWrite   bool  `json:"group_write,omitempty" msgpack:"group_write,omitempty"`
	GroupExec    bool  `json:"group_exec,omitempty" msgpack:"group_exec,omitempty"`
	OtherRead    bool  `json:"other_read,omitempty" msgpack:"other_read,omitempty"`
	OtherWrite   bool  `json:"other_write,omitempty" msgpack:"other_write,omitempty"`
	OtherExec    bool  `json:"other_exec,omitempty" msgpack:"other_exec,omitempty"`
	SetReadonly  *bool `json:"readonly,omitempty" msgpack:"readonly,omitempty"`
}

// Mode returns the Unix permission bits (e.g. 0644) these Permissions
// describe.
func (p Permissions) Mode() uint32 {
	var m uint32
	if p.OwnerRead {
		m |= 0o400
	}
	if p.OwnerWrite {
		m |= 0o200
	}
	if p.OwnerExec {
		m |= 0o100
	}
	if p.GroupRead {
		m |= 0o040
	}
	if p.GroupWrite {
		m |= 0o020
	}
	if p.GroupExec {
		m |= 0o010
	}
	if p.OtherRead {
		m |= 0o004
	}
	if p.OtherWrite {
		m |= 0o002
	}
	if p.OtherExec {
		m |= 0o001
	}
	return m
}

// PermissionsFromMode builds Permissions from a Unix mode's low 9 bits.
func PermissionsFromMode(mode uint32) Permissions {
	return Permissions{
		OwnerRead:  mode&0o400 != 0,
		OwnerWrite: mode&0o200 != 0,
		OwnerExec:  mode&0o100 != 0,
		GroupRead:  mode&0o040 != 0,
		GroupWrite: mode&0o020 != 0,
		GroupExec:  mode&0o010 != 0,
		OtherRead:  mode&0o004 != 0,
		OtherWrite: mode&0o002 != 0,
		OtherExec:  mode&0o001 != 0,
	}
}

// SetPermissionsOptions controls how SetPermissions is applied to a
// directory tree.
type SetPermissionsOptions struct {
	Recursive       bool `json:"recursive,omitempty" msgpack:"recursive,omitempty"`
	FollowSymlinks  bool `json:"follow_symlinks,omitempty" msgpack:"follow_symlinks,omitempty"`
	ExcludeSymlinks bool `json:"exclude_symlinks,omitempty" msgpack:"exclude_symlinks,omitempty"`
}

// ChangeKind is the closed set of filesystem change kinds, mapped down
// from the host notify engine's richer event kinds (spec.md §4.3).
type ChangeKind string

// The closed set of change kinds.
const (
	ChangeAccess       ChangeKind = "access"
	ChangeAttribute    ChangeKind = "attribute"
	ChangeCloseWrite   ChangeKind = "close_write"
	ChangeCloseNoWrite ChangeKind = "close_no_write"
	ChangeCreate       ChangeKind = "create"
	ChangeDelete       ChangeKind = "delete"
	ChangeModify       ChangeKind = "modify"
	ChangeOpen         ChangeKind = "open"
	ChangeRename       ChangeKind = "rename"
	ChangeUnknown      ChangeKind = "unknown"
)

// ChangeAttributeKind identifies which attribute a ChangeAttribute event
// touched.
type ChangeAttributeKind string

// The closed set of attribute kinds.
const (
	AttributeOwnership  ChangeAttributeKind = "ownership"
	AttributePermissions ChangeAttributeKind = "permissions"
	AttributeTimestamp  ChangeAttributeKind = "timestamp"
)

// ChangeDetails carries the optional extra data a Change event may have,
// depending on its Kind.
type ChangeDetails struct {
	Attribute *ChangeAttributeKind `json:"attribute,omitempty" msgpack:"attribute,omitempty"`
	Renamed   *string              `json:"renamed,omitempty" msgpack:"renamed,omitempty"`
	Timestamp *uint64              `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	Extra     *string              `json:"extra,omitempty" msgpack:"extra,omitempty"`
}

// Change is one filesystem change event delivered to a watch registration.
type Change struct {
	TimestampEpochS uint64        `json:"timestamp_epoch_s" msgpack:"timestamp_epoch_s"`
	Kind            ChangeKind    `json:"kind" msgpack:"kind"`
	Path            string        `json:"path" msgpack:"path"`
	Details         ChangeDetails `json:"details,omitempty" msgpack:"details,omitempty"`
}

// FileType is the closed set of filesystem entry kinds.
type FileType string

// The closed set of file types.
const (
	FileTypeFile    FileType = "file"
	FileTypeDir     FileType = "dir"
	FileTypeSymlink FileType = "symlink"
)

// DirEntry is one entry returned by DirRead.
type DirEntry struct {
	Path     string   `json:"path" msgpack:"path"`
	FileType FileType `json:"file_type" msgpack:"file_type"`
	Depth    int      `json:"depth" msgpack:"depth"`
}

// UnixMetadata carries the Unix-specific metadata facet.
type UnixMetadata struct {
	Owner uint32 `json:"owner" msgpack:"owner"`
	Group uint32 `json:"group" msgpack:"group"`
	Mode  uint32 `json:"mode" msgpack:"mode"`
}

// WindowsMetadata carries the Windows-specific metadata facet.
type WindowsMetadata struct {
	Archive  bool `json:"archive,omitempty" msgpack:"archive,omitempty"`
	Compressed bool `json:"compressed,omitempty" msgpack:"compressed,omitempty"`
	System   bool `json:"system,omitempty" msgpack:"system,omitempty"`
}

// Metadata is the full metadata result for a path (spec.md §4.5).
type Metadata struct {
	Canonicalized *string          `json:"canonicalized_path,omitempty" msgpack:"canonicalized_path,omitempty"`
	FileType      FileType         `json:"file_type" msgpack:"file_type"`
	Len           uint64           `json:"len" msgpack:"len"`
	Readonly      bool             `json:"readonly,omitempty" msgpack:"readonly,omitempty"`
	AccessedUnix  *uint64          `json:"accessed,omitempty" msgpack:"accessed,omitempty"`
	CreatedUnix   *uint64          `json:"created,omitempty" msgpack:"created,omitempty"`
	ModifiedUnix  *uint64          `json:"modified,omitempty" msgpack:"modified,omitempty"`
	Unix          *UnixMetadata    `json:"unix,omitempty" msgpack:"unix,omitempty"`
	Windows       *WindowsMetadata `json:"windows,omitempty" msgpack:"windows,omitempty"`
}

// SystemInfo is the result of a SystemInfo request.
type SystemInfo struct {
	Family       string `json:"family" msgpack:"family"`
	Os           string `json:"os" msgpack:"os"`
	Arch         string `json:"arch" msgpack:"arch"`
	CurrentDir   string `json:"current_dir" msgpack:"current_dir"`
	MainSeparator string `json:"main_separator" msgpack:"main_separator"`
	Username     string `json:"username" msgpack:"username"`
	Shell        string `json:"shell" msgpack:"shell"`
}

// SearchTarget selects whether a Search matches file contents or paths.
type SearchTarget string

// The closed set of search targets.
const (
	SearchTargetContents SearchTarget = "contents"
	SearchTargetPath     SearchTarget = "path"
)

// SearchConditionKind is the closed set of string-matching strategies a
// SearchQuery's condition may use.
type SearchConditionKind string

// The closed set of condition kinds.
const (
	SearchConditionEquals     SearchConditionKind = "equals"
	SearchConditionContains   SearchConditionKind = "contains"
	SearchConditionStartsWith SearchConditionKind = "starts_with"
	SearchConditionEndsWith   SearchConditionKind = "ends_with"
	SearchConditionRegex      SearchConditionKind = "regex"
)

// SearchCondition is a single string-matching predicate.
type SearchCondition struct {
	Kind            SearchConditionKind `json:"kind" msgpack:"kind"`
	Value           string              `json:"value" msgpack:"value"`
	CaseInsensitive bool                `json:"case_insensitive,omitempty" msgpack:"case_insensitive,omitempty"`
}

// SearchOptions controls how a Search walks and filters the tree.
type SearchOptions struct {
	AllowedFileTypes    []FileType       `json:"allowed_file_types,omitempty" msgpack:"allowed_file_types,omitempty"`
	Include             *SearchCondition `json:"include,omitempty" msgpack:"include,omitempty"`
	Exclude             *SearchCondition `json:"exclude,omitempty" msgpack:"exclude,omitempty"`
	Hidden              bool             `json:"hidden,omitempty" msgpack:"hidden,omitempty"`
	IgnoreFiles         bool             `json:"ignore_files,omitempty" msgpack:"ignore_files,omitempty"`
	IgnoreGlobalFiles   bool             `json:"ignore_global_files,omitempty" msgpack:"ignore_global_files,omitempty"`
	IgnoreGitExclude    bool             `json:"ignore_git_exclude,omitempty" msgpack:"ignore_git_exclude,omitempty"`
	FollowSymbolicLinks bool             `json:"follow_symbolic_links,omitempty" msgpack:"follow_symbolic_links,omitempty"`
	Upward              bool             `json:"upward,omitempty" msgpack:"upward,omitempty"`
	MaxDepth            uint             `json:"max_depth,omitempty" msgpack:"max_depth,omitempty"`
	PaginationSize      uint             `json:"pagination_size,omitempty" msgpack:"pagination_size,omitempty"`
	Limit               uint             `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

// SearchQuery fully describes one Search request.
type SearchQuery struct {
	Target    SearchTarget    `json:"target" msgpack:"target"`
	Condition SearchCondition `json:"condition" msgpack:"condition"`
	Paths     []string        `json:"paths" msgpack:"paths"`
	Options   SearchOptions   `json:"options,omitempty" msgpack:"options,omitempty"`
}

// SearchSubmatch is one matched span within a content search's line.
type SearchSubmatch struct {
	Start uint   `json:"start" msgpack:"start"`
	End   uint   `json:"end" msgpack:"end"`
	Value string `json:"value" msgpack:"value"`
}

// SearchLines is the [start,end) line range a content match spans.
type SearchLines struct {
	Start uint `json:"start" msgpack:"start"`
	End   uint `json:"end" msgpack:"end"`
}

// SearchMatch is one matched path or content span.
type SearchMatch struct {
	Path       string           `json:"path" msgpack:"path"`
	Lines      *SearchLines     `json:"lines,omitempty" msgpack:"lines,omitempty"`
	Bytes      []byte           `json:"bytes,omitempty" msgpack:"bytes,omitempty"`
	Submatches []SearchSubmatch `json:"submatches,omitempty" msgpack:"submatches,omitempty"`
}

// errKind round-trips a *perr.Error's Kind/Description through the wire;
// kept here (rather than in perr) since the wire tag names are a protocol
// concern, not an error-taxonomy one.
type errKind = perr.Kind
