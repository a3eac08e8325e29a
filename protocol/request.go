package protocol

// OperationKind is the wire discriminant ("type" field) for a Request's
// payload. The closed set matches spec.md §6 exactly.
type OperationKind string

// The closed set of request operation kinds.
const (
	OpFileRead       OperationKind = "file_read"
	OpFileReadText   OperationKind = "file_read_text"
	OpFileWrite      OperationKind = "file_write"
	OpFileWriteText  OperationKind = "file_write_text"
	OpFileAppend     OperationKind = "file_append"
	OpFileAppendText OperationKind = "file_append_text"
	OpDirRead        OperationKind = "dir_read"
	OpDirCreate      OperationKind = "dir_create"
	OpRemove         OperationKind = "remove"
	OpCopy           OperationKind = "copy"
	OpRename         OperationKind = "rename"
	OpWatch          OperationKind = "watch"
	OpUnwatch        OperationKind = "unwatch"
	OpExists         OperationKind = "exists"
	OpMetadata       OperationKind = "metadata"
	OpSetPermissions OperationKind = "set_permissions"
	OpSearch         OperationKind = "search"
	OpCancelSearch   OperationKind = "cancel_search"
	OpProcSpawn      OperationKind = "proc_spawn"
	OpProcKill       OperationKind = "proc_kill"
	OpProcStdin      OperationKind = "proc_stdin"
	OpProcResizePty  OperationKind = "proc_resize_pty"
	OpSystemInfo     OperationKind = "system_info"
	OpVersion        OperationKind = "version"
	OpBatch          OperationKind = "batch"
)

// Operation is the tagged union of all request payloads a Request may
// carry. Each concrete type below implements it.
type Operation interface {
	OperationKind() OperationKind
}

// FileRead reads a whole file as binary data.
type FileRead struct {
	Path string `json:"path" msgpack:"path"`
}

// OperationKind implements Operation.
func (FileRead) OperationKind() OperationKind { return OpFileRead }

// FileReadText reads a whole file and requires it be valid UTF-8.
type FileReadText struct {
	Path string `json:"path" msgpack:"path"`
}

// OperationKind implements Operation.
func (FileReadText) OperationKind() OperationKind { return OpFileReadText }

// FileWrite truncates-or-creates path and writes Data.
type FileWrite struct {
	Path string `json:"path" msgpack:"path"`
	Data []byte `json:"data" msgpack:"data"`
}

// OperationKind implements Operation.
func (FileWrite) OperationKind() OperationKind { return OpFileWrite }

// FileWriteText is FileWrite with a text payload.
type FileWriteText struct {
	Path string `json:"path" msgpack:"path"`
	Text string `json:"text" msgpack:"text"`
}

// OperationKind implements Operation.
func (FileWriteText) OperationKind() OperationKind { return OpFileWriteText }

// FileAppend creates path if missing, then appends Data.
type FileAppend struct {
	Path string `json:"path" msgpack:"path"`
	Data []byte `json:"data" msgpack:"data"`
}

// OperationKind implements Operation.
func (FileAppend) OperationKind() OperationKind { return OpFileAppend }

// FileAppendText is FileAppend with a text payload.
type FileAppendText struct {
	Path string `json:"path" msgpack:"path"`
	Text string `json:"text" msgpack:"text"`
}

// OperationKind implements Operation.
func (FileAppendText) OperationKind() OperationKind { return OpFileAppendText }

// DirRead lists the contents of a directory. Depth of 0 means unlimited.
type DirRead struct {
	Path         string `json:"path" msgpack:"path"`
	Depth        uint   `json:"depth,omitempty" msgpack:"depth,omitempty"`
	Absolute     bool   `json:"absolute,omitempty" msgpack:"absolute,omitempty"`
	Canonicalize bool   `json:"canonicalize,omitempty" msgpack:"canonicalize,omitempty"`
	IncludeRoot  bool   `json:"include_root,omitempty" msgpack:"include_root,omitempty"`
}

// OperationKind implements Operation.
func (DirRead) OperationKind() OperationKind { return OpDirRead }

// DirCreate creates a directory, optionally with its parents.
type DirCreate struct {
	Path string `json:"path" msgpack:"path"`
	All  bool   `json:"all,omitempty" msgpack:"all,omitempty"`
}

// OperationKind implements Operation.
func (DirCreate) OperationKind() OperationKind { return OpDirCreate }

// Remove deletes a file or directory.
type Remove struct {
	Path  string `json:"path" msgpack:"path"`
	Force bool   `json:"force,omitempty" msgpack:"force,omitempty"`
}

// OperationKind implements Operation.
func (Remove) OperationKind() OperationKind { return OpRemove }

// Copy copies a file or, recursively, a directory.
type Copy struct {
	Src string `json:"src" msgpack:"src"`
	Dst string `json:"dst" msgpack:"dst"`
}

// OperationKind implements Operation.
func (Copy) OperationKind() OperationKind { return OpCopy }

// Rename moves a file or directory in a single host rename call.
type Rename struct {
	Src string `json:"src" msgpack:"src"`
	Dst string `json:"dst" msgpack:"dst"`
}

// OperationKind implements Operation.
func (Rename) OperationKind() OperationKind { return OpRename }

// Watch subscribes the connection to filesystem changes under Path.
type Watch struct {
	Path      string       `json:"path" msgpack:"path"`
	Recursive bool         `json:"recursive,omitempty" msgpack:"recursive,omitempty"`
	Only      []ChangeKind `json:"only,omitempty" msgpack:"only,omitempty"`
	Except    []ChangeKind `json:"except,omitempty" msgpack:"except,omitempty"`
}

// OperationKind implements Operation.
func (Watch) OperationKind() OperationKind { return OpWatch }

// Unwatch removes a prior Watch registration.
type Unwatch struct {
	Path string `json:"path" msgpack:"path"`
}

// OperationKind implements Operation.
func (Unwatch) OperationKind() OperationKind { return OpUnwatch }

// Exists checks whether a path exists.
type Exists struct {
	Path string `json:"path" msgpack:"path"`
}

// OperationKind implements Operation.
func (Exists) OperationKind() OperationKind { return OpExists }

// MetadataOp retrieves filesystem metadata for a path.
type MetadataOp struct {
	Path            string `json:"path" msgpack:"path"`
	Canonicalize    bool   `json:"canonicalize,omitempty" msgpack:"canonicalize,omitempty"`
	ResolveFileType bool   `json:"resolve_file_type,omitempty" msgpack:"resolve_file_type,omitempty"`
}

// OperationKind implements Operation.
func (MetadataOp) OperationKind() OperationKind { return OpMetadata }

// SetPermissions applies new permissions to a path.
type SetPermissions struct {
	Path        string                `json:"path" msgpack:"path"`
	Permissions Permissions           `json:"permissions" msgpack:"permissions"`
	Options     SetPermissionsOptions `json:"options,omitempty" msgpack:"options,omitempty"`
}

// OperationKind implements Operation.
func (SetPermissions) OperationKind() OperationKind { return OpSetPermissions }

// Search starts a new search against the filesystem.
type Search struct {
	Query SearchQuery `json:"query" msgpack:"query"`
}

// OperationKind implements Operation.
func (Search) OperationKind() OperationKind { return OpSearch }

// CancelSearch cancels an active search.
type CancelSearch struct {
	ID SearchID `json:"id" msgpack:"id"`
}

// OperationKind implements Operation.
func (CancelSearch) OperationKind() OperationKind { return OpCancelSearch }

// ProcSpawn spawns a new process, simple or PTY-backed.
type ProcSpawn struct {
	Cmd         Cmd         `json:"cmd" msgpack:"cmd"`
	Environment Environment `json:"environment,omitempty" msgpack:"environment,omitempty"`
	CurrentDir  string      `json:"current_dir,omitempty" msgpack:"current_dir,omitempty"`
	Pty         *PtySize    `json:"pty,omitempty" msgpack:"pty,omitempty"`
}

// OperationKind implements Operation.
func (ProcSpawn) OperationKind() OperationKind { return OpProcSpawn }

// ProcKill signals a running process to terminate.
type ProcKill struct {
	ID ProcessID `json:"id" msgpack:"id"`
}

// OperationKind implements Operation.
func (ProcKill) OperationKind() OperationKind { return OpProcKill }

// ProcStdin forwards bytes to a process's stdin pipe.
type ProcStdin struct {
	ID   ProcessID `json:"id" msgpack:"id"`
	Data []byte    `json:"data" msgpack:"data"`
}

// OperationKind implements Operation.
func (ProcStdin) OperationKind() OperationKind { return OpProcStdin }

// ProcResizePty resizes a PTY-backed process's window.
type ProcResizePty struct {
	ID   ProcessID `json:"id" msgpack:"id"`
	Size PtySize   `json:"size" msgpack:"size"`
}

// OperationKind implements Operation.
func (ProcResizePty) OperationKind() OperationKind { return OpProcResizePty }

// SystemInfoOp requests host system information.
type SystemInfoOp struct{}

// OperationKind implements Operation.
func (SystemInfoOp) OperationKind() OperationKind { return OpSystemInfo }

// VersionOp requests the server's protocol version and capabilities.
type VersionOp struct{}

// OperationKind implements Operation.
func (VersionOp) OperationKind() OperationKind { return OpVersion }

// Batch carries an ordered sequence of operations dispatched
// independently but under one request id (spec.md §4.1).
type Batch struct {
	Operations []Operation `json:"operations" msgpack:"operations"`
}

// OperationKind implements Operation.
func (Batch) OperationKind() OperationKind { return OpBatch }

// Request is one inbound envelope: a client-chosen id plus its operation.
type Request struct {
	ID      RequestID
	Payload Operation
}
