package protocol

// ResultKind is the wire discriminant ("type" field) for a Response's
// payload. The closed set matches spec.md §6 exactly.
type ResultKind string

// The closed set of response result kinds.
const (
	ResOk            ResultKind = "ok"
	ResError         ResultKind = "error"
	ResBlob          ResultKind = "blob"
	ResText          ResultKind = "text"
	ResDirEntries    ResultKind = "dir_entries"
	ResChanged       ResultKind = "changed"
	ResExists        ResultKind = "exists"
	ResMetadata      ResultKind = "metadata"
	ResSearchStarted ResultKind = "search_started"
	ResSearchResults ResultKind = "search_results"
	ResSearchDone    ResultKind = "search_done"
	ResProcSpawned   ResultKind = "proc_spawned"
	ResProcStdout    ResultKind = "proc_stdout"
	ResProcStderr    ResultKind = "proc_stderr"
	ResProcDone      ResultKind = "proc_done"
	ResSystemInfo    ResultKind = "system_info"
	ResVersion       ResultKind = "version"
	ResBatch         ResultKind = "batch"
)

// Result is the tagged union of all response payloads a Response may
// carry. Each concrete type below implements it.
type Result interface {
	ResultKind() ResultKind
}

// Ok is an empty success acknowledgment.
type Ok struct{}

// ResultKind implements Result.
func (Ok) ResultKind() ResultKind { return ResOk }

// ErrorResult is the wire form of a *perr.Error.
type ErrorResult struct {
	Kind        errKind `json:"kind" msgpack:"kind"`
	Description string  `json:"description" msgpack:"description"`
}

// ResultKind implements Result.
func (ErrorResult) ResultKind() ResultKind { return ResError }

// Blob carries raw binary file data.
type Blob struct {
	Data []byte `json:"data" msgpack:"data"`
}

// ResultKind implements Result.
func (Blob) ResultKind() ResultKind { return ResBlob }

// Text carries UTF-8 file data.
type Text struct {
	Data string `json:"data" msgpack:"data"`
}

// ResultKind implements Result.
func (Text) ResultKind() ResultKind { return ResText }

// DirEntries is the result of a DirRead, including per-entry errors that
// didn't abort the walk.
type DirEntries struct {
	Entries []DirEntry `json:"entries" msgpack:"entries"`
	Errors  []string   `json:"errors,omitempty" msgpack:"errors,omitempty"`
}

// ResultKind implements Result.
func (DirEntries) ResultKind() ResultKind { return ResDirEntries }

// Changed wraps one filesystem Change event delivered to a watcher
// registration.
type Changed struct {
	Change
}

// ResultKind implements Result.
func (Changed) ResultKind() ResultKind { return ResChanged }

// ExistsResult is the boolean result of an Exists request.
type ExistsResult struct {
	Value bool `json:"value" msgpack:"value"`
}

// ResultKind implements Result.
func (ExistsResult) ResultKind() ResultKind { return ResExists }

// MetadataResult wraps the Metadata result of a Metadata request.
type MetadataResult struct {
	Metadata
}

// ResultKind implements Result.
func (MetadataResult) ResultKind() ResultKind { return ResMetadata }

// SearchStarted acknowledges a new Search with its freshly minted id.
type SearchStarted struct {
	ID SearchID `json:"id" msgpack:"id"`
}

// ResultKind implements Result.
func (SearchStarted) ResultKind() ResultKind { return ResSearchStarted }

// SearchResults carries one page of matches for a search.
type SearchResults struct {
	ID      SearchID      `json:"id" msgpack:"id"`
	Matches []SearchMatch `json:"matches" msgpack:"matches"`
}

// ResultKind implements Result.
func (SearchResults) ResultKind() ResultKind { return ResSearchResults }

// SearchDone marks the end of a search's result stream.
type SearchDone struct {
	ID SearchID `json:"id" msgpack:"id"`
}

// ResultKind implements Result.
func (SearchDone) ResultKind() ResultKind { return ResSearchDone }

// ProcSpawned acknowledges a ProcSpawn with its freshly minted process id.
type ProcSpawned struct {
	ID ProcessID `json:"id" msgpack:"id"`
}

// ResultKind implements Result.
func (ProcSpawned) ResultKind() ResultKind { return ResProcSpawned }

// ProcStdout carries one chunk of a process's stdout (or, in PTY mode,
// its single combined stream).
type ProcStdout struct {
	ID   ProcessID `json:"id" msgpack:"id"`
	Data []byte    `json:"data" msgpack:"data"`
}

// ResultKind implements Result.
func (ProcStdout) ResultKind() ResultKind { return ResProcStdout }

// ProcStderr carries one chunk of a process's stderr. Never produced for
// PTY-mode processes.
type ProcStderr struct {
	ID   ProcessID `json:"id" msgpack:"id"`
	Data []byte    `json:"data" msgpack:"data"`
}

// ResultKind implements Result.
func (ProcStderr) ResultKind() ResultKind { return ResProcStderr }

// ProcDone is the final response for a process id: its exit status.
type ProcDone struct {
	ID      ProcessID `json:"id" msgpack:"id"`
	Success bool      `json:"success" msgpack:"success"`
	Code    *int32    `json:"code,omitempty" msgpack:"code,omitempty"`
}

// ResultKind implements Result.
func (ProcDone) ResultKind() ResultKind { return ResProcDone }

// SystemInfoResult wraps the SystemInfo result.
type SystemInfoResult struct {
	SystemInfo
}

// ResultKind implements Result.
func (SystemInfoResult) ResultKind() ResultKind { return ResSystemInfo }

// VersionResult carries the server's version handshake response.
type VersionResult struct {
	ServerVersion   string   `json:"server_version" msgpack:"server_version"`
	ProtocolVersion string   `json:"protocol_version" msgpack:"protocol_version"`
	Capabilities    []string `json:"capabilities" msgpack:"capabilities"`
}

// ResultKind implements Result.
func (VersionResult) ResultKind() ResultKind { return ResVersion }

// BatchResult carries the parallel-ordered results of a Batch request.
type BatchResult struct {
	Results []Result `json:"results" msgpack:"results"`
}

// ResultKind implements Result.
func (BatchResult) ResultKind() ResultKind { return ResBatch }

// Response is one outbound envelope: the origin request id plus a result.
// More than one Response may share an origin (spec.md §3).
type Response struct {
	Origin  RequestID
	Payload Result
}

// ErrorFrom builds a Response carrying an ErrorResult translated from err.
func ErrorFrom(origin RequestID, kind errKind, description string) Response {
	return Response{Origin: origin, Payload: ErrorResult{Kind: kind, Description: description}}
}
