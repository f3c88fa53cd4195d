package domain

import (
	"math/rand/v2"
	"strings"
)

// RequestType names one kind of remote action.
type RequestType string

const (
	ReqFileRead       RequestType = "file_read"
	ReqFileReadText   RequestType = "file_read_text"
	ReqFileWrite      RequestType = "file_write"
	ReqFileWriteText  RequestType = "file_write_text"
	ReqFileAppend     RequestType = "file_append"
	ReqFileAppendText RequestType = "file_append_text"
	ReqDirRead        RequestType = "dir_read"
	ReqDirCreate      RequestType = "dir_create"
	ReqRemove         RequestType = "remove"
	ReqCopy           RequestType = "copy"
	ReqRename         RequestType = "rename"
	ReqExists         RequestType = "exists"
	ReqMetadata       RequestType = "metadata"
	ReqProcRun        RequestType = "proc_run"
	ReqProcKill       RequestType = "proc_kill"
	ReqProcStdin      RequestType = "proc_stdin"
	ReqProcList       RequestType = "proc_list"
	ReqSystemInfo     RequestType = "system_info"
)

// ResponseType names one kind of result.
type ResponseType string

const (
	ResOk          ResponseType = "ok"
	ResError       ResponseType = "error"
	ResBlob        ResponseType = "blob"
	ResText        ResponseType = "text"
	ResDirEntries  ResponseType = "dir_entries"
	ResExists      ResponseType = "exists"
	ResMetadata    ResponseType = "metadata"
	ResProcStart   ResponseType = "proc_start"
	ResProcStdout  ResponseType = "proc_stdout"
	ResProcStderr  ResponseType = "proc_stderr"
	ResProcDone    ResponseType = "proc_done"
	ResProcEntries ResponseType = "proc_entries"
	ResSystemInfo  ResponseType = "system_info"
)

// Request is one logical transaction sent by a client. Its payload entries
// are processed in order.
type Request struct {
	Tenant  string        `codec:"tenant"`
	ID      uint64        `codec:"id"`
	Payload []RequestData `codec:"payload"`
}

// RequestData is a single action within a Request. Only the fields relevant
// to Type are set.
type RequestData struct {
	Type   RequestType `codec:"type"`
	Path   string      `codec:"path,omitempty"`
	Dst    string      `codec:"dst,omitempty"`
	Data   []byte      `codec:"data,omitempty"`
	Text   string      `codec:"text,omitempty"`
	All    bool        `codec:"all,omitempty"`
	Depth  int         `codec:"depth,omitempty"`
	Cmd    string      `codec:"cmd,omitempty"`
	Args   []string    `codec:"args,omitempty"`
	ProcID uint64      `codec:"proc_id,omitempty"`

	// CreateParents creates missing parent directories of a write, copy or
	// rename destination.
	CreateParents bool `codec:"create_parents,omitempty"`
}

// Response answers a Request (OriginID) or reports asynchronous output of
// something a Request started.
type Response struct {
	Tenant   string         `codec:"tenant"`
	ID       uint64         `codec:"id"`
	OriginID uint64         `codec:"origin_id"`
	Payload  []ResponseData `codec:"payload"`
}

// ResponseData is a single result within a Response.
type ResponseData struct {
	Type        ResponseType   `codec:"type"`
	Kind        string         `codec:"kind,omitempty"`
	Description string         `codec:"description,omitempty"`
	Data        []byte         `codec:"data,omitempty"`
	Text        string         `codec:"text,omitempty"`
	Entries     []DirEntry     `codec:"entries,omitempty"`
	Errors      []string       `codec:"errors,omitempty"`
	Exists      bool           `codec:"exists,omitempty"`
	Metadata    *Metadata      `codec:"metadata,omitempty"`
	ProcID      uint64         `codec:"proc_id,omitempty"`
	Success     bool           `codec:"success,omitempty"`
	Code        *int           `codec:"code,omitempty"`
	Processes   []ProcessEntry `codec:"processes,omitempty"`
	System      *SystemInfo    `codec:"system,omitempty"`
}

// FileType classifies a filesystem entry.
type FileType string

const (
	FileTypeFile    FileType = "file"
	FileTypeDir     FileType = "dir"
	FileTypeSymlink FileType = "symlink"
)

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Path     string   `codec:"path"`
	FileType FileType `codec:"file_type"`
	Depth    int      `codec:"depth"`
}

// Metadata describes a filesystem entry.
type Metadata struct {
	FileType FileType `codec:"file_type"`
	Len      int64    `codec:"len"`
	ReadOnly bool     `codec:"readonly"`
	Modified int64    `codec:"modified"`
}

// ProcessEntry describes a process started by the requesting client.
type ProcessEntry struct {
	ID   uint64   `codec:"id"`
	Cmd  string   `codec:"cmd"`
	Args []string `codec:"args"`
}

// SystemInfo describes the server host.
type SystemInfo struct {
	Family     string `codec:"family"`
	OS         string `codec:"os"`
	Arch       string `codec:"arch"`
	CurrentDir string `codec:"current_dir"`
	MainSep    string `codec:"main_separator"`
}

// NewRequest builds a request with a random id.
func NewRequest(tenant string, payload ...RequestData) *Request {
	return &Request{Tenant: tenant, ID: rand.Uint64(), Payload: payload}
}

// NewResponse builds a response to the request identified by originID.
func NewResponse(tenant string, originID uint64, payload ...ResponseData) *Response {
	return &Response{Tenant: tenant, ID: rand.Uint64(), OriginID: originID, Payload: payload}
}

// PayloadTypeString summarises the payload for logs, e.g. "file_read,proc_run".
func (r *Request) PayloadTypeString() string {
	types := make([]string, len(r.Payload))
	for i, p := range r.Payload {
		types[i] = string(p.Type)
	}
	return strings.Join(types, ",")
}

// PayloadTypeString summarises the payload for logs.
func (r *Response) PayloadTypeString() string {
	types := make([]string, len(r.Payload))
	for i, p := range r.Payload {
		types[i] = string(p.Type)
	}
	return strings.Join(types, ",")
}

// ErrorData builds an error entry from err.
func ErrorData(kind string, err error) ResponseData {
	return ResponseData{Type: ResError, Kind: kind, Description: err.Error()}
}
