package handler

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/server/state"
	"github.com/yndnr/remotely/internal/telemetry/logger"
)

// recorder is an in-memory Responder.
type recorder struct {
	mu       sync.Mutex
	sent     []*domain.Response
	retained int
	closed   bool
	notify   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 1024)}
}

func (r *recorder) Send(_ context.Context, resp *domain.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrQueueClosed
	}
	r.sent = append(r.sent, resp)
	r.notify <- struct{}{}
	return nil
}

func (r *recorder) Retain() (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domain.ErrQueueClosed
	}
	r.retained++
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.retained--
			r.mu.Unlock()
		})
	}, nil
}

func (r *recorder) responses() []*domain.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Response(nil), r.sent...)
}

func (r *recorder) holders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retained
}

func newTestHandler() *Local {
	return NewLocal()
}

// testContext carries a logger that discards everything.
func testContext() context.Context {
	l, _ := logger.New(logger.Config{Level: "error", Output: io.Discard})
	return logger.WithLogger(context.Background(), l)
}

// run processes one request and returns its direct response.
func run(t *testing.T, h *Local, st *state.ServerState, out *recorder, payload ...domain.RequestData) *domain.Response {
	t.Helper()
	req := domain.NewRequest("test", payload...)
	if err := h.Process(testContext(), "client", st, req, out); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	for _, resp := range out.responses() {
		if resp.OriginID == req.ID && len(resp.Payload) == len(payload) {
			return resp
		}
	}
	t.Fatalf("no response for request %d", req.ID)
	return nil
}

func one(t *testing.T, payload ...domain.RequestData) domain.ResponseData {
	t.Helper()
	resp := run(t, newTestHandler(), state.New(), newRecorder(), payload...)
	return resp.Payload[0]
}

func TestProcess_MirrorsPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	resp := run(t, newTestHandler(), state.New(), newRecorder(),
		domain.RequestData{Type: domain.ReqFileWriteText, Path: path, Text: "hello"},
		domain.RequestData{Type: domain.ReqFileRead, Path: filepath.Join(dir, "missing")},
		domain.RequestData{Type: domain.ReqFileReadText, Path: path},
		domain.RequestData{Type: "bogus"},
	)

	want := []domain.ResponseType{domain.ResOk, domain.ResError, domain.ResText, domain.ResError}
	if len(resp.Payload) != len(want) {
		t.Fatalf("payload length = %d, want %d", len(resp.Payload), len(want))
	}
	for i, typ := range want {
		if resp.Payload[i].Type != typ {
			t.Errorf("payload[%d].Type = %s, want %s", i, resp.Payload[i].Type, typ)
		}
	}
	if resp.Payload[1].Kind != KindNotFound {
		t.Errorf("missing file kind = %q, want %q", resp.Payload[1].Kind, KindNotFound)
	}
	if resp.Payload[2].Text != "hello" {
		t.Errorf("read text = %q, want %q", resp.Payload[2].Text, "hello")
	}
	if resp.Payload[3].Kind != KindUnsupported {
		t.Errorf("bogus kind = %q, want %q", resp.Payload[3].Kind, KindUnsupported)
	}
}

func TestProcess_SendFailure(t *testing.T) {
	out := newRecorder()
	out.closed = true
	req := domain.NewRequest("test", domain.RequestData{Type: domain.ReqSystemInfo})

	err := newTestHandler().Process(testContext(), "client", state.New(), req, out)
	if !errors.Is(err, domain.ErrHandler) {
		t.Errorf("Process() error = %v, want ErrHandler", err)
	}
}

func TestFileWriteAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "f.bin")

	tests := []struct {
		name string
		req  domain.RequestData
		want domain.ResponseType
	}{
		{"write without parents", domain.RequestData{Type: domain.ReqFileWrite, Path: path, Data: []byte("ab")}, domain.ResError},
		{"write with parents", domain.RequestData{Type: domain.ReqFileWrite, Path: path, Data: []byte("ab"), CreateParents: true}, domain.ResOk},
		{"append bytes", domain.RequestData{Type: domain.ReqFileAppend, Path: path, Data: []byte("cd")}, domain.ResOk},
		{"append text", domain.RequestData{Type: domain.ReqFileAppendText, Path: path, Text: "ef"}, domain.ResOk},
		{"missing path", domain.RequestData{Type: domain.ReqFileWrite}, domain.ResError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := one(t, tt.req); got.Type != tt.want {
				t.Errorf("Type = %s (%s), want %s", got.Type, got.Description, tt.want)
			}
		})
	}

	got := one(t, domain.RequestData{Type: domain.ReqFileRead, Path: path})
	if string(got.Data) != "abcdef" {
		t.Errorf("file contents = %q, want %q", got.Data, "abcdef")
	}

	got = one(t, domain.RequestData{Type: domain.ReqFileWriteText, Path: path, Text: "x"})
	if got.Type != domain.ResOk {
		t.Fatalf("overwrite failed: %s", got.Description)
	}
	if b, _ := os.ReadFile(path); string(b) != "x" {
		t.Errorf("after overwrite = %q, want %q", b, "x")
	}
}

func TestFileRead_ResponseBudget(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.bin")
	small := filepath.Join(dir, "small.txt")
	if err := os.WriteFile(big, make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(small, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewLocal(WithMaxRead(4000))
	resp := run(t, h, state.New(), newRecorder(),
		domain.RequestData{Type: domain.ReqFileRead, Path: big},
		domain.RequestData{Type: domain.ReqFileReadText, Path: small},
	)
	if got := resp.Payload[0]; got.Type != domain.ResError || got.Kind != KindInvalid {
		t.Errorf("oversized read = %s/%s, want error/%s", got.Type, got.Kind, KindInvalid)
	}
	if got := resp.Payload[1]; got.Text != "0123456789" {
		t.Errorf("small read = %+v", got)
	}

	// Reads in one request share the budget.
	h = NewLocal(WithMaxRead(15))
	resp = run(t, h, state.New(), newRecorder(),
		domain.RequestData{Type: domain.ReqFileRead, Path: small},
		domain.RequestData{Type: domain.ReqFileRead, Path: small},
	)
	if got := resp.Payload[0]; got.Type != domain.ResBlob || len(got.Data) != 10 {
		t.Errorf("first read = %s, %d bytes", got.Type, len(got.Data))
	}
	if got := resp.Payload[1]; got.Kind != KindInvalid {
		t.Errorf("second read kind = %q, want %q", got.Kind, KindInvalid)
	}
}

func TestReadLimit(t *testing.T) {
	tests := []struct {
		frame int
		want  int64
	}{
		{1024, 768},
		{16 << 20, 16<<20 - 64<<10},
	}
	for _, tt := range tests {
		if got := ReadLimit(tt.frame); got != tt.want {
			t.Errorf("ReadLimit(%d) = %d, want %d", tt.frame, got, tt.want)
		}
	}
	if ReadLimit(16<<20) != DefaultMaxRead {
		t.Error("DefaultMaxRead does not match the default frame size")
	}
}

func TestDirRead(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"a/b/c", "d"} {
		if err := os.MkdirAll(filepath.Join(dir, p), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "a", "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		depth int
		want  []string
	}{
		{0, []string{"a", "a/b", "a/b/c", "a/f.txt", "d"}},
		{1, []string{"a", "d"}},
		{2, []string{"a", "a/b", "a/f.txt", "d"}},
	}
	for _, tt := range tests {
		got := one(t, domain.RequestData{Type: domain.ReqDirRead, Path: dir, Depth: tt.depth})
		if got.Type != domain.ResDirEntries {
			t.Fatalf("depth %d: Type = %s (%s)", tt.depth, got.Type, got.Description)
		}
		var paths []string
		for _, e := range got.Entries {
			paths = append(paths, e.Path)
			if e.Depth != strings.Count(e.Path, "/")+1 {
				t.Errorf("entry %s depth = %d", e.Path, e.Depth)
			}
		}
		sort.Strings(paths)
		if strings.Join(paths, ",") != strings.Join(tt.want, ",") {
			t.Errorf("depth %d: entries = %v, want %v", tt.depth, paths, tt.want)
		}
	}

	got := one(t, domain.RequestData{Type: domain.ReqDirRead, Path: filepath.Join(dir, "a", "f.txt")})
	if got.Type != domain.ResError || got.Kind != KindInvalid {
		t.Errorf("dir_read on file = %s/%s, want error/%s", got.Type, got.Kind, KindInvalid)
	}
}

func TestDirCreateRemove(t *testing.T) {
	dir := t.TempDir()
	deep := filepath.Join(dir, "x", "y")

	if got := one(t, domain.RequestData{Type: domain.ReqDirCreate, Path: deep}); got.Kind != KindNotFound {
		t.Errorf("dir_create without all kind = %q, want %q", got.Kind, KindNotFound)
	}
	if got := one(t, domain.RequestData{Type: domain.ReqDirCreate, Path: deep, All: true}); got.Type != domain.ResOk {
		t.Fatalf("dir_create all = %s (%s)", got.Type, got.Description)
	}
	if got := one(t, domain.RequestData{Type: domain.ReqDirCreate, Path: deep}); got.Kind != KindAlreadyExists {
		t.Errorf("dir_create existing kind = %q, want %q", got.Kind, KindAlreadyExists)
	}

	top := filepath.Join(dir, "x")
	if got := one(t, domain.RequestData{Type: domain.ReqRemove, Path: top}); got.Type != domain.ResError {
		t.Error("remove of non-empty dir without all should fail")
	}
	if got := one(t, domain.RequestData{Type: domain.ReqRemove, Path: top, All: true}); got.Type != domain.ResOk {
		t.Errorf("remove all = %s (%s)", got.Type, got.Description)
	}
	if got := one(t, domain.RequestData{Type: domain.ReqRemove, Path: top, All: true}); got.Kind != KindNotFound {
		t.Errorf("remove missing kind = %q, want %q", got.Kind, KindNotFound)
	}
}

func TestCopyRenameExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "f"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "copy")
	if got := one(t, domain.RequestData{Type: domain.ReqCopy, Path: src, Dst: dst}); got.Type != domain.ResOk {
		t.Fatalf("copy dir = %s (%s)", got.Type, got.Description)
	}
	if b, err := os.ReadFile(filepath.Join(dst, "sub", "f")); err != nil || string(b) != "data" {
		t.Errorf("copied file = %q, %v", b, err)
	}
	if got := one(t, domain.RequestData{Type: domain.ReqCopy, Path: src, Dst: filepath.Join(src, "inner")}); got.Kind != KindInvalid {
		t.Errorf("copy into itself kind = %q, want %q", got.Kind, KindInvalid)
	}

	moved := filepath.Join(dir, "new", "place")
	if got := one(t, domain.RequestData{Type: domain.ReqRename, Path: dst, Dst: moved, CreateParents: true}); got.Type != domain.ResOk {
		t.Fatalf("rename = %s (%s)", got.Type, got.Description)
	}

	tests := []struct {
		path string
		want bool
	}{
		{moved, true},
		{dst, false},
		{filepath.Join(moved, "sub", "f"), true},
	}
	for _, tt := range tests {
		got := one(t, domain.RequestData{Type: domain.ReqExists, Path: tt.path})
		if got.Type != domain.ResExists || got.Exists != tt.want {
			t.Errorf("exists(%s) = %s/%v, want %v", tt.path, got.Type, got.Exists, tt.want)
		}
	}
}

func TestMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("12345"), 0o444); err != nil {
		t.Fatal(err)
	}

	got := one(t, domain.RequestData{Type: domain.ReqMetadata, Path: path})
	if got.Type != domain.ResMetadata || got.Metadata == nil {
		t.Fatalf("metadata = %s (%s)", got.Type, got.Description)
	}
	m := got.Metadata
	if m.FileType != domain.FileTypeFile || m.Len != 5 || !m.ReadOnly {
		t.Errorf("metadata = %+v", m)
	}
	if time.Since(time.UnixMilli(m.Modified)) > time.Minute {
		t.Errorf("modified = %d, too old", m.Modified)
	}

	got = one(t, domain.RequestData{Type: domain.ReqMetadata, Path: dir})
	if got.Metadata == nil || got.Metadata.FileType != domain.FileTypeDir {
		t.Errorf("dir metadata = %+v", got.Metadata)
	}
}

func TestSystemInfo(t *testing.T) {
	got := one(t, domain.RequestData{Type: domain.ReqSystemInfo})
	if got.Type != domain.ResSystemInfo || got.System == nil {
		t.Fatalf("system_info = %s (%s)", got.Type, got.Description)
	}
	if got.System.OS != runtime.GOOS || got.System.Arch != runtime.GOARCH {
		t.Errorf("system = %+v", got.System)
	}
	if got.System.MainSep != string(filepath.Separator) || got.System.CurrentDir == "" {
		t.Errorf("system = %+v", got.System)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{os.ErrNotExist, KindNotFound},
		{&os.PathError{Op: "open", Path: "x", Err: os.ErrPermission}, KindPermissionDenied},
		{os.ErrExist, KindAlreadyExists},
		{errMissingField, KindInvalid},
		{errTooLarge, KindInvalid},
		{errProcessNotFound, KindNotFound},
		{domain.ErrUnsupportedRequest.WithDetails("x"), KindUnsupported},
		{errors.New("boom"), KindOther},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
