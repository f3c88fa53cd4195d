package handler

import (
	"bytes"
	"os"
	"os/exec"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/server/state"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests use /bin/sh")
	}
}

// waitDone collects process output until proc_done for id arrives.
func waitDone(t *testing.T, out *recorder, id uint64) (stdout, stderr []byte, done domain.ResponseData) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		for _, resp := range out.responses() {
			for _, d := range resp.Payload {
				if d.ProcID == id && d.Type == domain.ResProcDone {
					stdout, stderr = collect(out, id)
					return stdout, stderr, d
				}
			}
		}
		select {
		case <-out.notify:
		case <-deadline:
			t.Fatalf("process %d did not finish", id)
		}
	}
}

func collect(out *recorder, id uint64) (stdout, stderr []byte) {
	for _, resp := range out.responses() {
		for _, d := range resp.Payload {
			if d.ProcID != id {
				continue
			}
			switch d.Type {
			case domain.ResProcStdout:
				stdout = append(stdout, d.Data...)
			case domain.ResProcStderr:
				stderr = append(stderr, d.Data...)
			}
		}
	}
	return stdout, stderr
}

func TestProcRun_Output(t *testing.T) {
	skipWithoutShell(t)
	h := newTestHandler()
	st := state.New()
	out := newRecorder()

	resp := run(t, h, st, out, domain.RequestData{
		Type: domain.ReqProcRun,
		Cmd:  "/bin/sh",
		Args: []string{"-c", "echo out; echo err 1>&2; exit 3"},
	})
	start := resp.Payload[0]
	if start.Type != domain.ResProcStart || start.ProcID == 0 {
		t.Fatalf("proc_run = %s (%s)", start.Type, start.Description)
	}

	stdout, stderr, done := waitDone(t, out, start.ProcID)
	if string(stdout) != "out\n" || string(stderr) != "err\n" {
		t.Errorf("output = %q / %q", stdout, stderr)
	}
	if done.Success || done.Code == nil || *done.Code != 3 {
		t.Errorf("proc_done = success %v code %v, want false 3", done.Success, done.Code)
	}
	for _, r := range out.responses() {
		if r.OriginID != resp.OriginID {
			t.Errorf("output response origin = %d, want %d", r.OriginID, resp.OriginID)
		}
	}

	// The supervisor releases its hold after proc_done is queued.
	deadline := time.Now().Add(2 * time.Second)
	for out.holders() != 0 || st.ProcessCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("holders = %d, processes = %d after exit", out.holders(), st.ProcessCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProcRun_StdinAndList(t *testing.T) {
	skipWithoutShell(t)
	h := newTestHandler()
	st := state.New()
	out := newRecorder()

	start := run(t, h, st, out, domain.RequestData{Type: domain.ReqProcRun, Cmd: "/bin/sh", Args: []string{"-c", "read line; echo got $line"}}).Payload[0]
	if start.Type != domain.ResProcStart {
		t.Fatalf("proc_run = %s (%s)", start.Type, start.Description)
	}

	list := run(t, h, st, out, domain.RequestData{Type: domain.ReqProcList}).Payload[0]
	if len(list.Processes) != 1 || list.Processes[0].ID != start.ProcID || list.Processes[0].Cmd != "/bin/sh" {
		t.Errorf("proc_list = %+v", list.Processes)
	}

	in := run(t, h, st, out, domain.RequestData{Type: domain.ReqProcStdin, ProcID: start.ProcID, Text: "hi\n"}).Payload[0]
	if in.Type != domain.ResOk {
		t.Fatalf("proc_stdin = %s (%s)", in.Type, in.Description)
	}

	stdout, _, done := waitDone(t, out, start.ProcID)
	if !bytes.Equal(stdout, []byte("got hi\n")) || !done.Success {
		t.Errorf("stdout = %q, success = %v", stdout, done.Success)
	}
	if st.ProcessCount() != 0 {
		t.Errorf("ProcessCount() = %d after proc_done, want 0", st.ProcessCount())
	}
}

func TestProcKill(t *testing.T) {
	skipWithoutShell(t)
	h := newTestHandler()
	st := state.New()
	out := newRecorder()

	start := run(t, h, st, out, domain.RequestData{Type: domain.ReqProcRun, Cmd: "/bin/sh", Args: []string{"-c", "exec sleep 30"}}).Payload[0]
	if st.ProcessCount() != 1 {
		t.Fatalf("ProcessCount() = %d, want 1", st.ProcessCount())
	}

	kill := run(t, h, st, out, domain.RequestData{Type: domain.ReqProcKill, ProcID: start.ProcID}).Payload[0]
	if kill.Type != domain.ResOk {
		t.Fatalf("proc_kill = %s (%s)", kill.Type, kill.Description)
	}
	_, _, done := waitDone(t, out, start.ProcID)
	if done.Success || done.Code != nil {
		t.Errorf("killed process done = success %v code %v, want false nil", done.Success, done.Code)
	}

	missing := run(t, h, st, out, domain.RequestData{Type: domain.ReqProcKill, ProcID: 999}).Payload[0]
	if missing.Kind != KindNotFound {
		t.Errorf("proc_kill unknown kind = %q, want %q", missing.Kind, KindNotFound)
	}
}

func TestProcRun_CleanupKills(t *testing.T) {
	skipWithoutShell(t)
	h := newTestHandler()
	st := state.New()
	out := newRecorder()

	start := run(t, h, st, out, domain.RequestData{Type: domain.ReqProcRun, Cmd: "/bin/sh", Args: []string{"-c", "exec sleep 30"}}).Payload[0]
	if errs := st.CleanupClient("client"); len(errs) != 0 {
		t.Fatalf("CleanupClient() errors = %v", errs)
	}
	_, _, done := waitDone(t, out, start.ProcID)
	if done.Success {
		t.Error("process should not succeed after cleanup kill")
	}
	if st.Has("client") {
		t.Error("supervisor recreated client state after cleanup")
	}
}

func TestProcRun_StartFailure(t *testing.T) {
	out := newRecorder()
	got := run(t, newTestHandler(), state.New(), out, domain.RequestData{Type: domain.ReqProcRun, Cmd: "/definitely/not/here"}).Payload[0]
	if got.Type != domain.ResError || got.Kind != KindNotFound {
		t.Errorf("proc_run missing binary = %s/%s", got.Type, got.Kind)
	}
	if out.holders() != 0 {
		t.Errorf("holders = %d after failed start", out.holders())
	}
}

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("needs /proc/self/fd")
	}
	return len(entries)
}

func TestProcRun_FailureClosesPipes(t *testing.T) {
	before := openFDs(t)

	h := newTestHandler()
	for range 5 {
		run(t, h, state.New(), newRecorder(), domain.RequestData{Type: domain.ReqProcRun, Cmd: "/definitely/not/here"})

		// A closed queue fails before the child starts.
		closed := newRecorder()
		closed.closed = true
		req := domain.NewRequest("test", domain.RequestData{Type: domain.ReqProcRun, Cmd: "/bin/sh", Args: []string{"-c", "exit 0"}})
		if err := h.Process(testContext(), "client", state.New(), req, closed); err == nil {
			t.Fatal("Process() with a closed queue should fail")
		}
	}

	if after := openFDs(t); after != before {
		t.Errorf("open descriptors = %d, want %d", after, before)
	}
}

func TestProcess_KillAfterReap(t *testing.T) {
	skipWithoutShell(t)
	var groupKills atomic.Int32
	signalGroup = func(p *os.Process) error {
		groupKills.Add(1)
		return killTree(p)
	}
	t.Cleanup(func() { signalGroup = killTree })

	p := &process{id: 1, c: exec.Command("/bin/sh", "-c", "exec sleep 30")}
	isolate(p.c)
	if err := p.c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if groupKills.Load() != 1 {
		t.Fatalf("group kills = %d, want 1", groupKills.Load())
	}
	p.reap()

	if err := p.Kill(); err != nil {
		t.Errorf("Kill() after reap error = %v", err)
	}
	if groupKills.Load() != 1 {
		t.Errorf("group kills after reap = %d, want 1", groupKills.Load())
	}
}
