package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{"fs ls /tmp", []string{"fs", "ls", "/tmp"}, false},
		{"  fs   ls\t/tmp  ", []string{"fs", "ls", "/tmp"}, false},
		{`fs write "a b.txt" 'x "y"'`, []string{"fs", "write", "a b.txt", `x "y"`}, false},
		{`echo a\ b`, []string{"echo", "a b"}, false},
		{`say "he said \"hi\""`, []string{"say", `he said "hi"`}, false},
		{`empty ""`, []string{"empty", ""}, false},
		{`'no\escape'`, []string{`no\escape`}, false},
		{`"open`, nil, true},
		{`trailing\`, nil, true},
	}

	for _, tt := range tests {
		got, err := Split(tt.line)
		if tt.wantErr {
			if !errors.Is(err, ErrUnterminatedQuote) {
				t.Errorf("Split(%q) error = %v, want ErrUnterminatedQuote", tt.line, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Split(%q) error = %v", tt.line, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Split(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func testApp(calls *[][]string) *cli.App {
	record := func(c *cli.Context) error {
		*calls = append(*calls, append([]string{c.Command.Name}, c.Args().Slice()...))
		return nil
	}
	return &cli.App{
		Name: "remotely-cli",
		Commands: []*cli.Command{
			{
				Name: "fs",
				Subcommands: []*cli.Command{
					{Name: "read", Aliases: []string{"cat"}, Action: record},
					{Name: "ls", Action: record},
				},
			},
			{
				Name: "fail",
				Action: func(*cli.Context) error {
					return cli.Exit("boom", 3)
				},
			},
		},
	}
}

func runLines(t *testing.T, app *cli.App, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	r := New(app, strings.NewReader(input), &out)
	r.SetHistory(NewHistory("", 10))
	err := r.Run(context.Background())
	return out.String(), err
}

func TestRun_DispatchesCommands(t *testing.T) {
	var calls [][]string
	out, err := runLines(t, testApp(&calls), "fs read \"a b\"\n\nfs cat x\nexit\nfs ls ignored\n")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := [][]string{{"read", "a b"}, {"read", "x"}}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %q, want %q", calls, want)
	}
	if !strings.HasPrefix(out, "remotely> ") {
		t.Errorf("output = %q, want prompt", out)
	}
}

func TestRun_ErrorsDoNotStop(t *testing.T) {
	var calls [][]string
	out, err := runLines(t, testApp(&calls), "fail\nfss ls\n\"open\nfs ls /\n")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, want := range []string{"error: boom", `unknown command "fss", did you mean fs?`, "error: unterminated quote"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if len(calls) != 1 || calls[0][0] != "ls" {
		t.Errorf("calls = %q, want one ls", calls)
	}
}

func TestRun_History(t *testing.T) {
	var calls [][]string
	out, err := runLines(t, testApp(&calls), "fs ls a\nfs ls b\nhistory\n")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out, "   1  fs ls a\n") || !strings.Contains(out, "   2  fs ls b\n") {
		t.Errorf("history output = %q", out)
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	var calls [][]string
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	r := New(testApp(&calls), pr, &out)
	r.SetHistory(NewHistory("", 10))
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
