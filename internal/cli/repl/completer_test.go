package repl

import (
	"reflect"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestCompleter(t *testing.T) {
	c := NewCompleter([]*cli.Command{
		{
			Name: "fs",
			Subcommands: []*cli.Command{
				{Name: "read", Aliases: []string{"cat"}},
				{Name: "rm"},
			},
		},
		{Name: "proc", Subcommands: []*cli.Command{{Name: "run"}}},
	})

	tests := []struct {
		prefix string
		want   []string
	}{
		{"fs ", []string{"fs cat", "fs read", "fs rm"}},
		{"fs r", []string{"fs read", "fs rm"}},
		{"pro", []string{"proc", "proc run"}},
		{"ex", []string{"exit"}},
		{"zzz", nil},
	}
	for _, tt := range tests {
		if got := c.Complete(tt.prefix); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Complete(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}

	for _, name := range []string{"fs", "proc", "exit", "history"} {
		if !c.Known(name) {
			t.Errorf("Known(%q) = false", name)
		}
	}
	if c.Known("read") {
		t.Error("Known(read) = true for a subcommand")
	}
}

func TestCompleter_Suggest(t *testing.T) {
	c := NewCompleter([]*cli.Command{{Name: "fs"}, {Name: "proc"}, {Name: "profile"}})

	tests := []struct {
		name string
		want []string
	}{
		{"prc", []string{"proc"}},
		{"fss", []string{"fs"}},
		{"histroy", []string{"history"}},
		{"completely-different", nil},
	}
	for _, tt := range tests {
		if got := c.Suggest(tt.name); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Suggest(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"fs", "fs", 0},
	}
	for _, tt := range tests {
		if got := distance(tt.a, tt.b); got != tt.want {
			t.Errorf("distance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
