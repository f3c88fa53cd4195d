package repl

import (
	"sort"
	"strings"

	"github.com/urfave/cli/v2"
)

var builtins = []string{"exit", "quit", "history", "help"}

// Completer knows the command tree of an app.
type Completer struct {
	commands []string
	top      map[string]bool
}

// NewCompleter collects command paths such as "fs read" from cmds.
func NewCompleter(cmds []*cli.Command) *Completer {
	c := &Completer{top: make(map[string]bool)}
	for _, b := range builtins {
		c.top[b] = true
		c.commands = append(c.commands, b)
	}
	var walk func(prefix string, cmds []*cli.Command)
	walk = func(prefix string, cmds []*cli.Command) {
		for _, cmd := range cmds {
			for _, name := range cmd.Names() {
				path := strings.TrimSpace(prefix + " " + name)
				c.commands = append(c.commands, path)
				if prefix == "" {
					c.top[name] = true
				}
				walk(path, cmd.Subcommands)
			}
		}
	}
	walk("", cmds)
	sort.Strings(c.commands)
	return c
}

// Complete returns the command paths starting with prefix.
func (c *Completer) Complete(prefix string) []string {
	var out []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			out = append(out, cmd)
		}
	}
	return out
}

// Known reports whether name is a top-level command or builtin.
func (c *Completer) Known(name string) bool {
	return c.top[name]
}

// Suggest returns top-level names within two edits of name.
func (c *Completer) Suggest(name string) []string {
	var out []string
	for top := range c.top {
		if distance(name, top) <= 2 {
			out = append(out, top)
		}
	}
	sort.Strings(out)
	return out
}

// distance is the Levenshtein distance between a and b.
func distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
