package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"
)

// ErrUnterminatedQuote is returned by Split for an unbalanced quote.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// REPL reads command lines and runs them on a cli.App.
type REPL struct {
	app       *cli.App
	input     io.Reader
	output    io.Writer
	completer *Completer
	history   *History

	// Prompt returns the prompt printed before each line.
	Prompt func() string
}

// New creates a REPL running commands on app. app.ExitErrHandler is replaced
// so that a failing command does not exit the process.
func New(app *cli.App, in io.Reader, out io.Writer) *REPL {
	app.ExitErrHandler = func(*cli.Context, error) {}
	return &REPL{
		app:       app,
		input:     in,
		output:    out,
		completer: NewCompleter(app.Commands),
		history:   NewHistory(DefaultHistoryPath(), defaultHistorySize),
		Prompt:    func() string { return "remotely> " },
	}
}

// SetHistory replaces the history store.
func (r *REPL) SetHistory(h *History) {
	r.history = h
}

// Run reads lines until EOF, exit or quit, or until ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	_ = r.history.Load()
	defer func() { _ = r.history.Save() }()

	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		scanner := bufio.NewScanner(r.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(r.output, r.Prompt())

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.output)
			return ctx.Err()
		case err := <-readErr:
			fmt.Fprintln(r.output)
			return err
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.history.Add(line)

		args, err := Split(line)
		if err != nil {
			fmt.Fprintf(r.output, "error: %v\n", err)
			continue
		}
		switch args[0] {
		case "exit", "quit":
			return nil
		case "history":
			r.printHistory()
			continue
		}
		if err := r.execute(ctx, args); err != nil {
			fmt.Fprintf(r.output, "error: %v\n", err)
		}
	}
}

func (r *REPL) execute(ctx context.Context, args []string) error {
	if !r.completer.Known(args[0]) {
		msg := fmt.Sprintf("unknown command %q", args[0])
		if s := r.completer.Suggest(args[0]); len(s) > 0 {
			msg += fmt.Sprintf(", did you mean %s?", strings.Join(s, " or "))
		}
		return errors.New(msg)
	}
	return r.app.RunContext(ctx, append([]string{r.app.Name}, args...))
}

func (r *REPL) printHistory() {
	for i, entry := range r.history.Entries() {
		fmt.Fprintf(r.output, "%4d  %s\n", i+1, entry)
	}
}

// Split breaks a command line into arguments.
func Split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, ch := range line {
		switch {
		case escaped:
			cur.WriteRune(ch)
			escaped = false
		case ch == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				cur.WriteRune(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
			inArg = true
		case ch == ' ' || ch == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(ch)
			inArg = true
		}
	}
	if quote != 0 || escaped {
		return nil, ErrUnterminatedQuote
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
