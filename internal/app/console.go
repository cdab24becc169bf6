package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/MrWong99/pointread/internal/practice"
	"github.com/MrWong99/pointread/pkg/correctness"
)

// command is one console action. A nil run prints the help.
type command struct {
	names []string
	help  string
	run   func(a *App, ctx context.Context) error
}

// errQuit ends the console loop.
var errQuit = errors.New("quit")

var commands = []command{
	{[]string{"n", "next"}, "load another sentence", (*App).next},
	{[]string{"r", "record"}, "start recording", func(a *App, ctx context.Context) error { return a.ctrl.StartRecording(ctx) }},
	{[]string{"s", "stop"}, "stop recording", func(a *App, ctx context.Context) error { return a.ctrl.StopRecording(ctx) }},
	{[]string{"c", "check"}, "score the last recording", (*App).submit},
	{[]string{"p", "play"}, "play the sentence", func(a *App, ctx context.Context) error { return a.ctrl.PlaySample(ctx) }},
	{[]string{"v", "view"}, "show the sentence again", func(*App, context.Context) error { return nil }},
	{[]string{"h", "help", "?"}, "show this help", nil},
	{[]string{"q", "quit"}, "quit", func(*App, context.Context) error { return errQuit }},
}

func lookup(name string) (command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range commands {
		if slices.Contains(c.names, name) {
			return c, true
		}
	}
	return command{}, false
}

// Run loads the first sentence and reads commands from in until "quit",
// EOF or ctx is done. A failed first sentence is shown, not returned; "next"
// retries it.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	if err := a.ctrl.Init(ctx); err != nil {
		a.log.Warn("could not load the first sentence", "err", err)
	}
	a.help()
	a.render()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		fmt.Fprint(a.out, "> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := a.exec(ctx, line); errors.Is(err, errQuit) {
				return nil
			}
		}
	}
}

// exec runs one console line and renders the result.
func (a *App) exec(ctx context.Context, line string) error {
	cmd, ok := lookup(line)
	if !ok {
		fmt.Fprintf(a.out, "  unknown command %q, type h for help\n", strings.TrimSpace(line))
		return nil
	}
	if cmd.run == nil {
		a.help()
		return nil
	}
	err := cmd.run(a, ctx)
	switch {
	case errors.Is(err, errQuit):
		return err
	case err != nil:
		a.log.Debug("command failed", "command", cmd.names[1], "err", err)
		if msg := a.message(err); msg != "" {
			fmt.Fprintf(a.out, "  %s\n", msg)
		}
	}
	a.render()
	return nil
}

// next loads another sentence, or retries the first one after a failed Init.
func (a *App) next(ctx context.Context) error {
	if a.ctrl.View().Sentence.Text == "" {
		return a.ctrl.Init(ctx)
	}
	return a.ctrl.Next(ctx)
}

// submit waits for a running warm-up before scoring.
func (a *App) submit(ctx context.Context) error {
	if a.ctrl.View().WarmingUp {
		fmt.Fprintln(a.out, "  waiting for the scoring service to warm up...")
		select {
		case <-a.ctrl.WarmupDone():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return a.ctrl.Submit(ctx)
}

// message maps a command error to console text. Failures the view already
// shows map to "".
func (a *App) message(err error) string {
	switch {
	case errors.Is(err, practice.ErrNoRecording):
		return "record an attempt first (r, then s)"
	case errors.Is(err, practice.ErrSubmissionInFlight):
		return "a recording is already being scored"
	case errors.Is(err, practice.ErrStaleResult):
		return "the sentence changed before the score arrived"
	case errors.Is(err, practice.ErrInvalidState):
		return "not now: " + strings.TrimPrefix(err.Error(), practice.ErrInvalidState.Error()+": ")
	case errors.Is(err, practice.ErrNoPlayback):
		return "playback is not available"
	case a.ctrl.View().Error != "":
		return ""
	default:
		return err.Error()
	}
}

func (a *App) help() {
	fmt.Fprintln(a.out, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(a.out, "  %-10s %s\n", strings.Join(c.names[:min(2, len(c.names))], ", "), c.help)
	}
}

// render prints the current view.
func (a *App) render() {
	v := a.ctrl.View()
	w := a.out

	if v.Sentence.Text != "" {
		text := correctness.Plain(v.Words)
		if a.color {
			text = correctness.ANSI(v.Words)
		}
		fmt.Fprintf(w, "\n  %s\n", text)
		if v.Sentence.IPA != "" {
			fmt.Fprintf(w, "  /%s/\n", v.Sentence.IPA)
		}
		if v.Sentence.Translation != "" {
			fmt.Fprintf(w, "  %s\n", v.Sentence.Translation)
		}
	}

	if v.HasScore {
		st := correctness.Summary(v.Words)
		fmt.Fprintf(w, "  score %d%%, %d of %d letters correct\n", v.Score, st.Correct, st.Total())
		hints := correctness.Hints(correctness.MatchWords(v.Result))
		for i := range len(v.Words) {
			if h, ok := hints[i]; ok {
				fmt.Fprintf(w, "    %s: %s\n", v.Words[i].Text, h)
			}
		}
	}

	status := v.State.String()
	switch {
	case v.Finalizing:
		status += ", finishing recording"
	case v.HasRecording && v.State != practice.Scored:
		status += ", recording ready"
	}
	if v.WarmingUp {
		status += ", scoring service warming up"
	}
	fmt.Fprintf(w, "  [%s]\n", status)

	if v.Notice != "" {
		fmt.Fprintf(w, "  note: %s\n", v.Notice)
	}
	if v.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", v.Error)
	}
}
