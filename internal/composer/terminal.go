package composer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/afshinator/BatchSMS/internal/model"
)

// Terminal plays the role of the device's SMS composer on stdin/stdout: it
// prints the prepared message and waits for the operator to confirm the send
// or dismiss it. One prompt is open at a time.
type Terminal struct {
	in     *bufio.Reader
	out    io.Writer
	cancel func() error
}

type TerminalOption func(*Terminal)

// WithCancelRun adds a "c" answer to the prompt that aborts the whole run,
// not just the open composer.
func WithCancelRun(fn func() error) TerminalOption {
	return func(t *Terminal) {
		t.cancel = fn
	}
}

func NewTerminal(in io.Reader, out io.Writer, opts ...TerminalOption) *Terminal {
	t := &Terminal{in: bufio.NewReader(in), out: out}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Terminal) Compose(ctx context.Context, phone, text string) (model.ComposerOutcome, error) {
	prompt := "Send? [y/N]: "
	if t.cancel != nil {
		prompt = "Send? [y/N/c=cancel run]: "
	}
	fmt.Fprintf(t.out, "\n--- SMS composer ---\nTo:   %s\nText: %s\n", phone, text)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		fmt.Fprint(t.out, prompt)
		line, err := t.in.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return model.OutcomeDismissed, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			return model.OutcomeDismissed, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return model.OutcomeSent, nil
		case "c", "cancel":
			if t.cancel != nil {
				if err := t.cancel(); err != nil {
					return model.OutcomeDismissed, err
				}
			}
			return model.OutcomeDismissed, nil
		default:
			return model.OutcomeDismissed, nil
		}
	}
}
