package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/valpere/chaptran/internal/glossary"
)

// ErrAborted is returned when the operator rejects the seeded glossary.
var ErrAborted = errors.New("glossary review aborted by operator")

// Confirmer asks the operator to approve the seeded glossary. The glossary
// file at path has already been written and may be edited before answering.
type Confirmer interface {
	Confirm(ctx context.Context, candidates []glossary.Candidate, path string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, candidates []glossary.Candidate, path string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, candidates []glossary.Candidate, path string) (bool, error) {
	return f(ctx, candidates, path)
}

// AutoConfirm approves without asking.
var AutoConfirm Confirmer = ConfirmFunc(func(context.Context, []glossary.Candidate, string) (bool, error) {
	return true, nil
})

// PromptConfirmer lists the candidates on Out and reads a y/N answer from In.
// The read runs in its own goroutine; when ctx is cancelled first, that
// goroutine stays blocked on In until it returns, which is harmless for a
// process that exits right after.
type PromptConfirmer struct {
	Out io.Writer
	In  io.Reader
}

func (p PromptConfirmer) Confirm(ctx context.Context, candidates []glossary.Candidate, path string) (bool, error) {
	fmt.Fprintf(p.Out, "\nProposed glossary terms (%d):\n", len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(p.Out, "  %s: %s\n", c.Term, c.Definition)
	}
	fmt.Fprintf(p.Out, "\nThe glossary was saved to %s. Edit it now if needed.\n", path)
	fmt.Fprint(p.Out, "Continue with translation? [y/N]: ")

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(p.In).ReadString('\n')
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
