package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrNoInput is returned when input ends before the user confirms.
var ErrNoInput = errors.New("input closed before confirmation")

// Confirm writes message to out and blocks until a full line is read from in.
// The read keeps running in the background if ctx ends first.
func Confirm(ctx context.Context, in io.Reader, out io.Writer, message string) error {
	fmt.Fprint(out, message)

	done := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(in)
		if _, err := reader.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrNoInput
			}
			done <- err
			return
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// IsInteractive reports whether f is attached to a terminal
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
