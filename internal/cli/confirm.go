package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aqasim81/schemakick/internal/runner"
)

// stdinConfirm waits for a line on in after printing prompt to out. End
// of input counts as confirmation so piped runs do not hang.
func stdinConfirm(in io.Reader, out io.Writer) runner.ConfirmFunc {
	reader := bufio.NewReader(in)

	return func(ctx context.Context, prompt string) error {
		fmt.Fprintln(out, prompt)

		done := make(chan error, 1)

		go func() {
			_, err := reader.ReadString('\n')
			if errors.Is(err, io.EOF) {
				err = nil
			}
			done <- err
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		}
	}
}
