// Command chapter-audio serves chapter narration generation and version control.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()

	err := cmd.Execute()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "chapter-audio exited with error: %v\n", err)
		}

		os.Exit(1)
	}
}
