package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exitError
		if !errors.As(err, &exitErr) || !exitErr.silent {
			fmt.Fprintln(os.Stderr, renderError(err))
		}
		os.Exit(exitCodeFor(err))
	}
}
