// Command fixturemock replays recorded request/response fixtures against a
// service under test while standing in for the services it depends on.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		var fail errSuiteFailed
		if !errors.As(err, &fail) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
