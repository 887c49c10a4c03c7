package main

import (
	"errors"
	"os"
)

// exitPartial is the exit status when every batch was sent but the server
// refused some of the records.
const exitPartial = 2

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errPartialUpload) {
			os.Exit(exitPartial)
		}

		exitOnError(err)
	}
}
