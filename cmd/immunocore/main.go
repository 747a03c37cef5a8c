// Command immunocore loads cell-count exports into a record store and reports
// responder versus non-responder immune-cell frequencies.
package main

import (
	"errors"
	"fmt"
	"os"

	"immunocore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		exitFunc(exitCode(err))
	}
}

// Exit codes by error class.
const (
	exitFailure     = 1
	exitBadFilter   = 2
	exitBadData     = 3
	exitUnavailable = 4
)

func exitCode(err error) int {
	var (
		filterErr    *domain.FilterError
		integrityErr *domain.DataIntegrityError
	)
	switch {
	case errors.As(err, &filterErr):
		return exitBadFilter
	case errors.As(err, &integrityErr):
		return exitBadData
	case errors.Is(err, domain.ErrStoreUnavailable):
		return exitUnavailable
	default:
		return exitFailure
	}
}
