package main

import (
	"fmt"
	"os"

	"github.com/onkernel/fcctl/lib/firecracker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fcctl: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to a process status so scripts can tell the
// failure kinds apart.
func exitCode(err error) int {
	switch firecracker.KindOf(err) {
	case firecracker.KindNone:
		return 0
	case firecracker.KindValidation:
		return 2
	case firecracker.KindNetwork:
		return 3
	case firecracker.KindAPI:
		return 4
	case firecracker.KindRateLimited:
		return 5
	default:
		return 1
	}
}
