package internal

import "runtime"

// WorkerLimit returns n, or GOMAXPROCS when n is not positive.
func WorkerLimit(n int) int {
	if n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}
