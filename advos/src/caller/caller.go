// Package caller dumps the Go call stack leading to a kernel panic.
// Carried from Biscuit's caller/caller.go; trimmed to Callerdump, the
// one piece kernel.Fatal actually calls — Biscuit's
// Distinct_caller_t deduplicated repeated panic sites across a long
// run, which this simulation's one-shot kernel.Fatal has no use for.
package caller

import (
	"fmt"
	"runtime"
)

// Callerdump prints the call stack starting at the given depth.
//
// Parameters:
//
//	start - stack frame to begin printing.
func Callerdump(start int) {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	fmt.Printf("%s", s)
}
