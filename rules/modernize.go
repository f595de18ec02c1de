//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via
// ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// TimeSince detects manual duration computation against time.Now.
//
// Old pattern:
//
//	time.Now().Sub(start)
//
// New pattern:
//
//	time.Since(start)
func TimeSince(m dsl.Matcher) {
	m.Match(`time.Now().Sub($x)`).
		Report(`use time.Since($x) instead of time.Now().Sub($x)`).
		Suggest(`time.Since($x)`)
}

// WaitGroupModernize detects old WaitGroup patterns that can use the
// Go 1.25 wg.Go() method.
//
// Old pattern:
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    work()
//	}()
//
// New pattern:
//
//	wg.Go(work)
func WaitGroupModernize(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("Use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }() (Go 1.25+)").
		Suggest("$wg.Go(func() { $*_ })")

	m.Match(`go func() { $*_; $wg.Done() }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("Use $wg.Go(func() { ... }) instead of a manual Done() call (Go 1.25+)")
}

// SprintfConcat detects string concatenation routed through Sprintf for no
// reason.
func SprintfConcat(m dsl.Matcher) {
	m.Match(`fmt.Sprintf("%s%s", $a, $b)`).
		Where(m["a"].Type.Is("string") && m["b"].Type.Is("string")).
		Report(`use $a + $b instead of fmt.Sprintf`).
		Suggest(`$a + $b`)
}
