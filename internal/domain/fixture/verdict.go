package fixture

import (
	"fmt"
	"strings"
	"time"
)

// Verdict is the outcome of running one fixture. Failures is empty iff the
// fixture passed.
type Verdict struct {
	Fixture    string
	PassedStep int // index of the step that passed, -1 otherwise
	Failures   []string
	Duration   time.Duration
}

// Passed reports whether some step succeeded.
func (v Verdict) Passed() bool { return len(v.Failures) == 0 }

// Report aggregates the verdicts of a run and the definitions that were
// declared but never invoked.
type Report struct {
	Verdicts  []Verdict
	Uncovered []string
}

// Passed reports whether every fixture passed and every definition was hit.
func (r Report) Passed() bool {
	for _, v := range r.Verdicts {
		if !v.Passed() {
			return false
		}
	}
	return len(r.Uncovered) == 0
}

// Failed returns the verdicts that did not pass.
func (r Report) Failed() []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if !v.Passed() {
			out = append(out, v)
		}
	}
	return out
}

// String renders the report for terminal output.
func (r Report) String() string {
	var sb strings.Builder
	failed := r.Failed()
	fmt.Fprintf(&sb, "%d fixtures, %d passed, %d failed, %d uncovered definitions\n",
		len(r.Verdicts), len(r.Verdicts)-len(failed), len(failed), len(r.Uncovered))
	for _, v := range failed {
		fmt.Fprintf(&sb, "FAIL %s\n", v.Fixture)
		for _, f := range v.Failures {
			fmt.Fprintf(&sb, "    %s\n", f)
		}
	}
	for _, u := range r.Uncovered {
		fmt.Fprintf(&sb, "UNCOVERED %s\n", u)
	}
	return sb.String()
}
