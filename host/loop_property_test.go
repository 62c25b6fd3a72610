//go:build property

package host

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestLoopProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1357)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("first, last and parity agree with index and count", prop.ForAll(
		func(count int) bool {
			l := NewLoop(count, nil)
			for i := range count {
				l.Tick()
				if l.Index != i || l.Iteration != i+1 {
					return false
				}
				if l.First() != (i == 0) || l.Last() != (i == count-1) {
					return false
				}
				if l.Even() != (l.Iteration%2 == 0) || l.Odd() != (l.Iteration%2 == 1) {
					return false
				}
				if l.Remaining() != count-l.Iteration {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 300),
	))

	properties.Property("last is never true for unknown counts", prop.ForAll(
		func(ticks int) bool {
			l := NewLoop(UnknownCount, nil)
			for range ticks {
				l.Tick()
				if l.Last() {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 100),
	))

	properties.Property("depth follows nesting", prop.ForAll(
		func(levels int) bool {
			var l *Loop
			for i := range levels {
				l = NewLoop(1, l)
				if l.Depth != i+1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
