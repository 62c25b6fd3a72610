package host

import (
	"cmp"
	"fmt"
	"iter"
	"reflect"
	"slices"

	"github.com/spf13/cast"
)

// UnknownCount marks a loop over an iterable whose size is not known upfront.
const UnknownCount = -1

// Loop is the iteration state bound to $loop inside foreach bodies.
type Loop struct {
	Index     int
	Iteration int
	Count     int
	Depth     int
	Parent    *Loop
}

// NewLoop creates the state for a loop nested inside parent (which may be nil).
func NewLoop(count int, parent *Loop) *Loop {
	depth := 1
	if parent != nil {
		depth = parent.Depth + 1
	}
	return &Loop{Index: -1, Iteration: 0, Count: count, Depth: depth, Parent: parent}
}

// Tick advances the loop by one iteration.
func (l *Loop) Tick() {
	l.Index++
	l.Iteration++
}

func (l *Loop) First() bool { return l.Index == 0 }

// Last is always false when the count is unknown.
func (l *Loop) Last() bool {
	return l.Count != UnknownCount && l.Index == l.Count-1
}

func (l *Loop) Even() bool { return l.Iteration%2 == 0 }

func (l *Loop) Odd() bool { return l.Iteration%2 == 1 }

// Remaining returns the iterations left, or UnknownCount.
func (l *Loop) Remaining() int {
	if l.Count == UnknownCount {
		return UnknownCount
	}
	return l.Count - l.Iteration
}

// Vars is the value templates see as $loop.
func (l *Loop) Vars() map[string]any {
	if l == nil {
		return nil
	}
	vars := map[string]any{
		"index":     l.Index,
		"iteration": l.Iteration,
		"remaining": l.Remaining(),
		"count":     l.Count,
		"first":     l.First(),
		"last":      l.Last(),
		"even":      l.Even(),
		"odd":       l.Odd(),
		"depth":     l.Depth,
		"parent":    nil,
	}
	if l.Parent != nil {
		vars["parent"] = l.Parent.Vars()
	}
	return vars
}

// iterate returns the number of items (or UnknownCount) and a sequence over
// v. Maps are walked in sorted key order so output is deterministic.
func iterate(v any) (int, iter.Seq2[any, any], error) {
	if v == nil {
		return 0, func(func(any, any) bool) {}, nil
	}
	if seq, ok := v.(iter.Seq[any]); ok {
		return UnknownCount, func(yield func(any, any) bool) {
			i := 0
			for item := range seq {
				if !yield(i, item) {
					return
				}
				i++
			}
		}, nil
	}
	if seq, ok := v.(iter.Seq2[any, any]); ok {
		return UnknownCount, seq, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		return n, func(yield func(any, any) bool) {
			for i := range n {
				if !yield(i, rv.Index(i).Interface()) {
					return
				}
			}
		}, nil
	case reflect.Map:
		keys := rv.MapKeys()
		slices.SortFunc(keys, compareKeys)
		return len(keys), func(yield func(any, any) bool) {
			for _, k := range keys {
				if !yield(k.Interface(), rv.MapIndex(k).Interface()) {
					return
				}
			}
		}, nil
	case reflect.Chan:
		return UnknownCount, func(yield func(any, any) bool) {
			i := 0
			for {
				item, ok := rv.Recv()
				if !ok || !yield(i, item.Interface()) {
					return
				}
				i++
			}
		}, nil
	case reflect.Func:
		if rv.Type().CanSeq2() {
			return UnknownCount, func(yield func(any, any) bool) {
				for k, item := range rv.Seq2() {
					if !yield(k.Interface(), item.Interface()) {
						return
					}
				}
			}, nil
		}
		if rv.Type().CanSeq() {
			return UnknownCount, func(yield func(any, any) bool) {
				i := 0
				for item := range rv.Seq() {
					if !yield(i, item.Interface()) {
						return
					}
					i++
				}
			}, nil
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return 0, func(func(any, any) bool) {}, nil
		}
	}
	return 0, nil, fmt.Errorf("cannot iterate over %T", v)
}

func compareKeys(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	}
	return cmp.Compare(cast.ToString(a.Interface()), cast.ToString(b.Interface()))
}
