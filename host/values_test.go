package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	for _, v := range []any{nil, false, 0, 0.0, "", "0", HTML(""), []int{}, map[string]any{}, (*Loop)(nil)} {
		assert.False(t, Truthy(v), "%#v", v)
	}
	for _, v := range []any{true, 1, -2, 0.1, "a", "00", HTML("<b>"), []int{0}, map[string]int{"a": 0}, &Loop{}} {
		assert.True(t, Truthy(v), "%#v", v)
	}
}

func TestLooseEqual(t *testing.T) {
	assert.True(t, LooseEqual("1", 1))
	assert.True(t, LooseEqual(1, "1.0"))
	assert.True(t, LooseEqual("abc", HTML("abc")))
	assert.True(t, LooseEqual(true, "x"))
	assert.True(t, LooseEqual(nil, ""))
	assert.False(t, LooseEqual("a", "b"))
	assert.False(t, LooseEqual(2, "2a"))
}

func TestToStringAndEscape(t *testing.T) {
	assert.Equal(t, "1", ToString(true))
	assert.Equal(t, "", ToString(false))
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "3.5", ToString(3.5))
	assert.Equal(t, HTML("&lt;b&gt;&#39;"), Escape("<b>'"))
	assert.Equal(t, HTML("<b>"), Escape(HTML("<b>")))
	assert.Equal(t, HTML("x"), Escape(NewSlot(" x ", nil)))
}

func TestToMap(t *testing.T) {
	type user struct {
		Name  string
		email string
	}
	m, err := ToMap(user{Name: "Ann", email: "hidden"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Name": "Ann"}, m)

	m, err = ToMap(nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	_, err = ToMap(42)
	assert.Error(t, err)
}

func TestLoop(t *testing.T) {
	l := NewLoop(3, nil)
	l.Tick()
	assert.Equal(t, 0, l.Index)
	assert.Equal(t, 1, l.Iteration)
	assert.True(t, l.First())
	assert.False(t, l.Last())
	assert.True(t, l.Odd())
	assert.Equal(t, 2, l.Remaining())
	l.Tick()
	l.Tick()
	assert.True(t, l.Last())
	assert.True(t, l.Odd())
	assert.Equal(t, 0, l.Remaining())

	inner := NewLoop(UnknownCount, l)
	inner.Tick()
	assert.Equal(t, 2, inner.Depth)
	assert.False(t, inner.Last())
	assert.Equal(t, UnknownCount, inner.Remaining())

	vars := inner.Vars()
	assert.Equal(t, 1, vars["iteration"])
	parent, ok := vars["parent"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, parent["iteration"])
}

func collect(t *testing.T, v any) (int, []any, []any) {
	t.Helper()
	n, seq, err := iterate(v)
	require.NoError(t, err)
	var keys, values []any
	for k, item := range seq {
		keys = append(keys, k)
		values = append(values, item)
	}
	return n, keys, values
}

func TestIterate(t *testing.T) {
	n, keys, values := collect(t, []string{"a", "b"})
	assert.Equal(t, 2, n)
	assert.Equal(t, []any{0, 1}, keys)
	assert.Equal(t, []any{"a", "b"}, values)

	n, keys, values = collect(t, map[string]int{"b": 2, "a": 1, "c": 3})
	assert.Equal(t, 3, n)
	assert.Equal(t, []any{"a", "b", "c"}, keys)
	assert.Equal(t, []any{1, 2, 3}, values)

	ch := make(chan int, 2)
	ch <- 7
	ch <- 8
	close(ch)
	n, _, values = collect(t, ch)
	assert.Equal(t, UnknownCount, n)
	assert.Equal(t, []any{7, 8}, values)

	seq := func(yield func(int) bool) {
		for i := range 3 {
			if !yield(i * 10) {
				return
			}
		}
	}
	n, _, values = collect(t, seq)
	assert.Equal(t, UnknownCount, n)
	assert.Equal(t, []any{0, 10, 20}, values)

	n, _, values = collect(t, nil)
	assert.Equal(t, 0, n)
	assert.Empty(t, values)

	_, _, err := iterate(42)
	assert.Error(t, err)
}

func TestAttributeBag(t *testing.T) {
	bag := NewAttributeBag(
		Attr{Name: "class", Value: "mb-4"},
		Attr{Name: "disabled", Value: true},
		Attr{Name: "hidden", Value: false},
		Attr{Name: "title", Value: `a"b`},
	)
	assert.Equal(t, `class="mb-4" disabled title="a&#34;b"`, bag.ToHTML())
	assert.True(t, bag.Has("class", "title"))
	assert.False(t, bag.Has("class", "id"))
	assert.Equal(t, "x", bag.Get("id", "x"))
	assert.Equal(t, `class="mb-4"`, bag.Only("class").ToHTML())
	assert.Equal(t, `class="mb-4" disabled`, bag.Except([]string{"title", "hidden"}).ToHTML())

	merged := NewAttributeBag(Attr{Name: "class", Value: "mb-4"}, Attr{Name: "id", Value: "x"}).
		Merge(map[string]any{"class": "alert", "role": "alert"})
	assert.Equal(t, `class="alert mb-4" role="alert" id="x"`, merged.ToHTML())

	data := NewAttributeBag(Attr{Name: "data-id", Value: 1}, Attr{Name: "wire:model", Value: "x"})
	assert.Equal(t, `data-id="1"`, data.WhereStartsWith("data-").ToHTML())
}

func TestClassAndStyleLists(t *testing.T) {
	assert.Equal(t, "p-4 red", ClassList([]any{[]any{"p-4"}, []any{"bold", false}, []any{"red", true}}))
	assert.Equal(t, "a", ClassList(map[string]any{"a": true, "b": false}))
	assert.Equal(t, "color: red;", StyleList([]any{[]any{"color: red"}, []any{"display: none", false}}))
}

func TestSlot(t *testing.T) {
	s := NewSlot("\n  <b>hi</b>\n", nil)
	assert.Equal(t, "<b>hi</b>", s.ToHTML())
	assert.True(t, s.IsNotEmpty())
	assert.True(t, NewSlot("  ", nil).IsEmpty())
	assert.True(t, (*Slot)(nil).IsEmpty())
}
