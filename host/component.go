package host

// ComponentCall is the payload of a `component` statement.
type ComponentCall struct {
	Name       string          `json:"name"`
	Attributes []CallAttribute `json:"attributes,omitempty"`
	Slot       string          `json:"slot,omitempty"`
	Slots      []CallSlot      `json:"slots,omitempty"`
	Lazy       bool            `json:"lazy,omitempty"`
}

// CallAttribute is an attribute as written on the component tag. Expression
// values are template expressions evaluated in the caller's scope.
type CallAttribute struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Expression bool   `json:"expression,omitempty"`
}

// CallSlot is a named slot with its compiled body.
type CallSlot struct {
	Name       string          `json:"name"`
	Content    string          `json:"content"`
	Attributes []CallAttribute `json:"attributes,omitempty"`
}

// Invocation is a component call with attributes evaluated and slots
// rendered in the caller's scope.
type Invocation struct {
	Name       string
	Attributes *AttributeBag
	Slot       *Slot
	Slots      []NamedSlot
	Lazy       bool
}

// NamedSlot pairs a slot with its name.
type NamedSlot struct {
	Name string
	Slot *Slot
}
