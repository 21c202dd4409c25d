package parser

import "fmt"

// Arity distinguishes prefix operators from infix ones. The same symbol may
// hold one entry of each, like '-'.
type Arity uint8

const (
	Unary Arity = iota + 1
	Binary
)

func (a Arity) String() string {
	if a == Unary {
		return "unary"
	}
	return "binary"
}

// DefaultBinaryPrecedence applies when @binary gives no precedence argument.
const DefaultBinaryPrecedence = 30

// Entry is one operator registration. Target is the function a user-defined
// operator lowers to ("unary!", "binary|"); built-ins leave it empty and are
// lowered directly.
type Entry struct {
	Symbol     string
	Arity      Arity
	Precedence int
	Target     string
}

type opKey struct {
	symbol string
	arity  Arity
}

// Table maps operator symbols to their parsing behavior. It is mutable
// during parsing: @unary/@binary definitions register entries that take
// effect for every later token of the same compilation. A Table is owned by
// a single goroutine and threaded explicitly, never shared package state.
type Table struct {
	entries map[opKey]Entry
	order   []opKey
}

// NewTable returns a table pre-populated with the built-in operators.
func NewTable() *Table {
	t := &Table{entries: make(map[opKey]Entry)}
	builtins := []Entry{
		{Symbol: "=", Arity: Binary, Precedence: 2},
		{Symbol: "or", Arity: Binary, Precedence: 5},
		{Symbol: "and", Arity: Binary, Precedence: 6},
		{Symbol: "<", Arity: Binary, Precedence: 10},
		{Symbol: ">", Arity: Binary, Precedence: 10},
		{Symbol: "+", Arity: Binary, Precedence: 20},
		{Symbol: "-", Arity: Binary, Precedence: 20},
		{Symbol: "*", Arity: Binary, Precedence: 40},
		{Symbol: "/", Arity: Binary, Precedence: 40},
		{Symbol: "-", Arity: Unary},
		{Symbol: "!", Arity: Unary},
		{Symbol: "not", Arity: Unary},
	}
	for _, e := range builtins {
		key := opKey{e.Symbol, e.Arity}
		t.entries[key] = e
		t.order = append(t.order, key)
	}
	return t
}

// Register adds a user operator. Re-registering the exact same entry is a
// no-op so a unit can be compiled twice into one session; anything else that
// collides is an incompatible redeclaration.
func (t *Table) Register(e Entry) error {
	key := opKey{e.Symbol, e.Arity}
	if old, ok := t.entries[key]; ok {
		if old == e {
			return nil
		}
		return fmt.Errorf("%s operator '%s' is already defined", e.Arity, e.Symbol)
	}
	t.entries[key] = e
	t.order = append(t.order, key)
	return nil
}

// Remove deletes a registration, undoing a definition that later failed.
func (t *Table) Remove(symbol string, arity Arity) {
	key := opKey{symbol, arity}
	if _, ok := t.entries[key]; !ok {
		return
	}
	delete(t.entries, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Lookup finds the entry for symbol at the given arity.
func (t *Table) Lookup(symbol string, arity Arity) (Entry, bool) {
	e, ok := t.entries[opKey{symbol, arity}]
	return e, ok
}

// Precedence returns the binding strength of symbol as a binary operator,
// or -1 when it is not one.
func (t *Table) Precedence(symbol string) int {
	if e, ok := t.entries[opKey{symbol, Binary}]; ok {
		return e.Precedence
	}
	return -1
}

// Entries lists all registrations in registration order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.entries[k])
	}
	return out
}
