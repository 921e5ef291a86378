// Package obstree implements the observable state tree: a recursive tagged
// tree of dicts, lists, and scalars with per-mutation change signals, and
// the bidirectional mirror protocol that keeps a remote peer's copy in
// sync (§3, §4.1).
package obstree

import "fmt"

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindDict
	KindList
)

// Value is the tagged scalar union over {null, bool, integer, double,
// string, dict-ref, list-ref}. Integers are 64-bit signed, doubles are
// IEEE-754 double, strings are UTF-8.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	d      float64
	s      string
	dict   *Dict
	list   *List
}

func Null() Value              { return Value{kind: KindNull} }
func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func Int(i int64) Value        { return Value{kind: KindInt, i: i} }
func Double(d float64) Value   { return Value{kind: KindDouble, d: d} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func FromDict(d *Dict) Value   { return Value{kind: KindDict, dict: d} }
func FromList(l *List) Value   { return Value{kind: KindList, list: l} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) Bool() bool       { return v.b }
func (v Value) Int() int64       { return v.i }
func (v Value) Double() float64  { return v.d }
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindDouble:
		return fmt.Sprintf("%v", v.d)
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	default:
		return ""
	}
}
func (v Value) Dict() *Dict { return v.dict }
func (v Value) List() *List { return v.list }

// Equal performs the deep-equality comparison set(path,value) uses to
// decide whether a mutation is a no-op.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindDouble:
		return v.d == o.d
	case KindString:
		return v.s == o.s
	case KindDict:
		return v.dict.deepEqual(o.dict)
	case KindList:
		return v.list.deepEqual(o.list)
	}
	return false
}

// ToJSON converts a Value into a plain interface{} suitable for
// encoding/json, used both by the capture codec and the mirror protocol's
// serialized JSON values.
func (v Value) ToJSON() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindDouble:
		return v.d
	case KindString:
		return v.s
	case KindDict:
		out := make(map[string]interface{}, len(v.dict.order))
		for _, k := range v.dict.order {
			out[k] = v.dict.children[k].ToJSON()
		}
		return out
	case KindList:
		out := make([]interface{}, len(v.list.items))
		for i, item := range v.list.items {
			out[i] = item.ToJSON()
		}
		return out
	}
	return nil
}

// FromJSON builds a Value tree (with owned Dict/List collections, no parent
// yet) from a decoded encoding/json value.
func FromJSON(j interface{}) Value {
	switch t := j.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Double(t)
	case int64:
		return Int(t)
	case string:
		return String(t)
	case map[string]interface{}:
		d := NewDict()
		for k, v := range t {
			d.setNoSignal(k, FromJSON(v))
		}
		return FromDict(d)
	case []interface{}:
		l := NewList()
		for _, v := range t {
			l.items = append(l.items, FromJSON(v))
		}
		return FromList(l)
	default:
		return Null()
	}
}
