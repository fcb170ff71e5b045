// Package extract locates the RTMP server and stream key inside an arbitrary
// JSON document returned by the streaming platform.
package extract

// Kind identifies the shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Value is a parsed JSON value. The set of implementations is closed:
// *Object, *Array, String, Number, Bool and Null.
type Value interface {
	Kind() Kind
	sealed()
}

// Member is one key/value pair of an Object.
type Member struct {
	Key   string
	Value Value
}

// Object keeps its members in document order, duplicates included.
type Object struct {
	Members []Member
}

// Array is an ordered list of values.
type Array struct {
	Elems []Value
}

type (
	String string
	// Number keeps the literal text of a JSON number.
	Number string
	Bool   bool
	Null   struct{}
)

func (*Object) Kind() Kind { return KindObject }
func (*Array) Kind() Kind  { return KindArray }
func (String) Kind() Kind  { return KindString }
func (Number) Kind() Kind  { return KindNumber }
func (Bool) Kind() Kind    { return KindBool }
func (Null) Kind() Kind    { return KindNull }

func (*Object) sealed() {}
func (*Array) sealed()  {}
func (String) sealed()  {}
func (Number) sealed()  {}
func (Bool) sealed()    {}
func (Null) sealed()    {}

// Get returns the value of the last member named key, mirroring how a JSON
// object with duplicate keys resolves.
func (o *Object) Get(key string) (Value, bool) {
	for i := len(o.Members) - 1; i >= 0; i-- {
		if o.Members[i].Key == key {
			return o.Members[i].Value, true
		}
	}
	return nil, false
}

// GetString returns the member named key when it holds a string.
func (o *Object) GetString(key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok
}

// Set appends a member. It exists for building documents in code.
func (o *Object) Set(key string, v Value) *Object {
	o.Members = append(o.Members, Member{Key: key, Value: v})
	return o
}
