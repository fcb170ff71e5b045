package extract

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// MaxDepth bounds nesting for both parsing and walking.
const MaxDepth = 512

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrTooDeep is returned when a document nests deeper than MaxDepth.
var ErrTooDeep = errors.New("document exceeds maximum nesting depth")

// Parse decodes a JSON document into a Value, keeping object members in the
// order they appear. It streams through jsoniter's Iterator because decoding
// into map[string]any would lose that order.
func Parse(data []byte) (Value, error) {
	if !api.Valid(data) {
		return nil, errors.New("invalid JSON document")
	}

	iter := jsoniter.ParseBytes(api, data)
	p := &parser{iter: iter}
	v := p.value(0)
	if p.err != nil {
		return nil, p.err
	}
	if iter.Error != nil {
		return nil, errors.Wrap(iter.Error, "parse JSON document")
	}
	return v, nil
}

type parser struct {
	iter *jsoniter.Iterator
	err  error
}

func (p *parser) value(depth int) Value {
	if p.err != nil {
		return nil
	}
	if depth > MaxDepth {
		p.err = ErrTooDeep
		return nil
	}

	switch next := p.iter.WhatIsNext(); next {
	case jsoniter.ObjectValue:
		obj := &Object{}
		p.iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			v := p.value(depth + 1)
			if p.err != nil || it.Error != nil {
				return false
			}
			obj.Members = append(obj.Members, Member{Key: key, Value: v})
			return true
		})
		return obj

	case jsoniter.ArrayValue:
		arr := &Array{}
		p.iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			v := p.value(depth + 1)
			if p.err != nil || it.Error != nil {
				return false
			}
			arr.Elems = append(arr.Elems, v)
			return true
		})
		return arr

	case jsoniter.StringValue:
		return String(p.iter.ReadString())

	case jsoniter.NumberValue:
		return Number(p.iter.ReadNumber())

	case jsoniter.BoolValue:
		return Bool(p.iter.ReadBool())

	case jsoniter.NilValue:
		p.iter.ReadNil()
		return Null{}

	default:
		p.err = fmt.Errorf("unexpected JSON token (type %d)", next)
		return nil
	}
}
