package mqtt

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

// ToStruct converts a Document to protobuf Struct. Numbers become
// doubles, integers beyond 2^53 lose precision.
func ToStruct(d *doc.Document) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, d.Len())}
	d.Range(func(key string, v doc.Value) bool {
		s.Fields[key] = toValue(v)
		return true
	})
	return s
}

func toValue(v doc.Value) *structpb.Value {
	switch v.Kind() {
	case doc.KindBool:
		b, _ := v.AsBool()
		return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: b}}
	case doc.KindInt, doc.KindUint, doc.KindFloat:
		f, _ := v.AsFloat()
		return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: f}}
	case doc.KindString:
		str, _ := v.AsString()
		return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: str}}
	case doc.KindMap:
		m, _ := v.AsMap()
		return &structpb.Value{Kind: &structpb.Value_StructValue{StructValue: ToStruct(m)}}
	case doc.KindArray:
		items, _ := v.AsArray()
		list := &structpb.ListValue{Values: make([]*structpb.Value, len(items))}
		for n, item := range items {
			list.Values[n] = toValue(item)
		}
		return &structpb.Value{Kind: &structpb.Value_ListValue{ListValue: list}}
	}
	return &structpb.Value{Kind: &structpb.Value_NullValue{}}
}

// FromStruct converts a protobuf Struct to a Document with keys sorted.
// Integral numbers become integers.
func FromStruct(s *structpb.Struct) (*doc.Document, error) {
	d := doc.New()
	keys := make([]string, 0, len(s.GetFields()))
	for key := range s.GetFields() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		v, err := fromValue(s.Fields[key])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		d.Set(key, v)
	}
	return d, nil
}

func fromValue(v *structpb.Value) (doc.Value, error) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue, nil:
		return doc.Nil(), nil
	case *structpb.Value_BoolValue:
		return doc.Bool(kind.BoolValue), nil
	case *structpb.Value_NumberValue:
		return fromNumber(kind.NumberValue), nil
	case *structpb.Value_StringValue:
		return doc.String(kind.StringValue), nil
	case *structpb.Value_StructValue:
		m, err := FromStruct(kind.StructValue)
		if err != nil {
			return doc.Nil(), err
		}
		return doc.Map(m), nil
	case *structpb.Value_ListValue:
		items := make([]doc.Value, len(kind.ListValue.GetValues()))
		for n, item := range kind.ListValue.GetValues() {
			val, err := fromValue(item)
			if err != nil {
				return doc.Nil(), err
			}
			items[n] = val
		}
		return doc.Array(items...), nil
	default:
		return doc.Nil(), fmt.Errorf("%w: %T", doc.ErrUnsupportedType, kind)
	}
}

func fromNumber(f float64) doc.Value {
	if f == math.Trunc(f) && math.Abs(f) <= 1<<53 {
		return doc.Int(int64(f))
	}
	return doc.Float(f)
}

// Marshal encodes a Document as the relay payload.
func Marshal(d *doc.Document) ([]byte, error) {
	return proto.Marshal(ToStruct(d))
}

// Unmarshal decodes a relay payload.
func Unmarshal(payload []byte) (*doc.Document, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	return FromStruct(&s)
}
