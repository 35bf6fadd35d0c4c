package doc

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// MarshalJSON implements json.Marshaler, keeping insertion order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	writeJSONMap(&buf, d)
	return buf.Bytes(), nil
}

// String renders the Document as JSON.
func (d *Document) String() string {
	out, _ := d.MarshalJSON()
	return string(out)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	writeJSONValue(&buf, v)
	return buf.Bytes(), nil
}

// String renders the Value as JSON.
func (v Value) String() string {
	out, _ := v.MarshalJSON()
	return string(out)
}

func writeJSONMap(buf *bytes.Buffer, d *Document) {
	buf.WriteByte('{')
	first := true
	d.Range(func(key string, v Value) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeJSONString(buf, key)
		buf.WriteByte(':')
		writeJSONValue(buf, v)
		return true
	})
	buf.WriteByte('}')
}

func writeJSONValue(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.bits != 0))
	case KindInt:
		buf.WriteString(strconv.FormatInt(int64(v.bits), 10))
	case KindUint:
		buf.WriteString(strconv.FormatUint(v.bits, 10))
	case KindFloat:
		f := math.Float64frombits(v.bits)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString("null")
			return
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case KindString:
		writeJSONString(buf, v.str)
	case KindMap:
		writeJSONMap(buf, v.m)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONValue(buf, item)
		}
		buf.WriteByte(']')
	default:
		buf.WriteString("null")
	}
}

func writeJSONString(buf *bytes.Buffer, s string) {
	out, _ := json.Marshal(s)
	buf.Write(out)
}

// FromJSON parses a JSON object. Keys are sorted since JSON objects are
// unordered. Integral numbers become Int, others Float.
func FromJSON(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrNotMap
	}
	return fromJSONObject(obj), nil
}

func fromJSONObject(obj map[string]interface{}) *Document {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	d := &Document{entries: make([]Entry, 0, len(keys))}
	for _, key := range keys {
		d.entries = append(d.entries, Entry{Key: key, Value: fromJSONValue(obj[key])})
	}
	return d
}

func fromJSONValue(v interface{}) Value {
	switch val := v.(type) {
	case bool:
		return Bool(val)
	case string:
		return String(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n)
		}
		if n, err := strconv.ParseUint(val.String(), 10, 64); err == nil {
			return Uint(n)
		}
		f, _ := val.Float64()
		return Float(f)
	case map[string]interface{}:
		return Map(fromJSONObject(val))
	case []interface{}:
		items := make([]Value, 0, len(val))
		for _, item := range val {
			items = append(items, fromJSONValue(item))
		}
		return Array(items...)
	}
	return Nil()
}
