package doc

import "strconv"

// Entry is a key/value pair of a Document.
type Entry struct {
	Key   string
	Value Value
}

// Document is an insertion-ordered mapping of string keys to Values.
// Documents are small, lookups are linear.
type Document struct {
	entries []Entry
}

// New creates an empty Document.
func New() *Document {
	return &Document{}
}

// Len returns the number of entries.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Set sets the value for key, replacing an existing one in place.
func (d *Document) Set(key string, v Value) *Document {
	for i := range d.entries {
		if d.entries[i].Key == key {
			d.entries[i].Value = v
			return d
		}
	}
	d.entries = append(d.entries, Entry{Key: key, Value: v})
	return d
}

// SetIndex sets the value for an integer key, stored as its decimal string.
func (d *Document) SetIndex(index int, v Value) *Document {
	return d.Set(strconv.Itoa(index), v)
}

// Get returns the value for key.
func (d *Document) Get(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	for _, e := range d.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Delete removes key.
func (d *Document) Delete(key string) {
	for i, e := range d.entries {
		if e.Key == key {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return
		}
	}
}

// Keys returns keys in insertion order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, d.Len())
	d.Range(func(key string, _ Value) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Range calls fn for each entry in insertion order until fn returns false.
func (d *Document) Range(fn func(key string, v Value) bool) {
	if d == nil {
		return
	}
	for _, e := range d.entries {
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

// Equal compares two Documents value by value, ignoring key order.
func (d *Document) Equal(o *Document) bool {
	if d.Len() != o.Len() {
		return false
	}
	equal := true
	d.Range(func(key string, v Value) bool {
		ov, ok := o.Get(key)
		equal = ok && v.Equal(ov)
		return equal
	})
	return equal
}
