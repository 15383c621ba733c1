package ir

import (
	"reflect"
)

// Property is a single key/value entry.
type Property struct {
	Key   string
	Value Value
}

// Properties is an ordered map of property values. It is copy-on-write:
// With, Without and Merge return new maps and never modify the receiver.
// The zero value is an empty map.
type Properties struct {
	entries []Property
}

// NewProperties builds a map from entries. A repeated key keeps the last
// value at the position of its first occurrence.
func NewProperties(entries ...Property) Properties {
	var p Properties
	for _, e := range entries {
		p = p.With(e.Key, e.Value)
	}
	return p
}

// Len returns the number of keys.
func (p Properties) Len() int {
	return len(p.entries)
}

func (p Properties) index(key string) int {
	for i, e := range p.entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

// Get returns the value for key.
func (p Properties) Get(key string) (Value, bool) {
	if i := p.index(key); i >= 0 {
		return p.entries[i].Value, true
	}
	return Value{}, false
}

// Has reports whether key is set.
func (p Properties) Has(key string) bool {
	return p.index(key) >= 0
}

// Keys returns the keys in order.
func (p Properties) Keys() []string {
	keys := make([]string, len(p.entries))
	for i, e := range p.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the entries in order.
func (p Properties) Entries() []Property {
	out := make([]Property, len(p.entries))
	copy(out, p.entries)
	return out
}

// Each calls fn for every entry in order.
func (p Properties) Each(fn func(key string, v Value)) {
	for _, e := range p.entries {
		fn(e.Key, e.Value)
	}
}

// With returns a copy with key set to v. An existing key keeps its position.
func (p Properties) With(key string, v Value) Properties {
	out := make([]Property, len(p.entries), len(p.entries)+1)
	copy(out, p.entries)
	if i := p.index(key); i >= 0 {
		out[i].Value = v
		return Properties{entries: out}
	}
	return Properties{entries: append(out, Property{Key: key, Value: v})}
}

// Without returns a copy with key removed.
func (p Properties) Without(key string) Properties {
	i := p.index(key)
	if i < 0 {
		return p
	}
	out := make([]Property, 0, len(p.entries)-1)
	out = append(out, p.entries[:i]...)
	out = append(out, p.entries[i+1:]...)
	return Properties{entries: out}
}

// Merge returns a copy of p extended with every key of other that p does not
// set. Keys already in p are never overwritten.
func (p Properties) Merge(other Properties) Properties {
	out := p
	for _, e := range other.entries {
		if !out.Has(e.Key) {
			out = out.With(e.Key, e.Value)
		}
	}
	return out
}

// Map returns a copy with every value replaced by fn's result.
func (p Properties) Map(fn func(key string, v Value) (Value, error)) (Properties, error) {
	if len(p.entries) == 0 {
		return p, nil
	}
	out := make([]Property, len(p.entries))
	for i, e := range p.entries {
		v, err := fn(e.Key, e.Value)
		if err != nil {
			return Properties{}, err
		}
		out[i] = Property{Key: e.Key, Value: v}
	}
	return Properties{entries: out}, nil
}

// Equal reports whether both maps hold the same entries in the same order.
func (p Properties) Equal(other Properties) bool {
	if len(p.entries) == 0 && len(other.entries) == 0 {
		return true
	}
	return reflect.DeepEqual(p.entries, other.entries)
}

// Interface returns the map as plain Go data for encoding.
func (p Properties) Interface() map[string]interface{} {
	out := make(map[string]interface{}, len(p.entries))
	for _, e := range p.entries {
		out[e.Key] = e.Value.Interface()
	}
	return out
}
