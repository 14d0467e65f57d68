// Package vdf parses Valve's nested key/value text format, used by
// libraryfolders.vdf and appmanifest_<id>.acf files.
//
// The parser preserves declaration order, tolerates truncated input and
// reports unrecoverable input as a *ParseError together with whatever it
// managed to parse before the failure.
//
// Basic usage:
//
//	m, err := vdf.ParseFile("/home/user/.local/share/Steam/steamapps/libraryfolders.vdf")
//	if err != nil && m == nil {
//	    return err
//	}
//	folders := m.Map("libraryfolders")
package vdf

import "strings"

// Value is either a string or a nested *Map.
type Value struct {
	str string
	m   *Map
}

// IsMap reports whether the value is a nested mapping.
func (v Value) IsMap() bool {
	return v.m != nil
}

// String returns the scalar value, or "" for nested mappings.
func (v Value) String() string {
	return v.str
}

// Map returns the nested mapping, or nil for scalar values.
func (v Value) Map() *Map {
	return v.m
}

// Entry is a single key/value pair in declaration order.
type Entry struct {
	Key   string
	Value Value
}

// Map is an ordered mapping of keys to string values or nested maps.
// Lookups are case-insensitive because Valve is inconsistent about key case
// ("StateFlags" vs "stateflags") between client versions.
type Map struct {
	entries []Entry
	index   map[string]int
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{index: make(map[string]int)}
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Keys returns keys in declaration order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the entries in declaration order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Get returns the value for a key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	i, ok := m.index[strings.ToLower(key)]
	if !ok {
		return Value{}, false
	}
	return m.entries[i].Value, true
}

// String returns the scalar value for a key, or "" if absent or nested.
func (m *Map) String(key string) string {
	v, _ := m.Get(key)
	return v.String()
}

// Map returns the nested map for a key, or nil if absent or scalar.
func (m *Map) Map(key string) *Map {
	v, _ := m.Get(key)
	return v.Map()
}

// Path walks nested maps and returns the value at the end of the key path.
func (m *Map) Path(keys ...string) (Value, bool) {
	cur := m
	for i, k := range keys {
		v, ok := cur.Get(k)
		if !ok {
			return Value{}, false
		}
		if i == len(keys)-1 {
			return v, true
		}
		if !v.IsMap() {
			return Value{}, false
		}
		cur = v.Map()
	}
	return Value{}, false
}

// SetString sets a scalar value. A repeated key keeps its original position
// and takes the new value.
func (m *Map) SetString(key, value string) {
	if i, ok := m.index[strings.ToLower(key)]; ok {
		m.entries[i].Value = Value{str: value}
		return
	}
	m.append(key, Value{str: value})
}

// SetMap attaches a nested map. When the key already holds a map the new
// entries are merged into it, matching how Steam treats duplicate sections.
func (m *Map) SetMap(key string, child *Map) {
	if i, ok := m.index[strings.ToLower(key)]; ok {
		if existing := m.entries[i].Value.m; existing != nil {
			for _, e := range child.entries {
				if e.Value.m != nil {
					existing.SetMap(e.Key, e.Value.m)
				} else {
					existing.SetString(e.Key, e.Value.str)
				}
			}
			return
		}
		m.entries[i].Value = Value{m: child}
		return
	}
	m.append(key, Value{m: child})
}

func (m *Map) append(key string, v Value) {
	m.index[strings.ToLower(key)] = len(m.entries)
	m.entries = append(m.entries, Entry{Key: key, Value: v})
}
