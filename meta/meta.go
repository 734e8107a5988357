// Package meta provides the ordered key/value stores shared by every tag
// decoder: a case-preserving multi-map for plain fields and a full-text list
// for language/description-qualified ID3v2 frames (COMM, USLT, ...).
package meta

import "strings"

// entry is one (name, value) pair in a MetadataMap. Name keeps its original
// case; lookups are case-insensitive.
type entry struct {
	name  string
	value string
}

// MetadataMap is an insertion-ordered multi-map. Keys are stored verbatim;
// duplicate keys are allowed and preserved in source order.
type MetadataMap struct {
	entries []entry
}

// NewMetadataMap returns an empty map ready to use.
func NewMetadataMap() *MetadataMap {
	return &MetadataMap{}
}

// Put appends a new (name, value) entry, preserving any existing entries
// under the same name.
func (m *MetadataMap) Put(name, value string) {
	m.entries = append(m.entries, entry{name, value})
}

// PutOrReplaceFirst replaces the value of the first entry matching name
// (case-insensitively), or appends a new entry if none exists.
func (m *MetadataMap) PutOrReplaceFirst(name, value string) {
	for i := range m.entries {
		if strings.EqualFold(m.entries[i].name, name) {
			m.entries[i].value = value
			return
		}
	}
	m.Put(name, value)
}

// GetFirst returns the value of the first entry matching name
// (case-insensitively), and whether one was found.
func (m *MetadataMap) GetFirst(name string) (string, bool) {
	for _, e := range m.entries {
		if strings.EqualFold(e.name, name) {
			return e.value, true
		}
	}
	return "", false
}

// GetAll returns the values of every entry matching name
// (case-insensitively), in source order.
func (m *MetadataMap) GetAll(name string) []string {
	var vals []string
	for _, e := range m.entries {
		if strings.EqualFold(e.name, name) {
			vals = append(vals, e.value)
		}
	}
	return vals
}

// ValueCount returns how many entries match name (case-insensitively).
func (m *MetadataMap) ValueCount(name string) int {
	n := 0
	for _, e := range m.entries {
		if strings.EqualFold(e.name, name) {
			n++
		}
	}
	return n
}

// Len returns the total number of entries, regardless of name.
func (m *MetadataMap) Len() int {
	return len(m.entries)
}

// Each calls fn for every entry in insertion order.
func (m *MetadataMap) Each(fn func(name, value string)) {
	for _, e := range m.entries {
		fn(e.name, e.value)
	}
}

// FullTextEntry is one (language, description, value) tuple carried by
// ID3v2 frames whose semantics need a language code and description in
// addition to a value: COMM, COMR, USLT, USLE.
type FullTextEntry struct {
	Language    string
	Description string
	Value       string
}

// FullTextMap is an ordered list of FullTextEntry, keyed conceptually by
// (Language, Description) but never deduplicated — every frame instance is
// kept in source order.
type FullTextMap struct {
	Entries []FullTextEntry
}

// Put appends a new full-text entry.
func (m *FullTextMap) Put(language, description, value string) {
	m.Entries = append(m.Entries, FullTextEntry{language, description, value})
}

// Get returns the value of the first entry whose language and description
// both match, and whether one was found.
func (m *FullTextMap) Get(language, description string) (string, bool) {
	for _, e := range m.Entries {
		if e.Language == language && e.Description == description {
			return e.Value, true
		}
	}
	return "", false
}

// Metadata is the byte range and key/value contents a single tag occupies in
// the source file. start_offset is inclusive, end_offset is exclusive of any
// padding belonging to the next tag.
type Metadata struct {
	StartOffset uint64
	EndOffset   uint64
	Map         *MetadataMap
}

// NewMetadata returns a Metadata with an initialized, empty Map.
func NewMetadata(start, end uint64) Metadata {
	return Metadata{StartOffset: start, EndOffset: end, Map: NewMetadataMap()}
}
