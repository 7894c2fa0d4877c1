package models

import (
	"bytes"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Metadata maps Zotero field names to values in first-seen order.
type Metadata struct {
	om *orderedmap.OrderedMap[string, string]
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{om: orderedmap.New[string, string]()}
}

func (m *Metadata) ensure() {
	if m.om == nil {
		m.om = orderedmap.New[string, string]()
	}
}

// Set stores value under field, keeping the field's original position when
// it already exists.
func (m *Metadata) Set(field, value string) {
	m.ensure()
	m.om.Set(field, value)
}

// Get returns the value stored under field.
func (m *Metadata) Get(field string) (string, bool) {
	if m == nil || m.om == nil {
		return "", false
	}
	return m.om.Get(field)
}

// Has reports whether field has been set.
func (m *Metadata) Has(field string) bool {
	_, ok := m.Get(field)
	return ok
}

// Lookup implements Record.
func (m *Metadata) Lookup(subkey string) (string, bool) {
	return m.Get(subkey)
}

// Len returns the number of fields.
func (m *Metadata) Len() int {
	if m == nil || m.om == nil {
		return 0
	}
	return m.om.Len()
}

// Fields returns the field names in insertion order.
func (m *Metadata) Fields() []string {
	if m == nil || m.om == nil {
		return nil
	}
	out := make([]string, 0, m.om.Len())
	for p := m.om.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// MarshalJSON encodes the fields as a JSON object in insertion order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	if m == nil || m.om == nil {
		return []byte("{}"), nil
	}
	return m.om.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, preserving its key order.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	m.om = orderedmap.New[string, string]()
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	return m.om.UnmarshalJSON(data)
}
