package rooms

import (
	"errors"
	"fmt"
)

// Alias maps a recognised spelling of a room to its canonical key.
type Alias struct {
	Pattern   string `yaml:"pattern" json:"pattern"`
	Canonical string `yaml:"canonical" json:"canonical"`
}

// AliasTable is an ordered alias list. The first matching entry wins.
type AliasTable struct {
	entries []Alias
	// normalized patterns, same order as entries
	keys []string
}

func NewAliasTable(aliases []Alias) (*AliasTable, error) {
	t := &AliasTable{
		entries: make([]Alias, 0, len(aliases)),
		keys:    make([]string, 0, len(aliases)),
	}
	for i, a := range aliases {
		key := Normalize(a.Pattern)
		if key == "" {
			return nil, fmt.Errorf("alias %d: empty pattern", i)
		}
		if Normalize(a.Canonical) == "" {
			return nil, fmt.Errorf("alias %q: empty canonical name", a.Pattern)
		}
		t.entries = append(t.entries, a)
		t.keys = append(t.keys, key)
	}
	return t, nil
}

// MustAliasTable is NewAliasTable for statically known tables.
func MustAliasTable(aliases ...Alias) *AliasTable {
	t, err := NewAliasTable(aliases)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns the canonical room key for a free-text name. Unmatched input
// falls back to its normalized form.
func (t *AliasTable) Resolve(name string) string {
	key := Normalize(name)
	if t == nil {
		return key
	}
	for i, k := range t.keys {
		if k == key {
			return Normalize(t.entries[i].Canonical)
		}
	}
	return key
}

func (t *AliasTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

var ErrRoomNotFound = errors.New("room not found")
