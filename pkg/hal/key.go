package hal

import (
	"fmt"
	"regexp"
	"strconv"
)

// KeyMode selects how a relation key addresses a link or embedded resource.
type KeyMode int

const (
	// KeyPlain selects the first element of the relation.
	KeyPlain KeyMode = iota
	// KeyIndexed selects the element at Index.
	KeyIndexed
	// KeySecondary selects the first element whose Field equals Value.
	KeySecondary
	// KeyAll selects the whole embedded array.
	KeyAll
)

func (m KeyMode) String() string {
	switch m {
	case KeyPlain:
		return "plain"
	case KeyIndexed:
		return "indexed"
	case KeySecondary:
		return "secondary"
	case KeyAll:
		return "all"
	}
	return fmt.Sprintf("KeyMode(%d)", int(m))
}

// Key is a parsed relation key: "rel", "rel[3]", "rel[name:foo]" or
// "rel[$all]".
type Key struct {
	Mode  KeyMode
	Rel   string
	Index int
	Field string
	Value string
}

var (
	secondaryKeyPattern = regexp.MustCompile(`^(.*)\[([^:\]]+):(.+)\]$`)
	allKeyPattern       = regexp.MustCompile(`^(.*)\[\$all\]$`)
	indexKeyPattern     = regexp.MustCompile(`^(.*)\[(\d+)\]$`)
)

// ParseKey parses the relation key micro-syntax.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return Key{}, fmt.Errorf("empty relation key")
	}

	if m := secondaryKeyPattern.FindStringSubmatch(s); m != nil {
		if m[1] == "" {
			return Key{}, fmt.Errorf("relation key %q has no relation name", s)
		}
		return Key{Mode: KeySecondary, Rel: m[1], Field: m[2], Value: m[3]}, nil
	}

	if m := allKeyPattern.FindStringSubmatch(s); m != nil {
		if m[1] == "" {
			return Key{}, fmt.Errorf("relation key %q has no relation name", s)
		}
		return Key{Mode: KeyAll, Rel: m[1]}, nil
	}

	if m := indexKeyPattern.FindStringSubmatch(s); m != nil {
		if m[1] == "" {
			return Key{}, fmt.Errorf("relation key %q has no relation name", s)
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return Key{}, fmt.Errorf("invalid index in relation key %q: %w", s, err)
		}
		return Key{Mode: KeyIndexed, Rel: m[1], Index: idx}, nil
	}

	return Key{Mode: KeyPlain, Rel: s}, nil
}

// MustParseKey is like ParseKey but panics on error.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) String() string {
	switch k.Mode {
	case KeyIndexed:
		return fmt.Sprintf("%s[%d]", k.Rel, k.Index)
	case KeySecondary:
		return fmt.Sprintf("%s[%s:%s]", k.Rel, k.Field, k.Value)
	case KeyAll:
		return k.Rel + "[$all]"
	}
	return k.Rel
}
