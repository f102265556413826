// Package module holds the compilation-unit model shared by every stage of the
// engine. Modules reference each other only through arena ids (ModuleID), never
// through pointers, so replacing a module never leaves dangling back-references.
package module

import (
	"fmt"
	"strings"

	"crossmod/internal/engine/source"
)

// Notation tags which language a module or identifier is written in.
type Notation int

const (
	NotationUnknown Notation = iota
	NotationASN1
	NotationTTCN
)

func (n Notation) String() string {
	switch n {
	case NotationASN1:
		return "asn1"
	case NotationTTCN:
		return "ttcn"
	default:
		return "unknown"
	}
}

// ParseNotation accepts the names used in configuration files.
func ParseNotation(s string) (Notation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asn1", "asn.1", "asn":
		return NotationASN1, nil
	case "ttcn", "ttcn3", "ttcn-3":
		return NotationTTCN, nil
	default:
		return NotationUnknown, fmt.Errorf("unknown notation %q", s)
	}
}

// ModuleID is the arena index of a module name inside one registry.
type ModuleID int32

// NoModule marks an unresolved id.
const NoModule ModuleID = -1

func (id ModuleID) Valid() bool { return id >= 0 }

// Identifier is a declared name together with its notation and location.
type Identifier struct {
	Name     string
	Notation Notation
	Location source.Location
}

func NewIdentifier(name string, notation Notation, loc source.Location) Identifier {
	return Identifier{Name: name, Notation: notation, Location: loc}
}

// Normalized returns the comparison key of the identifier. ASN.1 names may use
// hyphens where the other notation uses underscores; both map to the same key.
func (id Identifier) Normalized() string {
	return NormalizeName(id.Name, id.Notation)
}

// Equal compares by normalized name within the same notation.
func (id Identifier) Equal(other Identifier) bool {
	return id.Notation == other.Notation && id.Normalized() == other.Normalized()
}

func (id Identifier) String() string {
	return id.Name
}

func NormalizeName(name string, notation Notation) string {
	if notation == NotationASN1 {
		return strings.ReplaceAll(name, "-", "_")
	}
	return name
}

// Symbol is an identifier appearing in an import or export list.
type Symbol struct {
	Identifier
}

func NewSymbol(name string, notation Notation, loc source.Location) Symbol {
	return Symbol{Identifier: NewIdentifier(name, notation, loc)}
}
