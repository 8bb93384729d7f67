package model

import (
	"fmt"
	"strings"
)

// Kind identifies how a task is dispatched.
type Kind string

const (
	// KindLocal tasks are called directly with no containment.
	KindLocal Kind = "local"
	// KindShared tasks are delegated to an external handler.
	KindShared Kind = "shared"
	// KindForeign tasks are compiled into an isolated runtime and always sandboxed.
	KindForeign Kind = "foreign"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindLocal, KindShared, KindForeign:
		return true
	}
	return false
}

// ParseKind converts a case-insensitive name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown task kind %q", s)
	}
	return k, nil
}

// Permission is an ordered capability tier. Each tier grants a superset of
// the capabilities granted by the tiers below it.
type Permission int

const (
	// PermNone injects nothing; the caller's context stands as-is.
	PermNone Permission = iota
	// PermRestricted grants timers, Buffer and a loader limited to "stream".
	PermRestricted
	// PermMinimal grants Restricted plus a wider loader, console and identity values.
	PermMinimal
	// PermUnrestricted grants everything including process access. Unsafe:
	// only for fully trusted task sources.
	PermUnrestricted
)

var permissionNames = [...]string{"none", "restricted", "minimal", "unrestricted"}

// String returns the lowercase tier name.
func (p Permission) String() string {
	if p < PermNone || p > PermUnrestricted {
		return fmt.Sprintf("permission(%d)", int(p))
	}
	return permissionNames[p]
}

// Valid reports whether p is a known tier.
func (p Permission) Valid() bool {
	return p >= PermNone && p <= PermUnrestricted
}

// ParsePermission converts a tier name into a Permission.
func ParsePermission(s string) (Permission, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range permissionNames {
		if n == name {
			return Permission(i), nil
		}
	}
	return PermNone, fmt.Errorf("unknown permission tier %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid permission %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(text []byte) error {
	v, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
