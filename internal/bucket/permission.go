package bucket

import "strings"

// Permission is a tri-state cell value. The zero value is Unknown so a fresh
// matrix never claims access it has not observed.
type Permission uint8

const (
	Unknown Permission = iota
	Allowed
	Denied
)

func (p Permission) String() string {
	switch p {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// ParsePermission is the inverse of String; anything unrecognised is Unknown.
func ParsePermission(s string) Permission {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allowed":
		return Allowed
	case "denied":
		return Denied
	default:
		return Unknown
	}
}

// Principal is the grantee class a cell describes.
type Principal uint8

const (
	AllUsers Principal = iota
	AuthenticatedUsers
)

func (p Principal) String() string {
	if p == AuthenticatedUsers {
		return "AuthUsers"
	}
	return "AllUsers"
}

// Kind is the capability a cell describes.
type Kind uint8

const (
	Read Kind = iota
	Write
	ReadACL
	WriteACL
	FullControl
)

// Kinds lists every capability in report order.
var Kinds = []Kind{Read, Write, ReadACL, WriteACL, FullControl}

// Principals lists both grantee classes in report order.
var Principals = []Principal{AuthenticatedUsers, AllUsers}

func (k Kind) String() string {
	switch k {
	case Read:
		return "Read"
	case Write:
		return "Write"
	case ReadACL:
		return "ReadACP"
	case WriteACL:
		return "WriteACP"
	case FullControl:
		return "FullControl"
	}
	return "?"
}

// Matrix holds the ten permission cells of one bucket.
//
// Cells move from Unknown to Allowed or Denied exactly once. Resolve enforces
// that; Clear is the only way back to Unknown.
type Matrix struct {
	cells [2][5]Permission
}

func (m *Matrix) Get(p Principal, k Kind) Permission {
	return m.cells[p][k]
}

// Resolve records an observation for a cell that is still Unknown and reports
// whether the cell changed.
func (m *Matrix) Resolve(p Principal, k Kind, v Permission) bool {
	if v == Unknown || m.cells[p][k] != Unknown {
		return false
	}
	m.cells[p][k] = v
	return true
}

// Grant marks a capability Allowed. FullControl implies the other four.
func (m *Matrix) Grant(p Principal, k Kind) {
	if k == FullControl {
		for _, kk := range Kinds {
			m.Resolve(p, kk, Allowed)
		}
		return
	}
	m.Resolve(p, k, Allowed)
}

// DenyUnknown sets every Unknown cell of both principals to Denied.
func (m *Matrix) DenyUnknown() {
	for _, p := range Principals {
		for _, k := range Kinds {
			m.Resolve(p, k, Denied)
		}
	}
}

// Clear resets a cell to Unknown. It exists for observations that cannot be
// attributed to a principal after the fact.
func (m *Matrix) Clear(p Principal, k Kind) {
	m.cells[p][k] = Unknown
}

// Allowed returns the capabilities currently Allowed for p, in report order.
func (m *Matrix) Allowed(p Principal) []Kind {
	var out []Kind
	for _, k := range Kinds {
		if m.cells[p][k] == Allowed {
			out = append(out, k)
		}
	}
	return out
}

// Summary renders "AuthUsers: [Read], AllUsers: []".
func (m *Matrix) Summary() string {
	var b strings.Builder
	for i, p := range Principals {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
		b.WriteString(": [")
		for j, k := range m.Allowed(p) {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k.String())
		}
		b.WriteString("]")
	}
	return b.String()
}

// Map is the JSON friendly form: principal -> capability -> state.
func (m *Matrix) Map() map[string]map[string]string {
	out := make(map[string]map[string]string, len(Principals))
	for _, p := range Principals {
		row := make(map[string]string, len(Kinds))
		for _, k := range Kinds {
			row[k.String()] = m.cells[p][k].String()
		}
		out[p.String()] = row
	}
	return out
}
