// Package address identifies source modules and positions within them.
//
// A Module is the unit the rest of the pipeline addresses: every CST,
// AST, HIR and MIR tree belongs to exactly one Module. Offset and Span
// are plain byte offsets into a module's source bytes.
package address

import (
	"fmt"
	"strings"
)

// PackageKind distinguishes where a module's package comes from.
type PackageKind int

const (
	// Builtins is the single built-ins package every module implicitly
	// depends on.
	Builtins PackageKind = iota
	// User packages live on the embedder's file system.
	User
	// Anonymous packages are synthesized from a URL (e.g. a fetched
	// remote module with no stable on-disk identity).
	Anonymous
	// Tooling packages are synthetic identities used by tests and
	// internal tools ("user", "platform", "fuzzer", "dummy").
	Tooling
)

func (k PackageKind) String() string {
	switch k {
	case Builtins:
		return "Builtins"
	case User:
		return "User"
	case Anonymous:
		return "Anonymous"
	case Tooling:
		return "Tooling"
	default:
		return fmt.Sprintf("PackageKind(%d)", int(k))
	}
}

// Package is the (kind, value) pair identifying where a module's
// package comes from. Value holds the fs-path for User, the URL for
// Anonymous, and the tool name for Tooling; it is empty for Builtins.
type Package struct {
	Kind  PackageKind
	Value string
}

func (p Package) String() string {
	if p.Value == "" {
		return p.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", p.Kind, p.Value)
}

// UserPackage constructs a User package rooted at an fs path.
func UserPackage(fsPath string) Package { return Package{Kind: User, Value: fsPath} }

// ToolingPackage constructs one of the well-known tooling identities.
func ToolingPackage(name string) Package { return Package{Kind: Tooling, Value: name} }

// BuiltinsPackage is the single shared built-ins package.
var BuiltinsPackage = Package{Kind: Builtins}

// Kind distinguishes code modules (compiled) from asset modules
// (opaque data pulled in via `use`).
type Kind int

const (
	Code Kind = iota
	Asset
)

func (k Kind) String() string {
	if k == Asset {
		return "Asset"
	}
	return "Code"
}

// Module is a module's full identity: (package, path, kind).
type Module struct {
	Package Package
	Path    []string
	Kind    Kind
}

// New builds a Module identity.
func New(pkg Package, path []string, kind Kind) Module {
	return Module{Package: pkg, Path: append([]string(nil), path...), Kind: kind}
}

// Equal reports whether two module identities refer to the same module.
func (m Module) Equal(other Module) bool {
	if m.Package != other.Package || m.Kind != other.Kind {
		return false
	}
	if len(m.Path) != len(other.Path) {
		return false
	}
	for i := range m.Path {
		if m.Path[i] != other.Path[i] {
			return false
		}
	}
	return true
}

func (m Module) String() string {
	return fmt.Sprintf("%s:%s:%s", m.Package, strings.Join(m.Path, "/"), m.Kind)
}

// Key returns a stable string usable as a map key, distinct from
// String() only in that it's guaranteed unambiguous across any package
// value/path combination.
func (m Module) Key() string {
	return fmt.Sprintf("%d\x00%s\x00%s\x00%d", m.Package.Kind, m.Package.Value, strings.Join(m.Path, "\x00"), m.Kind)
}

// ErrorKind enumerates the reasons a module's bytes could not be
// turned into a CST at all.
type ErrorKind int

const (
	DoesNotExist ErrorKind = iota
	InvalidEncoding
)

func (k ErrorKind) String() string {
	if k == InvalidEncoding {
		return "InvalidEncoding"
	}
	return "DoesNotExist"
}

// ModuleError is returned by every compile entry point (spec.md §6)
// when a module's bytes can't even be loaded/decoded.
type ModuleError struct {
	Module Module
	Kind   ErrorKind
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %s", e.Module, e.Kind)
}

// Offset is an absolute byte offset into a module's source.
type Offset int

// Span is a half-open byte range [Start, End) into a module's source.
type Span struct {
	Start Offset
	End   Offset
}

// NewSpan builds a Span, panicking if End < Start (an invariant
// violation rather than a recoverable error — spec.md §7).
func NewSpan(start, end Offset) Span {
	if end < start {
		panic(fmt.Sprintf("invalid span: end %d before start %d", end, start))
	}
	return Span{Start: start, End: end}
}

// Len reports the span's width in bytes.
func (s Span) Len() int { return int(s.End - s.Start) }

// Contains reports whether o falls within [Start, End).
func (s Span) Contains(o Offset) bool { return o >= s.Start && o < s.End }

// Union returns the smallest span covering both s and other.
func (s Span) Union(other Span) Span {
	start := s.Start
	if other.Start < start {
		start = other.Start
	}
	end := s.End
	if other.End > end {
		end = other.End
	}
	return Span{Start: start, End: end}
}

// Slice extracts the span's bytes from src.
func (s Span) Slice(src []byte) []byte {
	return src[s.Start:s.End]
}

func (s Span) String() string { return fmt.Sprintf("[%d, %d)", s.Start, s.End) }
