// Package diag provides the compiler's structured diagnostic values.
//
// Diagnostics are values, not exceptions (spec.md §7): every lowering
// step that encounters a recoverable problem embeds it as an Error
// node in its own output tree rather than aborting, and separately
// records a Report here so callers can list everything wrong with a
// module without re-walking its trees.
package diag

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	segjson "github.com/segmentio/encoding/json"

	"github.com/sunholo/ailang/internal/address"
)

// Phase names the stage that produced a Report.
type Phase string

const (
	PhaseCST Phase = "cst"
	PhaseAST Phase = "ast"
	PhaseHIR Phase = "hir"
	PhaseMIR Phase = "mir"
)

// Code taxonomy, organized by phase (spec.md §7).
const (
	// CST — syntax errors.
	CSTUnexpectedPunctuation  = "CST001"
	CSTUnterminatedText       = "CST002"
	CSTTextIndentation        = "CST003"
	CSTMissingClosingDelim    = "CST004"
	CSTMatchCaseMissingArrow  = "CST005"
	CSTMatchCaseMissingBody   = "CST006"
	CSTInvalidEncoding        = "CST007"

	// AST — structural errors.
	ASTPatternContainsCall           = "AST001"
	ASTPatternContainsStructAccess   = "AST002"
	ASTPatternContainsFunction       = "AST003"
	ASTPatternContainsLambda         = "AST004"
	ASTPatternContainsAssignment     = "AST005"
	ASTPatternContainsMatch          = "AST006"
	ASTParenthesizedInPatternLiteral = "AST007"
	ASTStructKeyMissingColon         = "AST008"
	ASTListItemMissingComma          = "AST009"
	ASTTextInterpolationUnclosed     = "AST010"
	ASTOrPatternCaptureMismatch      = "AST011"
	ASTIdentifierInPatternLiteral    = "AST012"

	// HIR — name resolution / desugaring errors.
	HIRUnknownReference               = "HIR001"
	HIRNeedsWithWrongNumberOfArgs     = "HIR002"
	HIRPublicAssignmentNotTopLevel    = "HIR003"
	HIRPublicAssignmentSameName       = "HIR004"
	HIRPatternContainsCall            = "HIR005"

	// MIR — propagated / invariant-adjacent.
	MIRPropagatedError = "MIR001"
)

// Report is the canonical structured diagnostic.
type Report struct {
	Schema  string         `json:"schema"`
	Code    string         `json:"code"`
	Phase   Phase          `json:"phase"`
	Module  address.Module `json:"-"`
	Span    address.Span   `json:"span"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// New builds a Report with the canonical schema tag.
func New(phase Phase, code string, module address.Module, span address.Span, message string) *Report {
	return &Report{
		Schema:  "candy.diag/v1",
		Code:    code,
		Phase:   phase,
		Module:  module,
		Span:    span,
		Message: message,
	}
}

// WithData attaches structured, sorted-key context to a Report.
func (r *Report) WithData(key string, value any) *Report {
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	r.Data[key] = value
	return r
}

// ReportError wraps a Report as an error so it survives errors.As.
type ReportError struct {
	Rep *Report
}

func (e *ReportError) Error() string {
	if e.Rep == nil {
		return "unknown diagnostic"
	}
	return fmt.Sprintf("%s [%s]: %s", e.Rep.Code, e.Rep.Phase, e.Rep.Message)
}

// Wrap turns a Report into an error.
func Wrap(r *Report) error {
	if r == nil {
		return nil
	}
	return &ReportError{Rep: r}
}

// AsReport extracts a Report from an error chain, if present.
func AsReport(err error) (*Report, bool) {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Rep, true
	}
	return nil, false
}

// ToJSON renders a single Report deterministically.
func (r *Report) ToJSON(compact bool) (string, error) {
	var b []byte
	var err error
	if compact {
		b, err = json.Marshal(r)
	} else {
		b, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Set is an ordered, deduplicated collection of Reports gathered while
// walking a lowered tree (spec.md §4.5.3 "Error collection").
type Set struct {
	reports []*Report
	seen    map[string]struct{}
}

// NewSet constructs an empty diagnostic set.
func NewSet() *Set {
	return &Set{seen: map[string]struct{}{}}
}

// Add appends a Report, skipping exact duplicates (same code+span+message).
func (s *Set) Add(r *Report) {
	if r == nil {
		return
	}
	key := fmt.Sprintf("%s\x00%d\x00%d\x00%s", r.Code, r.Span.Start, r.Span.End, r.Message)
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.reports = append(s.reports, r)
}

// All returns the reports in insertion order.
func (s *Set) All() []*Report { return s.reports }

// Len reports how many diagnostics are in the set.
func (s *Set) Len() int { return len(s.reports) }

// ToJSON renders the whole set with segmentio/encoding's faster
// encoder — useful when an embedder asks for every diagnostic across
// a large batch of modules at once.
func (s *Set) ToJSON() (string, error) {
	sorted := make([]*Report, len(s.reports))
	copy(sorted, s.reports)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Span.Start != sorted[j].Span.Start {
			return sorted[i].Span.Start < sorted[j].Span.Start
		}
		return sorted[i].Code < sorted[j].Code
	})
	b, err := segjson.Marshal(sorted)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Invariant is the value Bug panics with when the compiler
// detects a bug in an earlier stage rather than a user-facing error
// (spec.md §7: "the only fatal condition inside the core is an
// invariant violation").
type Invariant struct {
	Where   string
	Message string
}

func (i Invariant) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", i.Where, i.Message)
}

// Bug panics with an Invariant value.
func Bug(where, format string, args ...any) {
	panic(Invariant{Where: where, Message: fmt.Sprintf(format, args...)})
}
