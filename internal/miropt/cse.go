package miropt

import (
	"hash/maphash"

	"github.com/sunholo/ailang/internal/mir"
)

var cseSeed = maphash.MakeSeed()

// normalizer assigns a fresh, position-based replacement id to every
// id defined within the scope currently being hashed or compared, so
// that two structurally identical expressions differing only in their
// ids' numeric values still compare equal (spec.md §4.5.2:
// "Normalization: each locally-defined id... is replaced by a fresh
// sequence... free ids compare by actual id"). A normalizer is scoped
// to exactly one hash computation or one equality comparison, never
// reused across candidates (ported from the original's
// NormalizationState).
type normalizer struct {
	next    int
	mapping map[mir.ID]mir.ID
}

func newNormalizer() *normalizer { return &normalizer{mapping: map[mir.ID]mir.ID{}} }

func (n *normalizer) register(id mir.ID) {
	n.mapping[id] = mir.ID(n.next)
	n.next++
}

func (n *normalizer) registerBody(body *mir.Body) {
	for _, id := range body.Order {
		n.register(id)
	}
}

func (n *normalizer) registerFunction(params []mir.ID) {
	for _, p := range params {
		n.register(p)
	}
}

func (n *normalizer) of(id mir.ID) mir.ID {
	if r, ok := n.mapping[id]; ok {
		return r
	}
	return id
}

// EliminateCommonSubtrees deduplicates deterministic expressions whose
// normalized form is equal (spec.md §4.5.2), replacing every later
// duplicate with a Reference to the first occurrence and merging its
// OriginalHirs (and, transitively, its inner functions') into the
// survivor.
func EliminateCommonSubtrees(body *mir.Body, pureness *PurenessInsights) bool {
	changed := false
	buckets := map[uint64][]mir.ID{}

	for _, id := range body.Order {
		n := body.Exprs[id]
		if !pureness.IsDeterministic(id) {
			continue
		}

		var h maphash.Hash
		h.SetSeed(cseSeed)
		hashExprNormalized(&h, n, newNormalizer())
		sum := h.Sum64()

		candidates := buckets[sum]
		canonical := mir.ID(-1)
		for _, cand := range candidates {
			if equalsExprNormalized(body.Exprs[cand], newNormalizer(), n, newNormalizer()) {
				canonical = cand
				break
			}
		}

		if canonical >= 0 {
			mergeOriginalHirs(body.Exprs[canonical], n)
			*n = mir.Node{ID: id, Kind: mir.KindReference, Reference: canonical}
			changed = true
			continue
		}
		buckets[sum] = append(candidates, id)
	}
	return changed
}

func mergeOriginalHirs(canonical, old *mir.Node) {
	if canonical.Kind != mir.KindFunction || old.Kind != mir.KindFunction {
		return
	}
	canonical.OriginalHirs = append(canonical.OriginalHirs, old.OriginalHirs...)
	mergeBodyHirs(canonical.Body, old.Body)
}

func mergeBodyHirs(canonicalBody, oldBody *mir.Body) {
	if len(canonicalBody.Order) != len(oldBody.Order) {
		return
	}
	for i := range canonicalBody.Order {
		c := canonicalBody.Exprs[canonicalBody.Order[i]]
		o := oldBody.Exprs[oldBody.Order[i]]
		if c.Kind == mir.KindFunction && o.Kind == mir.KindFunction {
			c.OriginalHirs = append(c.OriginalHirs, o.OriginalHirs...)
			mergeBodyHirs(c.Body, o.Body)
		}
	}
}

func hashExprNormalized(h *maphash.Hash, n *mir.Node, nz *normalizer) {
	writeByte(h, byte(n.Kind))
	switch n.Kind {
	case mir.KindInt:
		h.WriteString(n.IntValue)
	case mir.KindText:
		h.WriteString(n.Text)
	case mir.KindBuiltin:
		h.WriteString(n.Text)
	case mir.KindTag:
		h.WriteString(n.Text)
		writeOptID(h, n.TagValue, nz)
	case mir.KindReference:
		writeID(h, n.Reference, nz)
	case mir.KindList:
		writeInt(h, len(n.Items))
		for _, it := range n.Items {
			writeID(h, it, nz)
		}
	case mir.KindStruct:
		writeInt(h, len(n.Fields))
		for _, f := range n.Fields {
			writeID(h, f.Key, nz)
			writeID(h, f.Value, nz)
		}
	case mir.KindHirID:
		h.WriteString(n.HirID.String())
	case mir.KindFunction:
		nz.registerFunction(n.Parameters)
		writeBool(h, n.IsFuzzable)
		writeInt(h, len(n.Parameters))
		hashBodyNormalized(h, n.Body, nz)
	case mir.KindCall:
		writeID(h, n.CallFunction, nz)
		writeInt(h, len(n.CallArguments))
		for _, a := range n.CallArguments {
			writeID(h, a, nz)
		}
		writeID(h, n.Responsible, nz)
	}
}

func hashBodyNormalized(h *maphash.Hash, body *mir.Body, nz *normalizer) {
	nz.registerBody(body)
	writeInt(h, len(body.Order))
	for _, id := range body.Order {
		hashExprNormalized(h, body.Exprs[id], nz)
	}
}

func equalsExprNormalized(a *mir.Node, na *normalizer, b *mir.Node, nb *normalizer) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case mir.KindInt:
		return a.IntValue == b.IntValue
	case mir.KindText:
		return a.Text == b.Text
	case mir.KindBuiltin:
		return a.Text == b.Text
	case mir.KindTag:
		if a.Text != b.Text {
			return false
		}
		return equalsOptID(a.TagValue, na, b.TagValue, nb)
	case mir.KindReference:
		return na.of(a.Reference) == nb.of(b.Reference)
	case mir.KindList:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if na.of(a.Items[i]) != nb.of(b.Items[i]) {
				return false
			}
		}
		return true
	case mir.KindStruct:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if na.of(a.Fields[i].Key) != nb.of(b.Fields[i].Key) {
				return false
			}
			if na.of(a.Fields[i].Value) != nb.of(b.Fields[i].Value) {
				return false
			}
		}
		return true
	case mir.KindHirID:
		return a.HirID.String() == b.HirID.String()
	case mir.KindFunction:
		if a.IsFuzzable != b.IsFuzzable || len(a.Parameters) != len(b.Parameters) {
			return false
		}
		na.registerFunction(a.Parameters)
		nb.registerFunction(b.Parameters)
		return equalsBodyNormalized(a.Body, na, b.Body, nb)
	case mir.KindCall:
		if na.of(a.CallFunction) != nb.of(b.CallFunction) {
			return false
		}
		if len(a.CallArguments) != len(b.CallArguments) {
			return false
		}
		for i := range a.CallArguments {
			if na.of(a.CallArguments[i]) != nb.of(b.CallArguments[i]) {
				return false
			}
		}
		return na.of(a.Responsible) == nb.of(b.Responsible)
	default:
		return false
	}
}

func equalsBodyNormalized(a *mir.Body, na *normalizer, b *mir.Body, nb *normalizer) bool {
	if len(a.Order) != len(b.Order) {
		return false
	}
	na.registerBody(a)
	nb.registerBody(b)
	for i := range a.Order {
		if !equalsExprNormalized(a.Exprs[a.Order[i]], na, b.Exprs[b.Order[i]], nb) {
			return false
		}
	}
	return true
}

func equalsOptID(a *mir.ID, na *normalizer, b *mir.ID, nb *normalizer) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return na.of(*a) == nb.of(*b)
}

func writeOptID(h *maphash.Hash, id *mir.ID, nz *normalizer) {
	if id == nil {
		writeByte(h, 0)
		return
	}
	writeByte(h, 1)
	writeID(h, *id, nz)
}

func writeID(h *maphash.Hash, id mir.ID, nz *normalizer) { writeInt(h, int(nz.of(id))) }

func writeInt(h *maphash.Hash, v int) {
	var buf [8]byte
	u := uint64(v)
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
	h.Write(buf[:])
}

func writeByte(h *maphash.Hash, b byte) { h.Write([]byte{b}) }

func writeBool(h *maphash.Hash, b bool) {
	if b {
		writeByte(h, 1)
	} else {
		writeByte(h, 0)
	}
}
