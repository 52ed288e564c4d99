package mir

import (
	"fmt"
	"strconv"

	"github.com/sunholo/ailang/internal/hir"
)

// patternCompiler implements spec.md §4.4.1: given an expression and a
// pattern, build an MIR expression yielding `(Match, v0, …, vk)` on
// success or `(NoMatch, text)` on failure. responsible, matchTag and
// noMatchTag are fixed for one top-level compilePattern call and
// threaded through every recursive compile, mirroring the original
// compiler's PatternLoweringContext.
type patternCompiler struct {
	hirID               hir.ID
	responsible         ID
	matchTag, noMatchTag ID
}

// compilePattern is the entry point HIR→MIR lowering calls for a
// Destructure expression or a Match case.
func compilePattern(b *builder, hirID hir.ID, responsible ID, expression ID, pattern *hir.Pattern) ID {
	pc := &patternCompiler{
		hirID:       hirID,
		responsible: responsible,
		matchTag:    b.pushMatchTag(),
		noMatchTag:  b.pushNoMatchTag(),
	}
	return pc.compile(b, expression, pattern)
}

func (pc *patternCompiler) pushMatch(b *builder, captured []ID) ID {
	items := make([]ID, 0, len(captured)+1)
	items = append(items, pc.matchTag)
	items = append(items, captured...)
	return b.pushList(items)
}

func (pc *patternCompiler) pushNoMatch(b *builder, reasonText ID) ID {
	return b.pushList([]ID{pc.noMatchTag, reasonText})
}

func (pc *patternCompiler) pushTextConcatenate(b *builder, parts []ID) ID {
	concat := b.pushBuiltin("TextConcatenate")
	result := parts[0]
	for _, p := range parts[1:] {
		result = b.pushCall(concat, []ID{result, p}, pc.responsible)
	}
	return result
}

// compileEquals builds `builtinEquals expected actual` and branches on
// it, synthesizing a text reason from the reasonFactory on failure.
func (pc *patternCompiler) compileEquals(b *builder, expected, actual ID, then func(*builder), reasonFactory func(inner *builder, expectedText, actualText ID) []ID) ID {
	equalsFn := b.pushBuiltin("Equals")
	eq := b.pushCall(equalsFn, []ID{expected, actual}, pc.responsible)
	return b.pushIfElse(pc.hirID, eq,
		then,
		func(inner *builder) {
			toDebugText := inner.pushBuiltin("ToDebugText")
			expectedText := inner.pushCall(toDebugText, []ID{expected}, pc.responsible)
			actualText := inner.pushCall(toDebugText, []ID{actual}, pc.responsible)
			parts := reasonFactory(inner, expectedText, actualText)
			reason := pc.pushTextConcatenate(inner, parts)
			inner.pushReference(pc.pushNoMatch(inner, reason))
		},
		pc.responsible,
	)
}

func (pc *patternCompiler) compileExactValue(b *builder, expression, expectedValue ID) ID {
	return pc.compileEquals(b, expectedValue, expression,
		func(inner *builder) { pc.pushMatch(inner, nil) },
		func(inner *builder, expected, actual ID) []ID {
			return []ID{
				inner.pushText("Expected `"), expected, inner.pushText("`, got `"), actual, inner.pushText("`."),
			}
		})
}

func (pc *patternCompiler) compileVerifyTypeCondition(b *builder, expression ID, expectedType string, then func(inner *builder)) ID {
	expectedTypeID := b.pushTag(expectedType, nil)
	typeOf := b.pushBuiltin("TypeOf")
	actualType := b.pushCall(typeOf, []ID{expression}, pc.responsible)
	return pc.compileEquals(b, expectedTypeID, actualType, then,
		func(inner *builder, expected, actual ID) []ID {
			return []ID{
				inner.pushText("Expected a "), expected, inner.pushText(", got `"), actual, inner.pushText("`."),
			}
		})
}

func (pc *patternCompiler) compileTagPattern(b *builder, expression ID, pattern *hir.Pattern) ID {
	return pc.compileVerifyTypeCondition(b, expression, "Tag", func(inner *builder) {
		tagWithoutValue := inner.pushBuiltin("TagWithoutValue")
		actualSymbol := inner.pushCall(tagWithoutValue, []ID{expression}, pc.responsible)
		expectedSymbol := inner.pushTag(pattern.TagSymbol, nil)
		pc.compileEquals(inner, expectedSymbol, actualSymbol, func(inner2 *builder) {
			tagHasValue := inner2.pushBuiltin("TagHasValue")
			actualHasValue := inner2.pushCall(tagHasValue, []ID{expression}, pc.responsible)
			expectedHasValue := inner2.pushBool(pattern.TagValue != nil)
			pc.compileEquals(inner2, expectedHasValue, actualHasValue, func(inner3 *builder) {
				if pattern.TagValue != nil {
					tagGetValue := inner3.pushBuiltin("TagGetValue")
					actualValue := inner3.pushCall(tagGetValue, []ID{expression}, pc.responsible)
					pc.compile(inner3, actualValue, pattern.TagValue)
				} else {
					pc.pushMatch(inner3, nil)
				}
			}, func(inner3 *builder, _, _ ID) []ID {
				if pattern.TagValue != nil {
					return []ID{inner3.pushText("Expected tag to have a value, but it doesn't have any.")}
				}
				tagGetValue := inner3.pushBuiltin("TagGetValue")
				actualValue := inner3.pushCall(tagGetValue, []ID{expression}, pc.responsible)
				toDebugText := inner3.pushBuiltin("ToDebugText")
				actualValueText := inner3.pushCall(toDebugText, []ID{actualValue}, pc.responsible)
				return []ID{
					inner3.pushText("Expected tag to not have a value, but it has one: `"), actualValueText, inner3.pushText("`."),
				}
			})
		}, func(inner2 *builder, expected, actual ID) []ID {
			return []ID{inner2.pushText("Expected "), expected, inner2.pushText(", got "), actual, inner2.pushText(".")}
		})
	})
}

// conjunctionBuild compiles one component of a List or Struct pattern,
// returning the `(Match,…)|(NoMatch,…)` result plus how many
// identifiers it captures.
type conjunctionBuild func(inner *builder) (ID, int)

func (pc *patternCompiler) compileListPattern(b *builder, expression ID, items []*hir.Pattern) ID {
	return pc.compileVerifyTypeCondition(b, expression, "List", func(inner *builder) {
		expected := inner.pushInt(strconv.Itoa(len(items)))
		listLength := inner.pushBuiltin("ListLength")
		actualLength := inner.pushCall(listLength, []ID{expression}, pc.responsible)
		pc.compileEquals(inner, expected, actualLength, func(inner2 *builder) {
			listGet := inner2.pushBuiltin("ListGet")
			builders := make([]conjunctionBuild, len(items))
			for idx, itemPattern := range items {
				idx, itemPattern := idx, itemPattern
				builders[idx] = func(inner3 *builder) (ID, int) {
					index := inner3.pushInt(strconv.Itoa(idx))
					item := inner3.pushCall(listGet, []ID{expression, index}, pc.responsible)
					result := pc.compile(inner3, item, itemPattern)
					return result, len(hir.CapturedIdentifiers(itemPattern))
				}
			}
			pc.compileMatchConjunction(inner2, builders)
		}, func(inner2 *builder, _, actual ID) []ID {
			noun := "items"
			if len(items) == 1 {
				noun = "item"
			}
			return []ID{
				inner2.pushText(fmt.Sprintf("Expected %d %s, got ", len(items), noun)), actual, inner2.pushText("."),
			}
		})
	})
}

func (pc *patternCompiler) compileStructPattern(b *builder, expression ID, fields []hir.PatternField) ID {
	return pc.compileVerifyTypeCondition(b, expression, "Struct", func(inner *builder) {
		structHasKey := inner.pushBuiltin("StructHasKey")
		structGet := inner.pushBuiltin("StructGet")
		builders := make([]conjunctionBuild, len(fields))
		for idx, f := range fields {
			f := f
			builders[idx] = func(inner2 *builder) (ID, int) {
				// Struct pattern keys are always plain symbols in this
				// grammar (an ast struct field key is always a Symbol
				// node), so unlike the original's generic key-pattern
				// support this never needs to compile a nested key
				// expression.
				keyID := inner2.pushTag(f.Key, nil)
				hasKey := inner2.pushCall(structHasKey, []ID{expression, keyID}, pc.responsible)
				result := inner2.pushIfElse(pc.hirID, hasKey,
					func(inner3 *builder) {
						value := inner3.pushCall(structGet, []ID{expression, keyID}, pc.responsible)
						pc.compile(inner3, value, f.Value)
					},
					func(inner3 *builder) {
						toDebugText := inner3.pushBuiltin("ToDebugText")
						keyText := inner3.pushCall(toDebugText, []ID{keyID}, pc.responsible)
						structText := inner3.pushCall(toDebugText, []ID{expression}, pc.responsible)
						reason := pc.pushTextConcatenate(inner3, []ID{
							inner3.pushText("Struct doesn't contain key `"), keyText, inner3.pushText("`: `"), structText, inner3.pushText("`."),
						})
						inner3.pushReference(pc.pushNoMatch(inner3, reason))
					},
					pc.responsible,
				)
				return result, len(hir.CapturedIdentifiers(f.Value))
			}
		}
		pc.compileMatchConjunction(inner, builders)
	})
}

func (pc *patternCompiler) compileOrPattern(b *builder, expression ID, alternatives []*hir.Pattern) ID {
	first, rest := alternatives[0], alternatives[1:]
	result := pc.compile(b, expression, first)
	capturedOrder := hir.CapturedIdentifiers(first)

	for _, alt := range rest {
		alt := alt
		prevResult := result
		listGet := b.pushBuiltin("ListGet")
		nothing := b.pushNothing()
		isMatch := b.pushIsMatch(prevResult, pc.responsible)
		result = b.pushIfElse(pc.hirID, isMatch,
			func(inner *builder) {
				// An earlier alternative already matched, and every
				// earlier alternative's result was already reordered
				// into capturedOrder below — nothing to do.
				inner.pushReference(prevResult)
			},
			func(inner *builder) {
				altResult := pc.compile(inner, expression, alt)
				captured := hir.CapturedIdentifiers(alt)
				if sameOrder(captured, capturedOrder) {
					inner.pushReference(altResult)
					return
				}
				reordered := make([]ID, len(capturedOrder))
				for i, name := range capturedOrder {
					idx := indexOf(captured, name)
					if idx < 0 {
						reordered[i] = inner.pushReference(nothing)
						continue
					}
					indexID := inner.pushInt(strconv.Itoa(1 + idx))
					reordered[i] = inner.pushCall(listGet, []ID{altResult, indexID}, pc.responsible)
				}
				pc.pushMatch(inner, reordered)
			},
			pc.responsible,
		)
	}
	return result
}

func (pc *patternCompiler) compileMatchConjunction(b *builder, builders []conjunctionBuild) ID {
	return pc.compileMatchConjunctionRec(b, builders, nil)
}

func (pc *patternCompiler) compileMatchConjunctionRec(b *builder, builders []conjunctionBuild, captured []ID) ID {
	if len(builders) == 0 {
		return pc.pushMatch(b, captured)
	}
	build, rest := builders[0], builders[1:]
	returnValue, count := build(b)
	isMatch := b.pushIsMatch(returnValue, pc.responsible)
	return b.pushIfElse(pc.hirID, isMatch,
		func(inner *builder) {
			listGet := inner.pushBuiltin("ListGet")
			acc := append([]ID(nil), captured...)
			for i := 0; i < count; i++ {
				idx := inner.pushInt(strconv.Itoa(i + 1))
				item := inner.pushCall(listGet, []ID{returnValue, idx}, pc.responsible)
				acc = append(acc, item)
			}
			pc.compileMatchConjunctionRec(inner, rest, acc)
		},
		func(inner *builder) { inner.pushReference(returnValue) },
		pc.responsible,
	)
}

func (pc *patternCompiler) compile(b *builder, expression ID, pattern *hir.Pattern) ID {
	switch pattern.Kind {
	case hir.PatternIdentifier:
		return pc.pushMatch(b, []ID{expression})
	case hir.PatternInt:
		expected := b.pushInt(pattern.IntValue)
		return pc.compileExactValue(b, expression, expected)
	case hir.PatternText:
		expected := b.pushText(pattern.TextValue)
		return pc.compileExactValue(b, expression, expected)
	case hir.PatternTag:
		return pc.compileTagPattern(b, expression, pattern)
	case hir.PatternList:
		return pc.compileListPattern(b, expression, pattern.Items)
	case hir.PatternStruct:
		return pc.compileStructPattern(b, expression, pattern.Fields)
	case hir.PatternOr:
		return pc.compileOrPattern(b, expression, pattern.Items)
	case hir.PatternError:
		return compileErrors(b, pc.responsible, pattern.Errors)
	default:
		return compileErrors(b, pc.responsible, []*hir.Error{{Code: "UnknownPattern", Message: "unknown pattern kind"}})
	}
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}
