package graph

import "strings"

// Category classifies a process step.
type Category string

// Process step categories understood by the platform.
const (
	CategoryStart    Category = "START"
	CategoryEnd      Category = "END"
	CategoryTask     Category = "TASK"
	CategoryAndSplit Category = "AND_SPLIT"
	CategoryXorSplit Category = "XOR_SPLIT"
	CategoryAndJoin  Category = "AND_JOIN"
	CategoryXorJoin  Category = "XOR_JOIN"
)

// categoryHints maps lowercase hints (category codes or vertex names) to categories.
var categoryHints = map[string]Category{
	"start":             CategoryStart,
	"end":               CategoryEnd,
	"gateway_and_split": CategoryAndSplit,
	"gateway_xor_split": CategoryXorSplit,
	"gateway_and_join":  CategoryAndJoin,
	"gateway_xor_join":  CategoryXorJoin,
}

// Valid reports whether c is one of the known category codes.
func (c Category) Valid() bool {
	switch c {
	case CategoryStart, CategoryEnd, CategoryTask,
		CategoryAndSplit, CategoryXorSplit, CategoryAndJoin, CategoryXorJoin:
		return true
	}
	return false
}

// IsGateway reports whether c is a branching or merging category.
func (c Category) IsGateway() bool {
	s := string(c)
	return strings.Contains(s, "AND") || strings.Contains(s, "XOR")
}

// ResolveCategory picks the category for a vertex. An explicit code from the
// vocabulary wins. A non-empty hint that is not a code is looked up in the hint
// table and falls back to TASK. Without a hint the vertex name is looked up instead.
func ResolveCategory(hint, name string) Category {
	if c := Category(hint); c.Valid() {
		return c
	}
	key := name
	if hint != "" {
		key = hint
	}
	if c, ok := categoryHints[strings.ToLower(key)]; ok {
		return c
	}
	return CategoryTask
}
