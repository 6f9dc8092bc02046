// Package filter evaluates the structured metadata pre-filter described in
// spec section 4.4: a predicate over a chunk's/document's/library's fields,
// expressed as nested maps of field-path -> {op: argument}, ANDed across
// every field and every sub-spec.
package filter

import (
	"strings"
	"time"

	"github.com/iwinterknight/vectordb/internal/vectordb/model"
)

// Clause is a single {op: arg} pair attached to a field path.
type Clause struct {
	Op  string
	Arg any
}

// FieldClauses is every clause attached to one dotted field path; they are
// ANDed together.
type FieldClauses struct {
	Path    string
	Clauses []Clause
}

// Spec is a parsed predicate tree for one entity kind: every field's
// clauses are ANDed.
type Spec struct {
	Fields []FieldClauses
}

// ParseSpec parses the raw {field: {op: arg}} map into a Spec. A nil/empty
// raw map parses to an always-true Spec.
func ParseSpec(raw map[string]any) Spec {
	var spec Spec
	for field, ops := range raw {
		opsMap, ok := ops.(map[string]any)
		if !ok {
			continue
		}
		fc := FieldClauses{Path: field}
		for op, arg := range opsMap {
			fc.Clauses = append(fc.Clauses, Clause{Op: op, Arg: arg})
		}
		spec.Fields = append(spec.Fields, fc)
	}
	return spec
}

// Predicate is the full three-level filter: {chunk?, document?, library?},
// ANDed across levels.
type Predicate struct {
	Chunk    Spec
	Document Spec
	Library  Spec
}

// ParsePredicate parses the raw filter request body into a Predicate.
func ParsePredicate(chunk, document, library map[string]any) Predicate {
	return Predicate{
		Chunk:    ParseSpec(chunk),
		Document: ParseSpec(document),
		Library:  ParseSpec(library),
	}
}

// Empty reports whether the predicate has no clauses at all (i.e. filters
// were absent and every chunk is implicitly allowed).
func (p Predicate) Empty() bool {
	return len(p.Chunk.Fields) == 0 && len(p.Document.Fields) == 0 && len(p.Library.Fields) == 0
}

// Match evaluates the predicate against one chunk/document/library triple.
func (p Predicate) Match(c *model.Chunk, d *model.Document, l *model.Library) bool {
	return matchSpec(p.Chunk, chunkAttrs(c)) &&
		matchSpec(p.Document, documentAttrs(d)) &&
		matchSpec(p.Library, libraryAttrs(l))
}

func matchSpec(spec Spec, attrs map[string]any) bool {
	for _, fc := range spec.Fields {
		v := getField(attrs, fc.Path)
		for _, cl := range fc.Clauses {
			if !evalClause(fc.Path, v, cl) {
				return false
			}
		}
	}
	return true
}

// getField walks a dotted path through nested maps, starting from attrs.
// A missing intermediate key, or a non-map intermediate value, resolves to
// nil (missing path).
func getField(attrs map[string]any, path string) any {
	var cur any = attrs
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// evalClause applies one operator. Null values fail every operator except
// an explicit eq:null. Fields whose path ends in "created_at" are coerced
// to time.Time before comparison. Unknown operators are a silent no-op
// (forward-compatible grammar).
func evalClause(path string, v any, cl Clause) bool {
	v = coerce(path, v)
	arg := coerce(path, cl.Arg)

	switch cl.Op {
	case "eq":
		if arg == nil {
			return v == nil
		}
		if v == nil {
			return false
		}
		return equalValues(v, arg)
	case "neq":
		if v == nil {
			return false
		}
		return !equalValues(v, arg)
	case "in":
		if v == nil {
			return false
		}
		seq, ok := toSlice(arg)
		if !ok {
			return false
		}
		for _, item := range seq {
			if equalValues(v, coerce(path, item)) {
				return true
			}
		}
		return false
	case "contains":
		if v == nil {
			return false
		}
		s, ok := v.(string)
		sub, okArg := cl.Arg.(string)
		return ok && okArg && strings.Contains(s, sub)
	case "contains_any":
		if v == nil {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		subs, ok := toSlice(cl.Arg)
		if !ok {
			return false
		}
		for _, item := range subs {
			sub, ok := item.(string)
			if ok && strings.Contains(s, sub) {
				return true
			}
		}
		return false
	case "any":
		if v == nil {
			return false
		}
		fieldSeq, ok := toSlice(v)
		if !ok {
			return false
		}
		argSeq, ok := toSlice(cl.Arg)
		if !ok {
			return false
		}
		set := make(map[any]struct{}, len(fieldSeq))
		for _, item := range fieldSeq {
			set[normalizeKey(item)] = struct{}{}
		}
		for _, item := range argSeq {
			if _, ok := set[normalizeKey(item)]; ok {
				return true
			}
		}
		return false
	case ">=", "<=", ">", "<":
		if v == nil || arg == nil {
			return false
		}
		cmp, ok := compare(v, arg)
		if !ok {
			return false
		}
		switch cl.Op {
		case ">=":
			return cmp >= 0
		case "<=":
			return cmp <= 0
		case ">":
			return cmp > 0
		default:
			return cmp < 0
		}
	default:
		// Unknown operator: no-op clause, forward compatible.
		return true
	}
}

func normalizeKey(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

func coerce(path string, v any) any {
	if v == nil {
		return nil
	}
	if strings.HasSuffix(path, "created_at") {
		if t, ok := toTime(v); ok {
			return t
		}
	}
	return v
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func equalValues(a, b any) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	return a == b
}

// compare returns -1/0/1 when a and b are ordered-comparable, or ok=false
// when their types can't be compared.
func compare(a, b any) (int, bool) {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), true
		}
		return 0, false
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok && ba == bb {
			return 0, true
		}
		return 0, false
	}
	return 0, false
}

func derefStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func tagsToAny(tags []string) []any {
	if tags == nil {
		return nil
	}
	out := make([]any, len(tags))
	for i, t := range tags {
		out[i] = t
	}
	return out
}

func chunkAttrs(c *model.Chunk) map[string]any {
	if c == nil {
		return nil
	}
	meta := map[string]any{}
	for k, v := range c.Meta.Custom {
		meta[k] = v
	}
	meta["created_at"] = c.Meta.CreatedAt
	if c.Meta.Name != nil {
		meta["name"] = *c.Meta.Name
	}
	if c.Meta.Tags != nil {
		meta["tags"] = tagsToAny(c.Meta.Tags)
	}
	return map[string]any{
		"id":          c.ID.String(),
		"library_id":  c.LibraryID.String(),
		"document_id": c.DocumentID.String(),
		"text":        c.Text,
		"metadata":    meta,
	}
}

func documentAttrs(d *model.Document) map[string]any {
	if d == nil {
		return nil
	}
	meta := map[string]any{
		"created_at": d.Meta.CreatedAt,
		"author":     derefStr(d.Meta.Author),
		"source_uri": derefStr(d.Meta.SourceURI),
		"tags":       tagsToAny(d.Meta.Tags),
	}
	return map[string]any{
		"id":         d.ID.String(),
		"library_id": d.LibraryID.String(),
		"title":      d.Title,
		"metadata":   meta,
	}
}

func libraryAttrs(l *model.Library) map[string]any {
	if l == nil {
		return nil
	}
	meta := map[string]any{
		"created_at": l.Meta.CreatedAt,
		"owner":      derefStr(l.Meta.Owner),
		"topic":      derefStr(l.Meta.Topic),
	}
	return map[string]any{
		"id":          l.ID.String(),
		"name":        l.Name,
		"description": l.Description,
		"metadata":    meta,
	}
}
