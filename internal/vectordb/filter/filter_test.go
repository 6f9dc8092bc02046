package filter

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwinterknight/vectordb/internal/vectordb/model"
)

func mkChunk(tags []string, custom map[string]any, createdAt time.Time) *model.Chunk {
	return &model.Chunk{
		ID:         uuid.New(),
		LibraryID:  uuid.New(),
		DocumentID: uuid.New(),
		Text:       "hello world",
		Meta: model.ChunkMeta{
			CreatedAt: createdAt,
			Tags:      tags,
			Custom:    custom,
		},
	}
}

func TestFilter_EmptyPredicateMatchesEverything(t *testing.T) {
	p := ParsePredicate(nil, nil, nil)
	require.True(t, p.Empty())
	c := mkChunk(nil, nil, time.Now())
	assert.True(t, p.Match(c, &model.Document{}, &model.Library{}))
}

func TestFilter_EqOperator(t *testing.T) {
	c := mkChunk(nil, map[string]any{"priority": "high"}, time.Now())
	p := ParsePredicate(map[string]any{
		"metadata.priority": map[string]any{"eq": "high"},
	}, nil, nil)
	assert.True(t, p.Match(c, &model.Document{}, &model.Library{}))

	p2 := ParsePredicate(map[string]any{
		"metadata.priority": map[string]any{"eq": "low"},
	}, nil, nil)
	assert.False(t, p2.Match(c, &model.Document{}, &model.Library{}))
}

func TestFilter_NeqOperator(t *testing.T) {
	c := mkChunk(nil, map[string]any{"priority": "high"}, time.Now())
	p := ParsePredicate(map[string]any{
		"metadata.priority": map[string]any{"neq": "low"},
	}, nil, nil)
	assert.True(t, p.Match(c, &model.Document{}, &model.Library{}))
}

func TestFilter_InOperator(t *testing.T) {
	c := mkChunk(nil, map[string]any{"priority": "high"}, time.Now())
	p := ParsePredicate(map[string]any{
		"metadata.priority": map[string]any{"in": []any{"high", "medium"}},
	}, nil, nil)
	assert.True(t, p.Match(c, &model.Document{}, &model.Library{}))

	p2 := ParsePredicate(map[string]any{
		"metadata.priority": map[string]any{"in": []any{"low"}},
	}, nil, nil)
	assert.False(t, p2.Match(c, &model.Document{}, &model.Library{}))
}

func TestFilter_ContainsOperator(t *testing.T) {
	c := mkChunk(nil, nil, time.Now())
	p := ParsePredicate(map[string]any{
		"text": map[string]any{"contains": "world"},
	}, nil, nil)
	assert.True(t, p.Match(c, &model.Document{}, &model.Library{}))

	p2 := ParsePredicate(map[string]any{
		"text": map[string]any{"contains": "galaxy"},
	}, nil, nil)
	assert.False(t, p2.Match(c, &model.Document{}, &model.Library{}))
}

func TestFilter_ContainsAnyOperator(t *testing.T) {
	c := mkChunk(nil, nil, time.Now())
	p := ParsePredicate(map[string]any{
		"text": map[string]any{"contains_any": []any{"galaxy", "world"}},
	}, nil, nil)
	assert.True(t, p.Match(c, &model.Document{}, &model.Library{}))
}

func TestFilter_AnyOperatorOverlapsTags(t *testing.T) {
	c := mkChunk([]string{"go", "rust"}, nil, time.Now())
	p := ParsePredicate(map[string]any{
		"metadata.tags": map[string]any{"any": []any{"python", "rust"}},
	}, nil, nil)
	assert.True(t, p.Match(c, &model.Document{}, &model.Library{}))

	p2 := ParsePredicate(map[string]any{
		"metadata.tags": map[string]any{"any": []any{"python", "java"}},
	}, nil, nil)
	assert.False(t, p2.Match(c, &model.Document{}, &model.Library{}))
}

func TestFilter_NumericComparisonOperators(t *testing.T) {
	c := mkChunk(nil, map[string]any{"score": float64(7)}, time.Now())

	cases := []struct {
		op    string
		arg   float64
		match bool
	}{
		{">=", 7, true},
		{">=", 8, false},
		{"<=", 7, true},
		{"<=", 6, false},
		{">", 6, true},
		{">", 7, false},
		{"<", 8, true},
		{"<", 7, false},
	}
	for _, tc := range cases {
		p := ParsePredicate(map[string]any{
			"metadata.score": map[string]any{tc.op: tc.arg},
		}, nil, nil)
		assert.Equal(t, tc.match, p.Match(c, &model.Document{}, &model.Library{}), "op=%s arg=%v", tc.op, tc.arg)
	}
}

func TestFilter_CreatedAtSuffixCoercesTimestamps(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := mkChunk(nil, nil, created)

	p := ParsePredicate(map[string]any{
		"metadata.created_at": map[string]any{">": "2024-12-31T00:00:00Z"},
	}, nil, nil)
	assert.True(t, p.Match(c, &model.Document{}, &model.Library{}))

	p2 := ParsePredicate(map[string]any{
		"metadata.created_at": map[string]any{">": "2025-06-01T00:00:00Z"},
	}, nil, nil)
	assert.False(t, p2.Match(c, &model.Document{}, &model.Library{}))
}

func TestFilter_MissingFieldFailsEveryOperatorExceptEqNull(t *testing.T) {
	c := mkChunk(nil, nil, time.Now())

	pEq := ParsePredicate(map[string]any{
		"metadata.nonexistent": map[string]any{"eq": nil},
	}, nil, nil)
	assert.True(t, pEq.Match(c, &model.Document{}, &model.Library{}))

	pGt := ParsePredicate(map[string]any{
		"metadata.nonexistent": map[string]any{">": 1.0},
	}, nil, nil)
	assert.False(t, pGt.Match(c, &model.Document{}, &model.Library{}))
}

func TestFilter_UnknownOperatorIsSilentNoOp(t *testing.T) {
	c := mkChunk(nil, nil, time.Now())
	p := ParsePredicate(map[string]any{
		"text": map[string]any{"regex": ".*"},
	}, nil, nil)
	assert.True(t, p.Match(c, &model.Document{}, &model.Library{}))
}

func TestFilter_LibraryAndDocumentLevelsAreANDed(t *testing.T) {
	owner := "alice"
	lib := &model.Library{ID: uuid.New(), Name: "lib", Meta: model.LibraryMeta{Owner: &owner}}
	author := "bob"
	doc := &model.Document{ID: uuid.New(), LibraryID: lib.ID, Title: "doc", Meta: model.DocumentMeta{Author: &author}}
	c := mkChunk(nil, nil, time.Now())

	p := ParsePredicate(nil,
		map[string]any{"metadata.author": map[string]any{"eq": "bob"}},
		map[string]any{"metadata.owner": map[string]any{"eq": "alice"}},
	)
	assert.True(t, p.Match(c, doc, lib))

	p2 := ParsePredicate(nil,
		map[string]any{"metadata.author": map[string]any{"eq": "carol"}},
		map[string]any{"metadata.owner": map[string]any{"eq": "alice"}},
	)
	assert.False(t, p2.Match(c, doc, lib))
}
