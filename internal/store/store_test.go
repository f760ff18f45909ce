package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBuildWhere_FiltersRangesAndPhrase(t *testing.T) {
	q := Query{
		Filters: map[string]string{"status": "MEDLINE"},
		Ranges: []RangeFilter{
			{Field: "articleDate", Gte: "2024-01-01", Lte: "2024-01-31"},
		},
		MatchPhrase:  "label",
		PhraseValues: []string{"Oncology", "Cardiology"},
	}
	where, args := buildWhere(q, nil)

	require.Contains(t, where, "body->>'status' = $1")
	require.Contains(t, where, "body->>'articleDate' >= $2")
	require.Contains(t, where, "body->>'articleDate' <= $3")
	require.Contains(t, where, "lower(body->>'label') = ANY($4::text[])")
	require.Equal(t, []any{"MEDLINE", "2024-01-01", "2024-01-31", []string{"oncology", "cardiology"}}, args)
}

func TestBuildWhere_EmptyQueryIsTrue(t *testing.T) {
	where, args := buildWhere(Query{}, nil)
	require.Equal(t, "TRUE", where)
	require.Empty(t, args)
}

func TestBuildWhere_AfterIDAddsKeysetClause(t *testing.T) {
	after := "12345_3"
	where, args := buildWhere(Query{}, &after)
	require.Equal(t, "id > $1", where)
	require.Equal(t, []any{"12345_3"}, args)
}

func TestBuildOrderBy_DefaultsToID(t *testing.T) {
	require.Equal(t, "id ASC", buildOrderBy(nil))
}

func TestBuildOrderBy_AppendsIDTiebreaker(t *testing.T) {
	out := buildOrderBy([]SortField{{Field: "articleDate", Desc: true}})
	require.Equal(t, "body->>'articleDate' DESC, id ASC", out)
}

func TestPointID_DeterministicForNonUUID(t *testing.T) {
	id := "12345678_0"
	first := pointID(id)
	second := pointID(id)
	require.Equal(t, first, second)
	_, err := uuid.Parse(first)
	require.NoError(t, err, "derived point id must itself be a valid UUID")
}

func TestPointID_PassesThroughRealUUIDs(t *testing.T) {
	u := uuid.New().String()
	require.Equal(t, u, pointID(u))
}

func TestCursorTable_OpenAdvanceClear(t *testing.T) {
	ct := newCursorTable()
	token := ct.open("articles", Query{Filters: map[string]string{"status": "MEDLINE"}}, "100", 50, time.Second)

	st, ok := ct.get(token)
	require.True(t, ok)
	require.Equal(t, "articles", st.index)
	require.Equal(t, "100", st.lastID)
	require.GreaterOrEqual(t, time.Until(st.expires), minScrollKeepAlive-time.Second,
		"keep-alive must be clamped up to the 10-minute floor even when a shorter duration is requested")

	_, ok = ct.advance(token, "200", time.Second)
	require.True(t, ok)
	st, _ = ct.get(token)
	require.Equal(t, "200", st.lastID)

	ct.clear(token)
	_, ok = ct.get(token)
	require.False(t, ok)
}

func TestCursorTable_UnknownTokenNotFound(t *testing.T) {
	ct := newCursorTable()
	_, ok := ct.get("does-not-exist")
	require.False(t, ok)
}
