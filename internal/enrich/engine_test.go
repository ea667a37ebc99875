package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticResolver(known map[string]map[string]any) ResolverFunc {
	return func(_ context.Context, ids []string) map[string]map[string]any {
		out := make(map[string]map[string]any, len(ids))
		for _, id := range ids {
			if fields, ok := known[id]; ok {
				out[id] = fields
			}
		}
		return out
	}
}

func writerRule(known map[string]map[string]any) Rule {
	return Rule{
		Key:      "writerId",
		Resolver: staticResolver(known),
		Defaults: map[string]any{
			"writerNickname":     "unknown",
			"writerProfileImage": "/static/default.png",
		},
	}
}

func TestEnrichInjectsResolvedFields(t *testing.T) {
	e := NewEngine([]Rule{writerRule(map[string]map[string]any{
		"u1": {"writerNickname": "Alice", "writerProfileImage": "/img/u1.png"},
	})})

	payload := map[string]any{"writerId": "u1", "title": "hello"}
	e.Enrich(context.Background(), payload)

	assert.Equal(t, "Alice", payload["writerNickname"])
	assert.Equal(t, "/img/u1.png", payload["writerProfileImage"])
	assert.Equal(t, "hello", payload["title"])
}

func TestEnrichInjectsDefaultsOnMissingResolution(t *testing.T) {
	e := NewEngine([]Rule{writerRule(map[string]map[string]any{})})

	payload := map[string]any{"writerId": "ghost"}
	e.Enrich(context.Background(), payload)

	assert.Equal(t, "unknown", payload["writerNickname"])
	assert.Equal(t, "/static/default.png", payload["writerProfileImage"])
}

func TestEnrichBackfillsDefaultsForPartialResolution(t *testing.T) {
	e := NewEngine([]Rule{writerRule(map[string]map[string]any{
		"u1": {"writerNickname": "Alice"},
	})})

	payload := map[string]any{"writerId": "u1"}
	e.Enrich(context.Background(), payload)

	assert.Equal(t, "Alice", payload["writerNickname"])
	assert.Equal(t, "/static/default.png", payload["writerProfileImage"])
}

func TestEnrichWalksNestedStructures(t *testing.T) {
	known := map[string]map[string]any{
		"u1": {"writerNickname": "Alice"},
		"u2": {"writerNickname": "Bob"},
	}
	e := NewEngine([]Rule{writerRule(known)})

	payload := map[string]any{
		"post": map[string]any{
			"writerId": "u1",
			"comments": []any{
				map[string]any{"writerId": "u2", "text": "hi"},
				map[string]any{"writerId": "ghost"},
			},
		},
	}
	e.Enrich(context.Background(), payload)

	post := payload["post"].(map[string]any)
	assert.Equal(t, "Alice", post["writerNickname"])

	comments := post["comments"].([]any)
	assert.Equal(t, "Bob", comments[0].(map[string]any)["writerNickname"])
	assert.Equal(t, "unknown", comments[1].(map[string]any)["writerNickname"])
}

func TestEnrichNoMatchingKeysIsNoOp(t *testing.T) {
	calls := 0
	rule := Rule{
		Key: "writerId",
		Resolver: ResolverFunc(func(context.Context, []string) map[string]map[string]any {
			calls++
			return nil
		}),
	}
	e := NewEngine([]Rule{rule})

	payload := map[string]any{"title": "hello", "items": []any{map[string]any{"n": 1}}}
	e.Enrich(context.Background(), payload)

	assert.Equal(t, 0, calls)
	assert.Equal(t, map[string]any{"title": "hello", "items": []any{map[string]any{"n": 1}}}, payload)
}

func TestEnrichFirstMatchingRuleWins(t *testing.T) {
	writerCalls := 0
	memberCalls := 0
	rules := []Rule{
		{
			Key: "writerId",
			Resolver: ResolverFunc(func(_ context.Context, ids []string) map[string]map[string]any {
				writerCalls += len(ids)
				return map[string]map[string]any{"u1": {"writerNickname": "Alice"}}
			}),
		},
		{
			Key: "memberId",
			Resolver: ResolverFunc(func(_ context.Context, ids []string) map[string]map[string]any {
				memberCalls += len(ids)
				return nil
			}),
		},
	}
	e := NewEngine(rules)

	// The node carries both keys; only the first rule applies.
	payload := map[string]any{"writerId": "u1", "memberId": "u1"}
	e.Enrich(context.Background(), payload)

	assert.Equal(t, 1, writerCalls)
	assert.Equal(t, 0, memberCalls)
	assert.Equal(t, "Alice", payload["writerNickname"])
}

func TestEnrichNeverOverwritesExistingFields(t *testing.T) {
	e := NewEngine([]Rule{writerRule(map[string]map[string]any{
		"u1": {"writerNickname": "Alice"},
	})})

	payload := map[string]any{"writerId": "u1", "writerNickname": "Handwritten"}
	e.Enrich(context.Background(), payload)

	assert.Equal(t, "Handwritten", payload["writerNickname"])
}

func TestEnrichIsIdempotent(t *testing.T) {
	e := NewEngine([]Rule{writerRule(map[string]map[string]any{
		"u1": {"writerNickname": "Alice"},
	})})

	payload := map[string]any{"writerId": "u1"}
	e.Enrich(context.Background(), payload)
	first := len(payload)

	e.Enrich(context.Background(), payload)

	assert.Equal(t, first, len(payload))
	assert.Equal(t, "Alice", payload["writerNickname"])
}

func TestEnrichDedupesIDs(t *testing.T) {
	var batches [][]string
	rule := Rule{
		Key: "writerId",
		Resolver: ResolverFunc(func(_ context.Context, ids []string) map[string]map[string]any {
			batches = append(batches, ids)
			return nil
		}),
	}
	e := NewEngine([]Rule{rule})

	payload := []any{
		map[string]any{"writerId": "u1"},
		map[string]any{"writerId": "u1"},
		map[string]any{"writerId": "u2"},
	}
	e.Enrich(context.Background(), payload)

	require.Len(t, batches, 1)
	assert.ElementsMatch(t, []string{"u1", "u2"}, batches[0])
}

func TestEnrichTruncatesAtMaxIDs(t *testing.T) {
	var got []string
	rule := Rule{
		Key: "writerId",
		Resolver: ResolverFunc(func(_ context.Context, ids []string) map[string]map[string]any {
			got = ids
			return nil
		}),
		Defaults: map[string]any{"writerNickname": "unknown"},
	}
	e := NewEngine([]Rule{rule}, WithMaxIDs(2))

	payload := []any{
		map[string]any{"writerId": "u1"},
		map[string]any{"writerId": "u2"},
		map[string]any{"writerId": "u3"},
	}
	e.Enrich(context.Background(), payload)

	assert.Len(t, got, 2)

	// Truncated sites still receive defaults.
	for _, node := range payload {
		assert.Contains(t, node.(map[string]any), "writerNickname")
	}
}

func TestEnrichIgnoresNonStringIDs(t *testing.T) {
	calls := 0
	rule := Rule{
		Key: "writerId",
		Resolver: ResolverFunc(func(context.Context, []string) map[string]map[string]any {
			calls++
			return nil
		}),
	}
	e := NewEngine([]Rule{rule})

	payload := []any{
		map[string]any{"writerId": 42},
		map[string]any{"writerId": ""},
		map[string]any{"writerId": nil},
	}
	e.Enrich(context.Background(), payload)

	assert.Equal(t, 0, calls)
}

func TestEnrichNilAndScalarPayloads(t *testing.T) {
	e := NewEngine([]Rule{writerRule(nil)})

	e.Enrich(context.Background(), nil)
	e.Enrich(context.Background(), "just a string")
	e.Enrich(context.Background(), 42)
}
