// Package enrich injects denormalized reference data into generic response
// payloads. The engine deep-walks a decoded JSON value, collects reference
// ids under recognized key names, resolves them in one batch, and writes
// the resolved fields back at every node where an id was found. Payload
// producers never know enrichment exists.
package enrich

import (
	"context"

	"github.com/edgefront/bffgw/internal/observability"
)

// DefaultMaxIDs caps how many distinct ids one enrichment pass may
// resolve. Collections beyond the cap are truncated with a warning rather
// than issuing unbounded batch calls.
const DefaultMaxIDs = 5000

// Resolver resolves reference ids to their denormalized fields. Ids that
// resolve nowhere are absent from the result; resolution never fails the
// caller.
type Resolver interface {
	GetBatch(ctx context.Context, ids []string) map[string]map[string]any
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, ids []string) map[string]map[string]any

// GetBatch implements Resolver.
func (f ResolverFunc) GetBatch(ctx context.Context, ids []string) map[string]map[string]any {
	return f(ctx, ids)
}

// Rule recognizes one reference-id key. When a map node carries Key, the
// resolver's fields for that id are injected into the node; Defaults are
// injected instead when the id does not resolve.
type Rule struct {
	// Key is the map key holding the reference id, e.g. "writerId".
	Key string

	// Resolver resolves collected ids for this rule.
	Resolver Resolver

	// Defaults are injected when an id fails to resolve, so consumers
	// always see the enriched fields.
	Defaults map[string]any
}

// Engine applies a priority-ordered rule list to payloads.
type Engine struct {
	rules   []Rule
	maxIDs  int
	logger  observability.Logger
	metrics *observability.Metrics
}

// EngineOption is a functional option for configuring the engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger for the engine.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxIDs overrides the id cap.
func WithMaxIDs(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxIDs = n
		}
	}
}

// WithEngineMetrics sets the metrics sink for the engine.
func WithEngineMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an enrichment engine. Rule order is the match
// priority: at each map node only the first rule whose key is present
// applies, even when several keys match.
func NewEngine(rules []Rule, opts ...EngineOption) *Engine {
	e := &Engine{
		rules:  rules,
		maxIDs: DefaultMaxIDs,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// site is one map node where a rule matched, kept so injection reuses the
// node reference instead of walking the payload twice.
type site struct {
	node map[string]any
	rule int
	id   string
}

// Enrich walks payload and injects resolved fields in place. The payload
// must be a decoded generic JSON value (maps, slices, scalars). Payloads
// with no matching keys are untouched; total resolution failure degrades
// to injecting defaults at every site. Enrich never fails.
func (e *Engine) Enrich(ctx context.Context, payload any) {
	if len(e.rules) == 0 || payload == nil {
		return
	}

	sites := e.collect(payload)
	if len(sites) == 0 {
		return
	}

	// Dedupe ids per rule, capped at maxIDs across the whole payload.
	idsByRule := make([][]string, len(e.rules))
	seen := make(map[int]map[string]struct{})
	total := 0
	truncated := false

	for _, s := range sites {
		byRule := seen[s.rule]
		if byRule == nil {
			byRule = make(map[string]struct{})
			seen[s.rule] = byRule
		}
		if _, ok := byRule[s.id]; ok {
			continue
		}
		if total >= e.maxIDs {
			truncated = true
			continue
		}
		byRule[s.id] = struct{}{}
		idsByRule[s.rule] = append(idsByRule[s.rule], s.id)
		total++
	}

	if truncated {
		e.logger.Warn("enrichment id collection truncated",
			observability.Int("cap", e.maxIDs),
			observability.Int("sites", len(sites)),
		)
	}
	if e.metrics != nil {
		e.metrics.RecordEnrichment(total, truncated)
	}

	resolved := make([]map[string]map[string]any, len(e.rules))
	resolvedCount := 0
	for i, ids := range idsByRule {
		if len(ids) == 0 {
			continue
		}
		resolved[i] = e.rules[i].Resolver.GetBatch(ctx, ids)
		resolvedCount += len(resolved[i])
	}

	if resolvedCount == 0 && total > 0 {
		if e.metrics != nil {
			e.metrics.RecordEnrichmentDegraded()
		}
		e.logger.Debug("enrichment resolved nothing, injecting defaults",
			observability.Int("ids", total),
		)
	}

	e.inject(sites, resolved)
}

// collect deep-walks the payload and returns every map node where a rule
// matches. Only maps and slices are descended into.
func (e *Engine) collect(node any) []site {
	var sites []site
	e.walk(node, &sites)
	return sites
}

func (e *Engine) walk(node any, sites *[]site) {
	switch v := node.(type) {
	case map[string]any:
		// First matching key wins so a node with several recognized keys
		// has one unambiguous enrichment target.
		for i, rule := range e.rules {
			raw, ok := v[rule.Key]
			if !ok {
				continue
			}
			if id, ok := raw.(string); ok && id != "" {
				*sites = append(*sites, site{node: v, rule: i, id: id})
			}
			break
		}
		for _, child := range v {
			e.walk(child, sites)
		}

	case []any:
		for _, child := range v {
			e.walk(child, sites)
		}
	}
}

// inject writes resolved fields at every site. Fields already present in
// the node are never overwritten.
func (e *Engine) inject(sites []site, resolved []map[string]map[string]any) {
	for _, s := range sites {
		rule := e.rules[s.rule]

		fields, ok := resolved[s.rule][s.id]
		if !ok {
			fields = rule.Defaults
		}

		for key, value := range fields {
			if _, exists := s.node[key]; exists {
				continue
			}
			s.node[key] = value
		}

		// Defaults also backfill fields the resolver did not return, so
		// the enriched shape is stable for consumers.
		if ok {
			for key, value := range rule.Defaults {
				if _, exists := s.node[key]; exists {
					continue
				}
				s.node[key] = value
			}
		}
	}
}
