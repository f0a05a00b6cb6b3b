package formula

// Groups buckets raw field tokens by the dataset that serves them. Both the
// dataset order and each token list preserve first appearance in the config,
// keeping downloads and diagnostics reproducible.
type Groups struct {
	datasets []string
	tokens   map[string][]string
	seen     map[string]map[string]bool
}

// GroupByDataset assigns each spec's raw tokens to the spec's dataset,
// deduplicating per dataset. Two aliases in different datasets may reference
// the same token independently.
func GroupByDataset(specs []Spec) *Groups {
	g := &Groups{
		tokens: make(map[string][]string),
		seen:   make(map[string]map[string]bool),
	}
	for _, s := range specs {
		bucket, ok := g.seen[s.Dataset]
		if !ok {
			bucket = make(map[string]bool)
			g.seen[s.Dataset] = bucket
			g.datasets = append(g.datasets, s.Dataset)
		}
		for _, tok := range ExtractTokens(s.Expression) {
			if !bucket[tok] {
				bucket[tok] = true
				g.tokens[s.Dataset] = append(g.tokens[s.Dataset], tok)
			}
		}
	}
	return g
}

// Datasets returns the dataset slugs in first-seen order.
func (g *Groups) Datasets() []string { return g.datasets }

// Tokens returns the raw field codes one dataset must provide, in first-seen
// order.
func (g *Groups) Tokens(dataset string) []string { return g.tokens[dataset] }

// TotalTokens counts tokens across all datasets.
func (g *Groups) TotalTokens() int {
	n := 0
	for _, toks := range g.tokens {
		n += len(toks)
	}
	return n
}
