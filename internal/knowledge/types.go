package knowledge

import "time"

// Snippet is one indexed unit of knowledge-base text: a single meaningful
// line of a source document together with its provenance.
type Snippet struct {
	ID         string
	Content    string
	SourceFile string
	LineNumber int
	CreatedAt  time.Time
}

// Result pairs a retrieved snippet with its similarity to the query,
// normalized to [0, 1] where 1 is an exact match.
type Result struct {
	Snippet    Snippet
	Similarity float64
}

// SearchOption adjusts a single search call.
type SearchOption func(*searchConfig)

type searchConfig struct {
	limit     int
	threshold float64
}

// WithLimit caps the number of results returned.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithThreshold sets the minimum similarity a result must reach.
func WithThreshold(t float64) SearchOption {
	return func(c *searchConfig) {
		c.threshold = t
	}
}
