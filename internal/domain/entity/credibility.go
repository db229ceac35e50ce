package entity

// SourceCredibility maps a domain to a read-mostly weight in [0,1], used by
// the ranker's credibility component. Unknown domains default to 0.5
// (see rank.DefaultCredibilityWeight).
type SourceCredibility struct {
	Domain string
	Weight float64
}
