package model

type SearchResult struct {
	Record        ShopRecord `json:"record"`
	DistanceMiles float64    `json:"distanceMiles"`
}

// SearchResultSet is a completed proximity search, cached per conversation so
// pagination works without re-reading the store.
type SearchResultSet struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}
