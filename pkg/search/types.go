package search

// Request represents a normalized web search request.
type Request struct {
	Query string
	Count int
}

// Result is a normalized search result.
type Result struct {
	Title       string
	URL         string
	Description string
	Published   string
	SiteName    string
}

// Response is a normalized search response.
type Response struct {
	Query     string
	Provider  string
	Count     int
	TookMs    int64
	Results   []Result
	NoResults bool
	Cached    bool
}
