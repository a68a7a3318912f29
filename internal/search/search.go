package search

// Result is a single room hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatorID string `json:"creatorId"`
}

// Query describes a room search. ActorEmail scopes results to rooms the
// actor appears in; it is never optional.
type Query struct {
	Text       string
	ActorEmail string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a room search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push rooms into a search index.
type Indexer interface {
	IndexRoom(record RoomRecord) error
	DeleteRoom(id string) error
}

// RoomRecord is the data we index for a room. MemberEmails mirrors the
// access map so results can be filtered per actor.
type RoomRecord struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	CreatorID    string   `json:"creatorId"`
	MemberEmails []string `json:"memberEmails"`
}
