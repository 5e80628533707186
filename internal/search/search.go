package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultTask    ResultType = "task"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	TaskID    string     `json:"taskId"`
	ProjectID string     `json:"projectId"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterProjectID string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexTask(t TaskRecord) error
	IndexComment(c CommentRecord) error
	DeleteTask(id string) error
	DeleteComment(id string) error
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"projectId"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
}

// CommentRecord is the data we index for a comment.
type CommentRecord struct {
	ID         string `json:"id"`
	Body       string `json:"body"`
	TaskID     string `json:"taskId"`
	ProjectID  string `json:"projectId"`
	AuthorName string `json:"authorName"`
}
