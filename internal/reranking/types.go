package reranking

// Document is a candidate passage sent to the reranker.
type Document struct {
	ID      string
	Content string
}

// Result scores the document at Index of the request.
type Result struct {
	Index int
	Score float64
}
