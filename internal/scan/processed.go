package scan

// ProcessedSet holds the message ids handled during this process lifetime.
// It is owned by a single Controller and is not safe for concurrent use.
type ProcessedSet map[string]struct{}

// NewProcessedSet creates an empty set
func NewProcessedSet() ProcessedSet {
	return make(ProcessedSet)
}

// Has reports whether id was already processed
func (s ProcessedSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add records id as processed
func (s ProcessedSet) Add(id string) {
	s[id] = struct{}{}
}

// Len returns the number of processed ids
func (s ProcessedSet) Len() int {
	return len(s)
}
