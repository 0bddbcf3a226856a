package domain

// Edge is a tagged, directed link between two nodes of the graph service.
type Edge struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
	Tag string `json:"tag"`
}

// EdgeQuery filters edges. Empty fields match anything.
type EdgeQuery struct {
	Src string
	Dst string
	Tag string
}

// Matches reports whether e satisfies q.
func (q EdgeQuery) Matches(e Edge) bool {
	return (q.Src == "" || q.Src == e.Src) &&
		(q.Dst == "" || q.Dst == e.Dst) &&
		(q.Tag == "" || q.Tag == e.Tag)
}
