package models

// TermRule binds a search term to the handler its matching rows are assigned to.
type TermRule struct {
	Term    string `json:"term" yaml:"term"`
	Handler string `json:"handler" yaml:"handler"`
}

// HandlerGroup is the set of terms whose rows are committed together in a
// single assignment batch.
type HandlerGroup struct {
	Handler string   `json:"handler"`
	Terms   []string `json:"terms"`
}

// GroupByHandler groups rules by handler, keeping handlers in order of first
// appearance and terms in rule order.
func GroupByHandler(rules []TermRule) []HandlerGroup {
	index := make(map[string]int, len(rules))
	var groups []HandlerGroup
	for _, r := range rules {
		i, ok := index[r.Handler]
		if !ok {
			i = len(groups)
			index[r.Handler] = i
			groups = append(groups, HandlerGroup{Handler: r.Handler})
		}
		groups[i].Terms = append(groups[i].Terms, r.Term)
	}
	return groups
}

// RowCandidate is a transient view of one work-queue row produced by a scan.
// It is valid only until the next commit re-renders the table.
type RowCandidate struct {
	// RawText is the whitespace-normalised text of the whole row.
	RawText string

	// HasExistingAssignment is true when any cell carries the handler marker.
	HasExistingAssignment bool

	// Control is the CSS selector of the row's selection checkbox, empty
	// when the row has none with an id.
	Control string
}
