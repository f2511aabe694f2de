package model

// FilterCriteria is a conjunction of disjunctions: every non-empty dimension
// must match, and any one value within a dimension is enough.
type FilterCriteria struct {
	Platforms     []Platform `json:"platforms,omitempty"`
	Countries     []string   `json:"countries,omitempty"`
	ChatTypes     []ChatType `json:"chat_types,omitempty"`
	UnreadOnly    bool       `json:"unread_only,omitempty"`
	UnrepliedOnly bool       `json:"unreplied_only,omitempty"`
	AssignedTo    []string   `json:"assigned_to,omitempty"`
	Tags          []string   `json:"tags,omitempty"`

	// Customer profile facets
	Levels           []string `json:"levels,omitempty"`
	Types            []string `json:"types,omitempty"`
	Categories       []string `json:"categories,omitempty"`
	Budgets          []string `json:"budgets,omitempty"`
	IntentQuantities []string `json:"intent_quantities,omitempty"`
	Purposes         []string `json:"purposes,omitempty"`
	Urgencies        []string `json:"urgencies,omitempty"`
}

// IsEmpty reports whether no dimension constrains the result.
func (f FilterCriteria) IsEmpty() bool {
	return len(f.Platforms) == 0 && len(f.Countries) == 0 && len(f.ChatTypes) == 0 &&
		!f.UnreadOnly && !f.UnrepliedOnly && len(f.AssignedTo) == 0 && len(f.Tags) == 0 &&
		len(f.Levels) == 0 && len(f.Types) == 0 && len(f.Categories) == 0 &&
		len(f.Budgets) == 0 && len(f.IntentQuantities) == 0 && len(f.Purposes) == 0 &&
		len(f.Urgencies) == 0
}
