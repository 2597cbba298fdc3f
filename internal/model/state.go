package model

// FlowState is the per-conversation state union. Exactly one of Add or Search
// is set, matching Flow.
type FlowState struct {
	Flow   FlowKind     `json:"flow"`
	Add    *AddState    `json:"add,omitempty"`
	Search *SearchState `json:"search,omitempty"`
}

// AddState tracks a participant moving through the add-shop wizard. Services
// holds the toggled tag selection in display order. Editing marks a one-field
// detour from the confirmation screen. SaveWarned is set after the first save
// attempt with no services selected, so the second attempt goes through.
type AddState struct {
	Step       Step       `json:"step"`
	Draft      ShopRecord `json:"draft"`
	Services   []string   `json:"services,omitempty"`
	Editing    bool       `json:"editing,omitempty"`
	SaveWarned bool       `json:"saveWarned,omitempty"`
}

// SearchState marks a conversation waiting for a search query.
type SearchState struct {
	AwaitingQuery bool `json:"awaitingQuery"`
}

func NewAddState() *FlowState {
	return &FlowState{
		Flow: FlowAdd,
		Add:  &AddState{Step: StepName},
	}
}

func NewSearchState() *FlowState {
	return &FlowState{
		Flow:   FlowSearch,
		Search: &SearchState{AwaitingQuery: true},
	}
}
