package idea

// Status represents the lifecycle state of an idea.
type Status string

const (
	StatusNew        Status = "new"
	StatusOnHold     Status = "on-hold"
	StatusOrganizing Status = "organizing"
	StatusInCreation Status = "in-creation"
	StatusUsed       Status = "used"
	StatusArchived   Status = "archived"
)

// transitions is the closed set of permitted status moves. Anything not
// listed here is rejected with InvalidTransitionError.
var transitions = map[Status][]Status{
	StatusNew:        {StatusOrganizing, StatusOnHold},
	StatusOnHold:     {StatusOrganizing, StatusNew},
	StatusOrganizing: {StatusInCreation, StatusOnHold},
	StatusInCreation: {StatusUsed, StatusOrganizing},
	StatusUsed:       {StatusArchived},
	StatusArchived:   {},
}

// IsValid checks if the status is a known lifecycle state.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is permitted.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// CheckTransition returns an InvalidTransitionError if the move from s to
// next is not in the transition table.
func (s Status) CheckTransition(next Status) error {
	if !s.CanTransition(next) {
		return &InvalidTransitionError{From: s, To: next}
	}
	return nil
}

// Statuses returns all lifecycle states in pipeline order.
func Statuses() []Status {
	return []Status{
		StatusNew,
		StatusOnHold,
		StatusOrganizing,
		StatusInCreation,
		StatusUsed,
		StatusArchived,
	}
}
