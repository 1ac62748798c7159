package rating

// Outcome is a rater's judgment of a pairwise match.
type Outcome string

const (
	OutcomeABetter     Outcome = "A_BETTER"
	OutcomeBBetter     Outcome = "B_BETTER"
	OutcomeBothGood    Outcome = "BOTH_GOOD"
	OutcomeNeitherGood Outcome = "NEITHER_GOOD"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeABetter, OutcomeBBetter, OutcomeBothGood, OutcomeNeitherGood:
		return true
	}
	return false
}

// HasWinner reports whether the outcome picks one side.
func (o Outcome) HasWinner() bool {
	return o == OutcomeABetter || o == OutcomeBBetter
}
