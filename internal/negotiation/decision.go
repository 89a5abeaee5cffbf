package negotiation

// Decision is what an inbound relayed description is taken to be.
type Decision int

const (
	// DecisionReject means no description is expected in the current state.
	DecisionReject Decision = iota
	// DecisionAcceptOffer means the text is an offer and the local side
	// becomes the answerer.
	DecisionAcceptOffer
	// DecisionAcceptAnswer means the text answers our outstanding offer.
	DecisionAcceptAnswer
)

func (d Decision) String() string {
	switch d {
	case DecisionAcceptOffer:
		return "accept-offer"
	case DecisionAcceptAnswer:
		return "accept-answer"
	default:
		return "reject"
	}
}

// Kind returns the description kind the decision implies, or 0 for
// DecisionReject.
func (d Decision) Kind() Kind {
	switch d {
	case DecisionAcceptOffer:
		return KindOffer
	case DecisionAcceptAnswer:
		return KindAnswer
	default:
		return 0
	}
}

// Infer decides how to treat inbound description text from local state
// alone; nothing in the text is consulted.
//
//   - no session: the text is an offer, we answer
//   - offerer whose offer has been relayed: the text is the answer
//   - anything else: rejected (a second offer never replaces a live session,
//     and no answer can exist for an offer the peer has not seen)
func Infer(hasSession bool, state State, role Role, relayed bool) Decision {
	if !hasSession {
		return DecisionAcceptOffer
	}
	if role == RoleOfferer && state == StateLocalDescriptionSet && relayed {
		return DecisionAcceptAnswer
	}
	return DecisionReject
}
