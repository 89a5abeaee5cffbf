package negotiation

// State is the negotiation progress of a Session.
//
// The offerer walks RoleAssigned → LocalDescriptionSet → RemoteDescriptionSet
// → Established; it accepts an answer only once its offer has been relayed,
// and the last two steps both happen in acceptAnswer. The answerer walks RoleAssigned →
// RemoteDescriptionSet → LocalDescriptionSet → Established, the last step
// happening when its answer becomes relay-ready. Established is terminal.
type State int

const (
	StateIdle State = iota
	StateRoleAssigned
	StateLocalDescriptionSet
	StateRemoteDescriptionSet
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRoleAssigned:
		return "role-assigned"
	case StateLocalDescriptionSet:
		return "local-description-set"
	case StateRemoteDescriptionSet:
		return "remote-description-set"
	case StateEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// Role is the side a Session plays in the handshake. It never changes once
// assigned.
type Role int

const (
	RoleUnassigned Role = iota
	RoleOfferer
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return "unassigned"
	}
}

// GatheringState tracks network candidate gathering for the local
// description.
type GatheringState int

const (
	GatheringIdle GatheringState = iota
	GatheringInProgress
	GatheringComplete
)

func (g GatheringState) String() string {
	switch g {
	case GatheringIdle:
		return "idle"
	case GatheringInProgress:
		return "gathering"
	case GatheringComplete:
		return "complete"
	default:
		return "unknown"
	}
}
