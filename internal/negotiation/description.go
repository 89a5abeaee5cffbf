package negotiation

// Kind tags a description with the side of the handshake that produced it.
type Kind int

const (
	KindOffer Kind = iota + 1
	KindAnswer
)

func (k Kind) String() string {
	switch k {
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// Description is one side's session description. The body is opaque to this
// package; only the engine interprets it. Values are immutable.
type Description struct {
	kind Kind
	body string
}

// NewOffer wraps body as an offer description.
func NewOffer(body string) Description {
	return Description{kind: KindOffer, body: body}
}

// NewAnswer wraps body as an answer description.
func NewAnswer(body string) Description {
	return Description{kind: KindAnswer, body: body}
}

func (d Description) Kind() Kind   { return d.kind }
func (d Description) Body() string { return d.body }

// IsZero reports whether d was never assigned.
func (d Description) IsZero() bool { return d.kind == 0 && d.body == "" }
