package negotiation

// Stream is a media stream as far as negotiation cares: something with an
// identity the engine knows how to attach or hand back.
type Stream interface {
	ID() string
}

// Engine is one connection handle of the connectivity stack. Description
// producing calls may block; callbacks fire from the engine's own goroutines.
type Engine interface {
	// AddStream attaches a local stream before the first description is made.
	AddStream(s Stream) error

	CreateOffer() (Description, error)
	CreateAnswer() (Description, error)
	SetLocalDescription(d Description) error
	SetRemoteDescription(d Description) error

	// LocalDescription returns the committed local description including
	// every candidate gathered so far.
	LocalDescription() (Description, bool)

	// OnGatheringComplete fires once candidate gathering for the committed
	// local description has finished.
	OnGatheringComplete(fn func())
	// OnRemoteStream fires for each remote stream that arrives.
	OnRemoteStream(fn func(Stream))

	Close() error
}

// EngineFactory creates the engine for a new Session.
type EngineFactory func() (Engine, error)
