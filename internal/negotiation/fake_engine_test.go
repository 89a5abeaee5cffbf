package negotiation

import (
	"errors"
	"sync"
)

// fakeEngine is an in-memory Engine. Gathering never completes on its own;
// tests call completeGathering. Any method can be made to fail via failOn.
type fakeEngine struct {
	mu sync.Mutex

	failOn map[string]error

	streams  []Stream
	local    Description
	remote   Description
	gathered bool
	closed   int
	calls    []string

	// gatherOnSetLocal completes gathering inside SetLocalDescription, before
	// it returns.
	gatherOnSetLocal bool

	gatherDone func()
	remoteFn   func(Stream)
}

var errFake = errors.New("engine said no")

func newFakeEngine() *fakeEngine {
	return &fakeEngine{failOn: map[string]error{}}
}

func (f *fakeEngine) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeEngine) AddStream(s Stream) error {
	if err := f.record("AddStream"); err != nil {
		return err
	}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) CreateOffer() (Description, error) {
	if err := f.record("CreateOffer"); err != nil {
		return Description{}, err
	}
	return NewOffer("v=0 fake-offer"), nil
}

func (f *fakeEngine) CreateAnswer() (Description, error) {
	if err := f.record("CreateAnswer"); err != nil {
		return Description{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote.Kind() != KindOffer {
		return Description{}, errors.New("no remote offer")
	}
	return NewAnswer("v=0 fake-answer"), nil
}

func (f *fakeEngine) SetLocalDescription(d Description) error {
	if err := f.record("SetLocalDescription"); err != nil {
		return err
	}
	f.mu.Lock()
	f.local = d
	early := f.gatherOnSetLocal
	f.mu.Unlock()
	if early {
		f.completeGathering()
	}
	return nil
}

func (f *fakeEngine) SetRemoteDescription(d Description) error {
	if err := f.record("SetRemoteDescription"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.Kind() == KindAnswer && f.local.Kind() != KindOffer {
		return errors.New("answer without local offer")
	}
	f.remote = d
	return nil
}

// LocalDescription appends a candidate line once gathering is done, the way
// a real engine's final description carries its candidates.
func (f *fakeEngine) LocalDescription() (Description, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.local.IsZero() {
		return Description{}, false
	}
	if !f.gathered {
		return f.local, true
	}
	body := f.local.Body() + "\na=candidate:fake"
	if f.local.Kind() == KindOffer {
		return NewOffer(body), true
	}
	return NewAnswer(body), true
}

func (f *fakeEngine) OnGatheringComplete(fn func()) {
	f.mu.Lock()
	f.gatherDone = fn
	f.mu.Unlock()
}

func (f *fakeEngine) OnRemoteStream(fn func(Stream)) {
	f.mu.Lock()
	f.remoteFn = fn
	f.mu.Unlock()
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) completeGathering() {
	f.mu.Lock()
	f.gathered = true
	fn := f.gatherDone
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *fakeEngine) deliverRemote(s Stream) {
	f.mu.Lock()
	fn := f.remoteFn
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *fakeEngine) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed > 0
}

// fakeFactory hands out engines and remembers them in creation order.
type fakeFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	prepare func(*fakeEngine)
	err     error
}

func (ff *fakeFactory) New() (Engine, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.err != nil {
		return nil, ff.err
	}
	e := newFakeEngine()
	if ff.prepare != nil {
		ff.prepare(e)
	}
	ff.engines = append(ff.engines, e)
	return e, nil
}

func (ff *fakeFactory) last() *fakeEngine {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.engines) == 0 {
		return nil
	}
	return ff.engines[len(ff.engines)-1]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.engines)
}

type fakeStream string

func (s fakeStream) ID() string { return string(s) }
