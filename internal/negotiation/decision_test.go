package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfer(t *testing.T) {
	cases := []struct {
		name       string
		hasSession bool
		state      State
		role       Role
		relayed    bool
		want       Decision
	}{
		{"no session", false, StateIdle, RoleUnassigned, false, DecisionAcceptOffer},
		{"offerer awaiting answer", true, StateLocalDescriptionSet, RoleOfferer, true, DecisionAcceptAnswer},
		{"offerer offer not yet relayed", true, StateLocalDescriptionSet, RoleOfferer, false, DecisionReject},
		{"offerer still creating offer", true, StateRoleAssigned, RoleOfferer, false, DecisionReject},
		{"offerer established", true, StateEstablished, RoleOfferer, true, DecisionReject},
		{"answerer applying offer", true, StateRoleAssigned, RoleAnswerer, false, DecisionReject},
		{"answerer with remote offer", true, StateRemoteDescriptionSet, RoleAnswerer, false, DecisionReject},
		{"answerer answer committed", true, StateLocalDescriptionSet, RoleAnswerer, false, DecisionReject},
		{"answerer established", true, StateEstablished, RoleAnswerer, true, DecisionReject},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Infer(c.hasSession, c.state, c.role, c.relayed))
		})
	}
}

func TestDecisionKind(t *testing.T) {
	assert.Equal(t, KindOffer, DecisionAcceptOffer.Kind())
	assert.Equal(t, KindAnswer, DecisionAcceptAnswer.Kind())
	assert.Equal(t, Kind(0), DecisionReject.Kind())
}

func TestDescriptionIsImmutableValue(t *testing.T) {
	d := NewOffer("v=0")
	cp := d
	assert.Equal(t, KindOffer, cp.Kind())
	assert.Equal(t, "v=0", cp.Body())
	assert.False(t, d.IsZero())
	assert.True(t, Description{}.IsZero())
}
