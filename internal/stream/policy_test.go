package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicies_Validate(t *testing.T) {
	valid := Policies{
		New:     NewMessagesPolicy{Count: 10, Block: time.Second},
		Pending: PendingMessagesPolicy{Count: 10},
		Claim:   ClaimPolicy{Count: 10, MinIdle: time.Minute},
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Policies)
	}{
		{name: "zero new count", mutate: func(p *Policies) { p.New.Count = 0 }},
		{name: "negative new count", mutate: func(p *Policies) { p.New.Count = -1 }},
		{name: "negative block", mutate: func(p *Policies) { p.New.Block = -time.Second }},
		{name: "zero pending count", mutate: func(p *Policies) { p.Pending.Count = 0 }},
		{name: "zero claim count", mutate: func(p *Policies) { p.Claim.Count = 0 }},
		{name: "negative min idle", mutate: func(p *Policies) { p.Claim.MinIdle = -time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestPolicies_ZeroDurationsAllowed(t *testing.T) {
	p := Policies{
		New:     NewMessagesPolicy{Count: 1},
		Pending: PendingMessagesPolicy{Count: 1},
		Claim:   ClaimPolicy{Count: 1},
	}
	assert.NoError(t, p.Validate())
}

func TestIdentity_Validate(t *testing.T) {
	assert.NoError(t, Identity{Stream: "s", Group: "g", Consumer: "c"}.Validate())
	assert.Error(t, Identity{Group: "g", Consumer: "c"}.Validate())
	assert.Error(t, Identity{Stream: "s", Consumer: "c"}.Validate())
	assert.Error(t, Identity{Stream: "s", Group: "g"}.Validate())
}
