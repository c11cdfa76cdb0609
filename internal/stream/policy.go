package stream

import (
	"fmt"
	"time"
)

// NewMessagesPolicy configures the new-message read step of a consume
// cycle. Count is also the target size of the assembled batch: the later
// steps only top the batch up to this many deliveries.
type NewMessagesPolicy struct {
	// Count is the maximum number of never-delivered messages to read.
	Count int64
	// Block is how long a read may wait for at least one new message to
	// arrive. A timeout with zero results is a normal empty result.
	Block time.Duration
}

func (p NewMessagesPolicy) Validate() error {
	if p.Count <= 0 {
		return fmt.Errorf("new messages count must be greater than zero")
	}
	if p.Block < 0 {
		return fmt.Errorf("new messages block duration must not be negative")
	}
	return nil
}

// PendingMessagesPolicy configures the self-pending read step: messages
// already delivered to this consumer name but never acknowledged.
type PendingMessagesPolicy struct {
	Count int64
}

func (p PendingMessagesPolicy) Validate() error {
	if p.Count <= 0 {
		return fmt.Errorf("pending messages count must be greater than zero")
	}
	return nil
}

// ClaimPolicy configures the claim step: taking over pending entries from
// other consumers once they have sat idle long enough.
type ClaimPolicy struct {
	Count int64
	// MinIdle is the grace period a pending entry must have been idle for
	// before it becomes claimable. A consumer legitimately still working on
	// a message should finish well inside this window.
	MinIdle time.Duration
}

func (p ClaimPolicy) Validate() error {
	if p.Count <= 0 {
		return fmt.Errorf("claim count must be greater than zero")
	}
	if p.MinIdle < 0 {
		return fmt.Errorf("claim min idle duration must not be negative")
	}
	return nil
}

// Policies bundles the three read policies of a consumer. Pure data, no
// implicit defaults.
type Policies struct {
	New     NewMessagesPolicy
	Pending PendingMessagesPolicy
	Claim   ClaimPolicy
}

func (p Policies) Validate() error {
	if err := p.New.Validate(); err != nil {
		return fmt.Errorf("invalid new messages policy: %w", err)
	}
	if err := p.Pending.Validate(); err != nil {
		return fmt.Errorf("invalid pending messages policy: %w", err)
	}
	if err := p.Claim.Validate(); err != nil {
		return fmt.Errorf("invalid claim policy: %w", err)
	}
	return nil
}
