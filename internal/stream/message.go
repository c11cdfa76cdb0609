package stream

// Field is a single field/value pair of a message. Append input is a slice
// of fields so the producer controls field order on the wire.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Message is one entry of a stream. Immutable once appended.
type Message struct {
	ID     ID                `json:"id"`
	Fields map[string]string `json:"fields"`
}

// Phase records which step of the consume cycle delivered a message.
type Phase int

const (
	// PhaseNew marks a message never delivered to any consumer before.
	PhaseNew Phase = iota
	// PhasePending marks a message this consumer fetched previously but
	// never acknowledged.
	PhasePending
	// PhaseClaimed marks a message taken over from another consumer after
	// its idle threshold elapsed.
	PhaseClaimed
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhasePending:
		return "pending"
	case PhaseClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// Delivery is a message paired with the phase that produced it.
type Delivery struct {
	Message Message `json:"message"`
	Phase   Phase   `json:"phase"`
}

// Batch is the result of one consume cycle. Ordering follows phase
// priority: new deliveries first, then own pending, then claimed.
type Batch []Delivery

// Messages flattens the batch into bare messages, preserving order.
func (b Batch) Messages() []Message {
	msgs := make([]Message, 0, len(b))
	for _, d := range b {
		msgs = append(msgs, d.Message)
	}
	return msgs
}

// CountByPhase returns how many deliveries in the batch came from phase p.
func (b Batch) CountByPhase(p Phase) int {
	var n int
	for _, d := range b {
		if d.Phase == p {
			n++
		}
	}
	return n
}
