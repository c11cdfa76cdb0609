package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// ID identifies a single message in a stream. It is the
// millisecond timestamp assigned by the server plus a sequence number
// that disambiguates messages appended within the same millisecond.
// IDs are strictly increasing per stream and never reused.
type ID struct {
	Timestamp int64  `json:"timestamp"`
	Sequence  uint64 `json:"sequence"`
}

// ZeroID is the smallest possible id, used to address the beginning of a
// stream or of a consumer's pending list.
var ZeroID = ID{}

// ParseID parses the wire form "<timestamp>-<sequence>".
func ParseID(s string) (ID, error) {
	ts, seq, ok := strings.Cut(s, "-")
	if !ok {
		return ID{}, fmt.Errorf("malformed stream id %q", s)
	}

	t, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("malformed stream id timestamp %q: %w", s, err)
	}

	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("malformed stream id sequence %q: %w", s, err)
	}

	return ID{Timestamp: t, Sequence: n}, nil
}

// String returns the wire form "<timestamp>-<sequence>".
func (id ID) String() string {
	return strconv.FormatInt(id.Timestamp, 10) + "-" + strconv.FormatUint(id.Sequence, 10)
}

// Compare returns -1, 0 or 1 ordering ids first by timestamp, then by
// sequence.
func (id ID) Compare(other ID) int {
	switch {
	case id.Timestamp < other.Timestamp:
		return -1
	case id.Timestamp > other.Timestamp:
		return 1
	case id.Sequence < other.Sequence:
		return -1
	case id.Sequence > other.Sequence:
		return 1
	default:
		return 0
	}
}

// Before reports whether id orders strictly before other.
func (id ID) Before(other ID) bool {
	return id.Compare(other) < 0
}

// After reports whether id orders strictly after other.
func (id ID) After(other ID) bool {
	return id.Compare(other) > 0
}

// IsZero reports whether id is the zero id.
func (id ID) IsZero() bool {
	return id == ZeroID
}

// Next returns the smallest id strictly greater than id. Useful as an
// exclusive lower bound for range scans.
func (id ID) Next() ID {
	if id.Sequence == ^uint64(0) {
		return ID{Timestamp: id.Timestamp + 1}
	}
	return ID{Timestamp: id.Timestamp, Sequence: id.Sequence + 1}
}

// GroupStart is the position a consumer group begins delivering from when
// it is created. The zero value starts at the beginning of the stream.
type GroupStart struct {
	id   ID
	tail bool
}

// StartFrom positions a new group just after id: only messages with
// greater ids are delivered as new.
func StartFrom(id ID) GroupStart {
	return GroupStart{id: id}
}

// StartAtTail positions a new group at the live tail: only messages
// appended after group creation are delivered as new.
func StartAtTail() GroupStart {
	return GroupStart{tail: true}
}

// String returns the wire form of the start position.
func (s GroupStart) String() string {
	if s.tail {
		return "$"
	}
	return s.id.String()
}
