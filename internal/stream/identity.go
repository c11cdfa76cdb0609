package stream

import "fmt"

// Identity fixes which stream, consumer group and consumer name an
// instance operates as. Set at construction, immutable for the instance's
// lifetime. Consumer names must be unique within a group; in a deployment
// with replicated workers the pod or host name is a reasonable choice.
type Identity struct {
	Stream   string
	Group    string
	Consumer string
}

// Validate reports an error if any identifier is empty.
func (i Identity) Validate() error {
	if i.Stream == "" {
		return fmt.Errorf("stream name must not be empty")
	}
	if i.Group == "" {
		return fmt.Errorf("group name must not be empty")
	}
	if i.Consumer == "" {
		return fmt.Errorf("consumer name must not be empty")
	}
	return nil
}
