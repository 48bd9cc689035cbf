package supervisor

import "github.com/google/uuid"

// Identity is a process-unique identifier a supervisor carries purely
// for log correlation, per spec §3. It has no meaning to the broker.
type Identity struct {
	component string
	id        string
}

// NewIdentity mints a fresh Identity for a supervisor of the given
// component kind ("connection", "channel", "topology", ...).
func NewIdentity(component string) Identity {
	return Identity{component: component, id: uuid.NewString()}
}

func (i Identity) String() string {
	return i.component + "-" + i.id
}

// Generation is a monotonically increasing counter, incremented each
// time a supervisor opens a fresh underlying handle. Deliveries and
// delivery tags are stamped with the generation of the channel that
// produced them so a stale ack from a replaced channel is never
// applied (spec §3, §5, glossary "Generation").
type Generation uint64
