package coordinator

// EventType enumerates the events the coordinator emits to its host
// as a narrow typed enum.
type EventType int

const (
	EventReady EventType = iota
	EventComplete
	EventProgress
	EventUpdated
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventComplete:
		return "complete"
	case EventProgress:
		return "progress"
	case EventUpdated:
		return "updated"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to a Torrent's host over the channel returned by
// Events(). Progress carries a value in [0,1], populated only for
// EventProgress. Err carries the load failure, populated only for
// EventError.
type Event struct {
	Type     EventType
	Progress float64
	Err      error
}

const eventBufferSize = 64

// emit delivers e to the host's channel without blocking the
// coordinator's single execution context. A host that falls behind
// drops events rather than stalling piece/peer/tracker handling.
func (t *Torrent) emit(e Event) {
	select {
	case t.events <- e:
	default:
	}
}

// Events returns the channel the host drains for lifecycle, progress
// and error notifications. There is exactly one reader per Torrent.
func (t *Torrent) Events() <-chan Event {
	return t.events
}
