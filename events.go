package mailvault

// OperationType is the kind of change an entity update describes.
type OperationType int

const (
	OperationCreate OperationType = iota
	OperationUpdate
	OperationDelete
)

// EntityUpdate is one entity change inside an event batch.
type EntityUpdate struct {
	Application    string
	Type           string
	InstanceListID string
	InstanceID     string
	Operation      OperationType
}

// EventBatch is the wire form of one server event batch: an ordered,
// time-derived-id-keyed collection of entity updates for one security group.
type EventBatch struct {
	// ID is the batch's list-element id; ID.ElementID is the generated
	// batch id whose timestamp orders batches within the group.
	ID     IDTuple
	Events []EntityUpdate
}

// QueuedBatch is one unit of indexer work: the updates of one batch scoped
// to its group.
type QueuedBatch struct {
	GroupID string
	BatchID string
	Events  []EntityUpdate
}

// ReduceEvents coalesces the updates of one batch per entity instance,
// preserving the relative order of the surviving events: an update folds into
// the create or update before it, a delete supersedes a preceding update, and
// a create cancelled by a later delete drops both.
func ReduceEvents(events []EntityUpdate) []EntityUpdate {
	if len(events) < 2 {
		return events
	}

	type instanceKey struct {
		Application string
		Type        string
		ListID      string
		ID          string
	}
	last := map[instanceKey]int{}
	kept := make([]*EntityUpdate, 0, len(events))

	for i := range events {
		ev := events[i]
		key := instanceKey{ev.Application, ev.Type, ev.InstanceListID, ev.InstanceID}
		idx, seen := last[key]
		if !seen || kept[idx] == nil {
			kept = append(kept, &ev)
			last[key] = len(kept) - 1
			continue
		}
		prev := kept[idx]
		switch {
		case prev.Operation == OperationCreate && ev.Operation == OperationDelete:
			kept[idx] = nil
			delete(last, key)
		case prev.Operation == OperationUpdate && ev.Operation == OperationDelete:
			prev.Operation = OperationDelete
		case ev.Operation == OperationCreate:
			// re-creation after a delete stands on its own
			kept = append(kept, &ev)
			last[key] = len(kept) - 1
		default:
			// the surviving create or update already covers this change
		}
	}

	out := make([]EntityUpdate, 0, len(kept))
	for _, ev := range kept {
		if ev != nil {
			out = append(out, *ev)
		}
	}
	return out
}
