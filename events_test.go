package mailvault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mailUpdate(op OperationType, id string) EntityUpdate {
	return EntityUpdate{Application: "mail", Type: "Mail", InstanceListID: "l1", InstanceID: id, Operation: op}
}

func contactUpdate(op OperationType, id string) EntityUpdate {
	return EntityUpdate{Application: "mail", Type: "Contact", InstanceListID: "l2", InstanceID: id, Operation: op}
}

func TestReduceEvents(t *testing.T) {
	tests := []struct {
		name string
		in   []EntityUpdate
		want []EntityUpdate
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "single event passes through",
			in:   []EntityUpdate{mailUpdate(OperationCreate, "m1")},
			want: []EntityUpdate{mailUpdate(OperationCreate, "m1")},
		},
		{
			name: "update folds into create",
			in: []EntityUpdate{
				mailUpdate(OperationCreate, "m1"),
				mailUpdate(OperationUpdate, "m1"),
			},
			want: []EntityUpdate{mailUpdate(OperationCreate, "m1")},
		},
		{
			name: "updates collapse",
			in: []EntityUpdate{
				mailUpdate(OperationUpdate, "m1"),
				mailUpdate(OperationUpdate, "m1"),
				mailUpdate(OperationUpdate, "m1"),
			},
			want: []EntityUpdate{mailUpdate(OperationUpdate, "m1")},
		},
		{
			name: "delete supersedes update",
			in: []EntityUpdate{
				mailUpdate(OperationUpdate, "m1"),
				mailUpdate(OperationDelete, "m1"),
			},
			want: []EntityUpdate{mailUpdate(OperationDelete, "m1")},
		},
		{
			name: "delete cancels create",
			in: []EntityUpdate{
				mailUpdate(OperationCreate, "m1"),
				mailUpdate(OperationUpdate, "m1"),
				mailUpdate(OperationDelete, "m1"),
			},
			want: []EntityUpdate{},
		},
		{
			name: "bare delete survives",
			in:   []EntityUpdate{mailUpdate(OperationDelete, "m1")},
			want: []EntityUpdate{mailUpdate(OperationDelete, "m1")},
		},
		{
			name: "recreation after delete stands on its own",
			in: []EntityUpdate{
				mailUpdate(OperationDelete, "m1"),
				mailUpdate(OperationCreate, "m1"),
			},
			want: []EntityUpdate{
				mailUpdate(OperationDelete, "m1"),
				mailUpdate(OperationCreate, "m1"),
			},
		},
		{
			name: "unrelated instances keep their order",
			in: []EntityUpdate{
				contactUpdate(OperationCreate, "c1"),
				mailUpdate(OperationCreate, "m1"),
				mailUpdate(OperationDelete, "m1"),
				contactUpdate(OperationUpdate, "c2"),
			},
			want: []EntityUpdate{
				contactUpdate(OperationCreate, "c1"),
				contactUpdate(OperationUpdate, "c2"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReduceEvents(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
