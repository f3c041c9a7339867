package execution

import (
	"mit.edu/dsg/vexec/storage"
)

// ExecutionHashTable is a thin wrapper around a Go map keyed by the serialized bytes of a key tuple.
// It is meant for single-threaded execution operators.
type ExecutionHashTable[T any] struct {
	// The map key is a string view of the tuple's raw bytes. Go does not support byte slices as keys
	table     map[string]T
	keySchema *storage.RawTupleDesc

	// scratchBuffer is reused to serialize keys for lookups.
	scratchBuffer []byte
}

func NewExecutionHashTable[T any](keySchema *storage.RawTupleDesc) *ExecutionHashTable[T] {
	return &ExecutionHashTable[T]{
		table:         make(map[string]T),
		keySchema:     keySchema,
		scratchBuffer: make([]byte, keySchema.BytesPerTuple()),
	}
}

// Insert adds or replaces the value stored under key.
func (ht *ExecutionHashTable[T]) Insert(key storage.Tuple, value T) {
	key.WriteToBuffer(ht.scratchBuffer, ht.keySchema)
	// The map must own the key string; scratchBuffer is overwritten on the next call.
	ht.table[string(ht.scratchBuffer)] = value
}

// Get returns the value stored under key.
func (ht *ExecutionHashTable[T]) Get(key storage.Tuple) (value T, exists bool) {
	key.WriteToBuffer(ht.scratchBuffer, ht.keySchema)
	// The compiler elides the allocation for map lookups keyed by string(bytes).
	value, exists = ht.table[string(ht.scratchBuffer)]
	return
}

// Len returns the number of distinct keys.
func (ht *ExecutionHashTable[T]) Len() int {
	return len(ht.table)
}
