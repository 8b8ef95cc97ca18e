// Package table implements the in-memory table state machine fed by the
// replication apply channel.
package table

// CommandType identifies a table operation encoded in the replicated log.
type CommandType string

// Supported table commands.
const (
	PutCmd    CommandType = "put"
	DeleteCmd CommandType = "delete"
)

// Command is the serialized operation applied to the table store.
type Command struct {
	Type  CommandType `json:"type"`
	Key   string      `json:"key"`
	Value string      `json:"value,omitempty"`
}
