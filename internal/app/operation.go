package app

import "fmt"

// Operation statuses recorded in the history.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks the CLI command being run. Operations start in memory
// with ID=0; only state-changing commands persist them, which gives them a
// database id and a history entry.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation that succeeds unless Fail is called.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = StatusError
}

// String renders the operation for log lines.
func (op *Operation) String() string {
	if op.Parameters == "" {
		return op.Operation
	}
	return fmt.Sprintf("%s(%s)", op.Operation, op.Parameters)
}
