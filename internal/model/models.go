package model

import (
	"database/sql"
	"time"
)

// Operation is one recorded run of a state-changing CLI command.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string // command name, e.g. "Rescan" or "DeleteAll"
	Parameters string
	Status     string // "running", "success" or "error"
}

// Finished reports whether the operation has a recorded end time.
func (o *Operation) Finished() bool {
	return o.FinishedAt.Valid
}
