package models

import "github.com/google/uuid"

// Enrollment is the read-only view of a program enrollment that CE records
// hang off. The enrollment domain owns the record.
type Enrollment struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	CocID    string
}
