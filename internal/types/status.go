package types

// Status is a type for the lifecycle status of a row in the database.
// Any changes to this type should be reflected in the database schema by running migrations
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)
