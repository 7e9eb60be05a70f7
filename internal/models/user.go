package models

// User is a person who can belong to groups and take part in expenses.
type User struct {
	// ID is the stable opaque identifier (UUID format).
	ID string

	// Name is the display name.
	Name string

	// Email is optional contact information.
	Email string

	// CreatedAt is the Unix timestamp when the user was created.
	CreatedAt int64
}
