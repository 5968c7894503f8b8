package models

import "fmt"

// Identity keys a message entry: either a client-generated temporary id for
// an optimistic entry, or the server-assigned id. The two never collide.
type Identity struct {
	pending bool
	value   string
}

// Pending returns the identity of an unconfirmed local entry
func Pending(tempID string) Identity { return Identity{pending: true, value: tempID} }

// Confirmed returns the identity of a server-assigned entry
func Confirmed(id string) Identity { return Identity{value: id} }

// IsPending reports whether the identity is a temporary one
func (i Identity) IsPending() bool { return i.pending }

// Value returns the underlying id
func (i Identity) Value() string { return i.value }

// IsZero reports whether the identity is unset
func (i Identity) IsZero() bool { return i.value == "" }

func (i Identity) String() string {
	if i.pending {
		return fmt.Sprintf("pending(%s)", i.value)
	}
	return fmt.Sprintf("confirmed(%s)", i.value)
}
