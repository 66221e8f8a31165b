package entity

import "fmt"

// IdentityType classifies a radio subscriber identity
type IdentityType string

const (
	IdentityISSI       IdentityType = "ISSI"       // individual subscriber
	IdentityGSSI       IdentityType = "GSSI"       // talk group
	IdentityDispatcher IdentityType = "DISPATCHER" // dispatcher console
)

// Identity is a party of a call or message. The zero value is an
// indeterminate identity.
type Identity struct {
	ID   string       `json:"id"`
	Type IdentityType `json:"type,omitempty"`
}

// NewIdentity creates an identity of the given type
func NewIdentity(id string, t IdentityType) Identity {
	return Identity{ID: id, Type: t}
}

// IsZero returns true if the identity is indeterminate
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// Equal compares ids; an empty type on either side matches any type
func (i Identity) Equal(other Identity) bool {
	if i.ID != other.ID {
		return false
	}
	return i.Type == "" || other.Type == "" || i.Type == other.Type
}

// IsDispatcher returns true for dispatcher console identities
func (i Identity) IsDispatcher() bool {
	return i.Type == IdentityDispatcher
}

func (i Identity) String() string {
	if i.Type == "" {
		return i.ID
	}
	return fmt.Sprintf("%s:%s", i.Type, i.ID)
}
