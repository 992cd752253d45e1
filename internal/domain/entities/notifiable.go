package entities

import (
	"fmt"
	"strings"
)

// NotifiableKind enumerates the parties a domain event can be addressed to
type NotifiableKind string

const (
	NotifiablePatient  NotifiableKind = "patient"
	NotifiableDoctor   NotifiableKind = "doctor"
	NotifiableFacility NotifiableKind = "facility"
	NotifiableUser     NotifiableKind = "user"
)

// Notifiable is a tagged reference to a patient, doctor, facility or user
type Notifiable struct {
	Kind NotifiableKind `json:"kind"`
	ID   string         `json:"id"`
}

// ParseNotifiable parses the "kind:id" form used at the storage boundary
func ParseNotifiable(s string) (Notifiable, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Notifiable{}, fmt.Errorf("notifiable %q: expected kind:id", s)
	}
	n := Notifiable{Kind: NotifiableKind(kind), ID: id}
	if !n.Kind.Valid() {
		return Notifiable{}, fmt.Errorf("notifiable %q: unknown kind %q", s, kind)
	}
	return n, nil
}

// Valid reports whether k is one of the known notifiable kinds
func (k NotifiableKind) Valid() bool {
	switch k {
	case NotifiablePatient, NotifiableDoctor, NotifiableFacility, NotifiableUser:
		return true
	}
	return false
}

// IsZero reports whether the reference is unset
func (n Notifiable) IsZero() bool {
	return n.Kind == "" && n.ID == ""
}

func (n Notifiable) String() string {
	return string(n.Kind) + ":" + n.ID
}
