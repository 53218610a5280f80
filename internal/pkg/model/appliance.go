package model

import (
	"fmt"
	"slices"
	"time"
)

type (
	Name  string
	State string
)

func (n Name) String() string {
	return string(n)
}

func (s State) String() string {
	return string(s)
}

const (
	Fan   Name = "fan"
	Light Name = "light"

	On  State = "on"
	Off State = "off"
)

// Names is the closed set of appliances the system knows about, in display order.
var Names = []Name{Fan, Light}

var States = []State{On, Off}

func (n Name) Valid() bool {
	return slices.Contains(Names, n)
}

func (s State) Valid() bool {
	return slices.Contains(States, s)
}

// Toggle returns the opposite state.
func (s State) Toggle() State {
	if s == On {
		return Off
	}
	return On
}

type Appliance struct {
	ID          string    `json:"id"`
	Name        Name      `json:"name"`
	State       State     `json:"state"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type Appliances []Appliance

// Patch is a partial update of an appliance. Nil fields are left untouched.
type Patch struct {
	Name  *Name  `json:"name,omitempty"`
	State *State `json:"state,omitempty"`
}

func (p Patch) Validate() error {
	if p.Name == nil && p.State == nil {
		return &ValidationError{Field: "body", Reason: "at least one of name, state is required"}
	}
	if p.Name != nil && !p.Name.Valid() {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("%q is not one of %v", *p.Name, Names)}
	}
	if p.State != nil && !p.State.Valid() {
		return &ValidationError{Field: "state", Reason: fmt.Sprintf("%q is not one of %v", *p.State, States)}
	}
	return nil
}

// Apply returns a copy of a with the patch fields set.
func (p Patch) Apply(a Appliance) Appliance {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.State != nil {
		a.State = *p.State
	}
	return a
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
