// Package character manages user-owned practice partner characters.
//
// A character is created when its portrait has been generated and is visible
// only to its owner. Every store operation that addresses a single record
// takes the owner ID alongside the character ID; a mismatch behaves exactly
// like a missing record so that ownership cannot be probed.
package character

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Gender of a character. The dialogue voice defaults follow it.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// IsValid reports whether g is a recognised gender.
func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale
}

// Style is the character's speaking persona.
type Style string

const (
	StyleCheerful Style = "cheerful"
	StyleCalm     Style = "calm"
	StyleStrict   Style = "strict"
)

// IsValid reports whether s is a recognised style.
func (s Style) IsValid() bool {
	switch s {
	case StyleCheerful, StyleCalm, StyleStrict:
		return true
	}
	return false
}

// Character is one practice partner record.
type Character struct {
	ID      string `json:"id"`
	OwnerID string `json:"-"`
	Name    string `json:"name"`
	Gender  Gender `json:"gender"`
	Style   Style  `json:"style"`

	// PortraitRef is the generated portrait location, either a provider URL
	// or an application asset path.
	PortraitRef string `json:"portraitRef"`

	// ScenarioHint optionally remembers the scenario the character was
	// created for, so the UI can preselect it.
	ScenarioHint string `json:"scenarioHint,omitempty"`

	// UsageCount is how many times the character has been picked for a
	// scene. Never negative.
	UsageCount int `json:"usageCount"`

	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// Validate checks the character for storable field values.
func (c *Character) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("character: id is required"))
	}
	if c.OwnerID == "" {
		errs = append(errs, errors.New("character: owner id is required"))
	}
	if c.Name == "" {
		errs = append(errs, errors.New("character: name is required"))
	}
	if !c.Gender.IsValid() {
		errs = append(errs, fmt.Errorf("character: gender %q is invalid; valid values: male, female", c.Gender))
	}
	if !c.Style.IsValid() {
		errs = append(errs, fmt.Errorf("character: style %q is invalid; valid values: cheerful, calm, strict", c.Style))
	}
	if c.UsageCount < 0 {
		errs = append(errs, fmt.Errorf("character: usage count %d must not be negative", c.UsageCount))
	}
	return errors.Join(errs...)
}

// Store provides owner-scoped CRUD operations for characters.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new character. The character is validated before
	// insertion. Returns an error if the ID already exists.
	Create(ctx context.Context, c *Character) error

	// Get retrieves a character by ID for the given owner. Returns
	// (nil, nil) if no such character exists for that owner.
	Get(ctx context.Context, ownerID, id string) (*Character, error)

	// List returns all of the owner's characters, most recently used first.
	List(ctx context.Context, ownerID string) ([]Character, error)

	// Delete removes the owner's character. Deleting a character that does
	// not exist for that owner is not an error.
	Delete(ctx context.Context, ownerID, id string) error

	// MarkUsed increments the character's usage count and stamps the last
	// used time. Returns (nil, nil) if no such character exists for that
	// owner; otherwise the updated record.
	MarkUsed(ctx context.Context, ownerID, id string) (*Character, error)
}
