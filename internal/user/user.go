// Package user defines the account model and its persistence interface.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tier is a subscription level bounding per-metric monthly usage.
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// IsValid reports whether t is a recognised tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierStarter, TierPro, TierPremium:
		return true
	}
	return false
}

// Role separates regular accounts from administrative ones. Admins bypass
// quota checks and may access the admin API surface.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is one account record.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`

	// PasswordHash is the bcrypt hash of the account password. Empty for
	// accounts created through Google sign-in. Never serialised.
	PasswordHash string `json:"-"`

	// GoogleID links the account to a Google identity. Empty for password
	// accounts.
	GoogleID string `json:"-"`

	Role Role `json:"role"`
	Tier Tier `json:"tier"`

	// SubscriptionID is the payment provider's reference for the active
	// subscription. Empty on the free tier.
	SubscriptionID string `json:"-"`

	// SubscriptionProvider names the payment provider holding the
	// subscription (e.g., "stripe"). Empty on the free tier.
	SubscriptionProvider string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the user for storable field values.
func (u *User) Validate() error {
	var errs []error
	if u.ID == "" {
		errs = append(errs, errors.New("user: id is required"))
	}
	if !strings.Contains(u.Email, "@") {
		errs = append(errs, fmt.Errorf("user: email %q is invalid", u.Email))
	}
	if u.Role != "" && !u.Role.IsValid() {
		errs = append(errs, fmt.Errorf("user: role %q is invalid", u.Role))
	}
	if u.Tier != "" && !u.Tier.IsValid() {
		errs = append(errs, fmt.Errorf("user: tier %q is invalid", u.Tier))
	}
	return errors.Join(errs...)
}

// Store provides CRUD operations for user accounts.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new user. The user is validated before insertion.
	// Returns an error if the ID or email is already taken.
	Create(ctx context.Context, u *User) error

	// Get retrieves a user by ID. Returns (nil, nil) if not found.
	Get(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by email. Returns (nil, nil) if not found.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByGoogleID retrieves a user by Google identity. Returns (nil, nil)
	// if not found.
	GetByGoogleID(ctx context.Context, googleID string) (*User, error)

	// Update replaces an existing user record. The user is validated before
	// the update. Returns an error if the user is not found.
	Update(ctx context.Context, u *User) error

	// List returns all accounts ordered by creation time, newest first.
	List(ctx context.Context) ([]User, error)
}
