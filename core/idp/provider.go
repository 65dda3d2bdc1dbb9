// Package idp abstracts the privileged account service: the identity-provider
// capability that can create and delete authenticated accounts. Only a trusted
// backend process holding an elevated credential may use it.
package idp

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrDuplicateAccount = errors.New("account already registered")
	ErrUnknownToken     = errors.New("unknown or expired credential")
	ErrAccountNotFound  = errors.New("account not found")
)

// duplicateMessageShim matches the hosted provider's duplicate-signup message.
// Deployed providers only emit the message, not a structured code, so the
// substring check is kept as an intentional compatibility shim.
const duplicateMessageShim = "already been registered"

type Identity struct {
	ID    string
	Email string
}

type NewAccount struct {
	Email    string
	Password string
	// Name is attached as the account's display metadata.
	Name string
}

type Provider interface {
	// ResolveToken maps a caller-supplied bearer token to an identity.
	ResolveToken(ctx context.Context, token string) (*Identity, error)
	// CreateAccount provisions a pre-confirmed account and returns its id.
	// A duplicate email fails with an error satisfying IsDuplicate.
	CreateAccount(ctx context.Context, acc NewAccount) (string, error)
	DeleteAccount(ctx context.Context, accountID string) error
}

// IsDuplicate reports whether err signals an already-registered account,
// either structurally or via the provider's message shim.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateAccount) {
		return true
	}
	return strings.Contains(err.Error(), duplicateMessageShim)
}
