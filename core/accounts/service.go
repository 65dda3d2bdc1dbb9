// Package accounts implements the privileged account operations shared by the
// HTTP handlers and the bulk import routine: create an identity-provider
// account with its directory records, and delete one without leaving orphans.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hackhub/core/idp"
	"hackhub/core/store"
	"hackhub/core/utils"
)

type Service struct {
	provider idp.Provider
	profiles store.ProfilesStore
	roles    store.RolesStore
	logger   *utils.Logger
}

func NewService(provider idp.Provider, profiles store.ProfilesStore, roles store.RolesStore, logger *utils.Logger) *Service {
	return &Service{provider: provider, profiles: profiles, roles: roles, logger: logger}
}

type CreateParams struct {
	Email               string
	Password            string
	Name                string
	TeamID              string
	Phone               string
	TShirtSize          string
	DietaryRestrictions string
}

// Create provisions a pre-confirmed account and its profile + role records.
// The returned id is the identity provider's account identifier. Duplicate
// emails propagate the provider's error unchanged so callers can classify it
// with idp.IsDuplicate.
func (s *Service) Create(ctx context.Context, p CreateParams) (string, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if err := utils.ValidateEmail(email); err != nil {
		return "", err
	}
	if strings.TrimSpace(p.Name) == "" {
		return "", fmt.Errorf("name required")
	}
	if err := utils.ValidatePassword(p.Password); err != nil {
		return "", err
	}
	accountID, err := s.provider.CreateAccount(ctx, idp.NewAccount{
		Email:    email,
		Password: p.Password,
		Name:     strings.TrimSpace(p.Name),
	})
	if err != nil {
		return "", err
	}
	profile := &store.UserProfile{
		ID:                  accountID,
		Name:                strings.TrimSpace(p.Name),
		Email:               email,
		Phone:               strings.TrimSpace(p.Phone),
		TShirtSize:          strings.TrimSpace(p.TShirtSize),
		DietaryRestrictions: strings.TrimSpace(p.DietaryRestrictions),
	}
	if teamID := strings.TrimSpace(p.TeamID); teamID != "" {
		profile.TeamID = &teamID
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return "", fmt.Errorf("create profile for %s: %w", email, err)
	}
	if err := s.roles.SetRole(ctx, accountID, store.RoleParticipant); err != nil {
		return "", fmt.Errorf("assign default role for %s: %w", email, err)
	}
	return accountID, nil
}

// Delete removes the account from the identity provider and then its
// directory records. The provider deletion goes first: if it fails, the
// profile and role rows stay put so no login-less orphans appear.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.provider.DeleteAccount(ctx, userID); err != nil {
		return err
	}
	if err := s.profiles.Delete(ctx, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete profile %s: %w", userID, err)
	}
	return nil
}
