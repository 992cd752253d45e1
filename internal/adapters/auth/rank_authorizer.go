package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	apperrors "github.com/zatekoja/medlogistics/backend/pkg/errors"
)

// Policy maps each gated action to the minimum role allowed to perform it and
// each known actor to their role. Actors missing from the table get
// DefaultRole; actions missing from it are denied.
type Policy struct {
	DefaultRole string            `toml:"default_role"`
	Actions     map[string]string `toml:"actions"`
	Actors      map[string]string `toml:"actors"`
}

// LoadPolicy decodes a TOML policy file
func LoadPolicy(path string) (*Policy, error) {
	var p Policy
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("decoding authorization policy %s: %w", path, err)
	}
	return &p, nil
}

// DecodePolicy decodes a TOML policy document
func DecodePolicy(data string) (*Policy, error) {
	var p Policy
	if _, err := toml.Decode(data, &p); err != nil {
		return nil, fmt.Errorf("decoding authorization policy: %w", err)
	}
	return &p, nil
}

// RankAuthorizer implements providers.Authorizer by comparing the actor's rank
// with the action's minimum rank
type RankAuthorizer struct {
	mu          sync.RWMutex
	defaultRole entities.RoleLevel
	minimum     map[providers.Action]entities.RoleLevel
	actors      map[string]entities.RoleLevel
}

// NewRankAuthorizer validates the policy and builds an authorizer
func NewRankAuthorizer(p *Policy) (*RankAuthorizer, error) {
	a := &RankAuthorizer{
		defaultRole: entities.RoleViewer,
		minimum:     make(map[providers.Action]entities.RoleLevel, len(p.Actions)),
		actors:      make(map[string]entities.RoleLevel, len(p.Actors)),
	}
	if p.DefaultRole != "" {
		level, err := entities.ParseRoleLevel(p.DefaultRole)
		if err != nil {
			return nil, fmt.Errorf("default_role: %w", err)
		}
		a.defaultRole = level
	}
	for action, role := range p.Actions {
		level, err := entities.ParseRoleLevel(role)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", action, err)
		}
		a.minimum[providers.Action(action)] = level
	}
	for actor, role := range p.Actors {
		level, err := entities.ParseRoleLevel(role)
		if err != nil {
			return nil, fmt.Errorf("actor %s: %w", actor, err)
		}
		a.actors[actor] = level
	}
	return a, nil
}

// Assign sets an actor's role at runtime
func (a *RankAuthorizer) Assign(actorID string, role entities.RoleLevel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actors[actorID] = role
}

// Authorize permits the action when the actor's role is at least the minimum
func (a *RankAuthorizer) Authorize(ctx context.Context, actorID string, action providers.Action) error {
	if actorID == "" {
		return apperrors.NewUnauthorizedError(fmt.Sprintf("%s requires an authenticated actor", action))
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	required, ok := a.minimum[action]
	if !ok {
		return apperrors.NewUnauthorizedError(fmt.Sprintf("action %s is not permitted by policy", action))
	}
	role, ok := a.actors[actorID]
	if !ok {
		role = a.defaultRole
	}
	if !role.AtLeast(required) {
		return apperrors.NewUnauthorizedError(
			fmt.Sprintf("actor %s (%s) may not %s; requires %s", actorID, role, action, required))
	}
	return nil
}
