package services

import (
	"errors"
	"fmt"
)

// Shared error taxonomy. The presentation layer maps these to user-facing
// messages; inside the engine they are matched with errors.Is.
var (
	// Lookup failures. The per-entity errors wrap ErrNotFound so callers
	// can match the whole category at once.
	ErrNotFound           = errors.New("not found")
	ErrTournamentNotFound = fmt.Errorf("tournament %w", ErrNotFound)
	ErrTeamNotFound       = fmt.Errorf("team %w", ErrNotFound)
	ErrMatchNotFound      = fmt.Errorf("match %w", ErrNotFound)
	ErrMemberNotFound     = fmt.Errorf("team membership %w", ErrNotFound)

	// Lifecycle and business rules
	ErrInvalidState     = errors.New("operation is not allowed in the current state")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrDuplicateName    = errors.New("name is already in use")
	ErrAlreadyRostered  = errors.New("user already captains or belongs to a team in this tournament")
	ErrProtectedRole    = errors.New("the team captain cannot be removed")
	ErrNotEnoughTeams   = errors.New("at least two teams are required to start")
	ErrTeamNameRequired = errors.New("team name is required")

	// Authorization
	ErrUnauthorized = errors.New("operation not allowed for this user")

	// Match protocol
	ErrProposalConflict = errors.New("another schedule proposal is pending; respond to it first")
	ErrInvalidScore     = errors.New("scores must differ to determine a winner")
)
