package domain

import dErrors "compliance/pkg/domain-errors"

// Actor is the authenticated operator on whose behalf an operation runs.
// Every public service operation receives it explicitly; nothing reads the
// caller identity from ambient state.
type Actor struct {
	ID       ActorID
	TenantID TenantID
}

// NewActor builds an actor from already-parsed identifiers.
func NewActor(actorID ActorID, tenantID TenantID) Actor {
	return Actor{ID: actorID, TenantID: tenantID}
}

// Authenticate returns an unauthorized domain error when the actor or its
// tenant cannot be resolved.
func (a Actor) Authenticate() error {
	if a.ID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "missing actor context")
	}
	if a.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "missing tenant context")
	}
	return nil
}
