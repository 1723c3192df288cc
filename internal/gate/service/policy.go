package service

import (
	"context"

	"github.com/zonegate/server/internal/gate/store"
)

// PolicyEvaluator authorizes a (user, destination-zone) pair against the
// access-rule allowlist.  Rules are destination-only: the source zone is
// never consulted, and exits to outside are always permitted by policy
// (topology is checked separately by the coordinator).
type PolicyEvaluator struct {
	dir store.DirectoryStore
}

func NewPolicyEvaluator(dir store.DirectoryStore) *PolicyEvaluator {
	return &PolicyEvaluator{dir: dir}
}

// CanTransit reports whether userID may enter toZoneID.  A nil toZoneID
// means exit to outside, which is always allowed.  The fromZoneID argument
// is part of the contract but deliberately unused.
func (e *PolicyEvaluator) CanTransit(ctx context.Context, userID string, _ /* fromZoneID */, toZoneID *string) (bool, error) {
	if toZoneID == nil {
		return true, nil
	}
	return e.dir.HasAccess(ctx, userID, *toZoneID)
}
