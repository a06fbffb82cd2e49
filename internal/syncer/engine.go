package syncer

import (
	"context"
	"strings"

	"teamsync/internal/directory"
	"teamsync/internal/logger"
	"teamsync/internal/slack"
)

// Engine diffs fetched channel membership against the internal
// directory and applies the minimal set of mutations. Re-running it
// with an unchanged fetch produces all-zero counts: no-op writes are
// never issued.
type Engine struct {
	store directory.Store
}

func NewEngine(store directory.Store) *Engine {
	return &Engine{store: store}
}

// Reconcile applies the two-pass sync. Pass one matches every active
// fetched identity (by external id first, then by email) and creates or
// updates records; pass two deactivates records whose external id no
// longer appears. Pass two runs strictly after pass one so an identity
// whose external id was backfilled mid-run is not deactivated in the
// same run. Per-record failures are logged and excluded from counts;
// they never abort the rest of the batch.
func (e *Engine) Reconcile(ctx context.Context, orgID string, fetched []slack.Member) (Outcome, []PendingOnboarding) {
	var out Outcome
	var pending []PendingOnboarding

	existing, err := e.store.ListMembers(ctx, orgID)
	if err != nil {
		out.Failure = &Failure{
			Code:   FailureSyncError,
			Detail: "listing directory members failed: " + err.Error() + "; check database connectivity and retry",
		}
		return out, nil
	}

	byExternal := make(map[string]*directory.Member)
	byEmail := make(map[string]*directory.Member)
	for i := range existing {
		m := &existing[i]
		if m.ExternalID != "" {
			byExternal[m.ExternalID] = m
		}
		if m.Email != "" {
			byEmail[strings.ToLower(m.Email)] = m
		}
	}

	activeIDs := make(map[string]bool)

	for _, f := range fetched {
		if !f.IsActive {
			continue
		}
		activeIDs[f.ExternalID] = true

		m := byExternal[f.ExternalID]
		if m == nil && f.Email != "" {
			m = byEmail[strings.ToLower(f.Email)]
		}

		if m == nil {
			e.create(ctx, orgID, f, &out, &pending)
			continue
		}

		changed := false
		reactivated := false

		if m.ExternalID == "" {
			m.ExternalID = f.ExternalID
			byExternal[f.ExternalID] = m
			changed = true
		}
		if f.Name != "" && m.Name != f.Name {
			m.Name = f.Name
			changed = true
		}
		if !m.IsActive {
			m.IsActive = true
			changed = true
			reactivated = true
		}

		if !changed {
			continue
		}

		if err := e.store.UpdateMember(ctx, *m); err != nil {
			logger.Error("member update failed", map[string]any{
				"member_id":   m.ID,
				"external_id": f.ExternalID,
				"error":       err.Error(),
			})
			continue
		}

		if reactivated {
			out.Reactivated++
		}
	}

	for i := range existing {
		m := &existing[i]
		if m.ExternalID == "" || !m.IsActive || activeIDs[m.ExternalID] {
			continue
		}

		m.IsActive = false
		if err := e.store.UpdateMember(ctx, *m); err != nil {
			logger.Error("member deactivation failed", map[string]any{
				"member_id":   m.ID,
				"external_id": m.ExternalID,
				"error":       err.Error(),
			})
			continue
		}
		out.Deactivated++
	}

	return out, pending
}

func (e *Engine) create(
	ctx context.Context,
	orgID string,
	f slack.Member,
	out *Outcome,
	pending *[]PendingOnboarding,
) {
	// Records need an email address; identities without one cannot be
	// onboarded and are picked up on a later run once the profile has
	// an email.
	if f.Email == "" {
		logger.Warn("skipping identity without email", map[string]any{
			"external_id": f.ExternalID,
		})
		return
	}

	raw, hash, err := directory.NewSetupToken()
	if err != nil {
		logger.Error("setup token generation failed", map[string]any{
			"external_id": f.ExternalID,
			"error":       err.Error(),
		})
		return
	}

	created, err := e.store.CreateMember(ctx, directory.Member{
		OrganizationID: orgID,
		ExternalID:     f.ExternalID,
		Email:          f.Email,
		Name:           f.Name,
		Role:           directory.DefaultRole,
		IsActive:       true,
	}, hash)
	if err != nil {
		logger.Error("member creation failed", map[string]any{
			"external_id": f.ExternalID,
			"error":       err.Error(),
		})
		return
	}

	out.Created++
	*pending = append(*pending, PendingOnboarding{
		ExternalID: created.ExternalID,
		Email:      created.Email,
		Name:       created.Name,
		SetupToken: raw,
	})
}
