package interaction

import (
	"context"
	"errors"
	"fmt"

	"teamsync/internal/directory"
)

// DirectoryHandlers are the built-in handlers that read and write the
// member directory.
type DirectoryHandlers struct {
	store directory.Store
}

func NewDirectoryHandlers(store directory.Store) *DirectoryHandlers {
	return &DirectoryHandlers{store: store}
}

func (h *DirectoryHandlers) Register(r *Router) {
	r.Command("/whoami", h.whoAmI)
	r.Command("/teamname", h.updateName)
	r.Action("rejoin_team", h.rejoin)
}

func (h *DirectoryHandlers) member(ctx context.Context, req Request) (*directory.Member, error) {
	org, err := h.store.EnsureOrganization(ctx, req.OrgSlug)
	if err != nil {
		return nil, err
	}
	return h.store.FindByExternalID(ctx, org.ID, req.ExternalID)
}

// whoAmI reports the invoker's directory record, ephemerally.
func (h *DirectoryHandlers) whoAmI(ctx context.Context, req Request) (Reply, error) {
	m, err := h.member(ctx, req)
	if errors.Is(err, directory.ErrNotFound) {
		return Reply{
			Text:      "You're not in the team directory yet. You'll be added automatically on the next sync.",
			Ephemeral: true,
		}, nil
	}
	if err != nil {
		return Reply{}, err
	}

	status := "active"
	if !m.IsActive {
		status = "inactive"
	}
	return Reply{
		Text:      fmt.Sprintf("You're %s (%s), role %s, status %s.", m.Name, m.Email, m.Role, status),
		Ephemeral: true,
	}, nil
}

// updateName lets a member change their directory display name without
// waiting for the next sync.
func (h *DirectoryHandlers) updateName(ctx context.Context, req Request) (Reply, error) {
	if req.Text == "" {
		return Reply{Text: "Usage: /teamname <display name>", Ephemeral: true}, nil
	}

	m, err := h.member(ctx, req)
	if errors.Is(err, directory.ErrNotFound) {
		return Reply{
			Text:      "You're not in the team directory yet, so there's no name to change.",
			Ephemeral: true,
		}, nil
	}
	if err != nil {
		return Reply{}, err
	}

	m.Name = req.Text
	if err := h.store.UpdateMember(ctx, *m); err != nil {
		return Reply{}, err
	}

	return Reply{
		Text:      fmt.Sprintf("Got it, you're now listed as %s.", m.Name),
		Ephemeral: true,
	}, nil
}

// rejoin reactivates the invoker's own record from an interactive
// button. It touches one record only; the next full sync remains the
// source of truth for everyone else.
func (h *DirectoryHandlers) rejoin(ctx context.Context, req Request) (Reply, error) {
	m, err := h.member(ctx, req)
	if errors.Is(err, directory.ErrNotFound) {
		return Reply{
			Text:      "No directory record found to reactivate; you'll be added on the next sync.",
			Ephemeral: true,
		}, nil
	}
	if err != nil {
		return Reply{}, err
	}

	if m.IsActive {
		return Reply{Text: "You're already active.", Ephemeral: true}, nil
	}

	m.IsActive = true
	if err := h.store.UpdateMember(ctx, *m); err != nil {
		return Reply{}, err
	}

	return Reply{Text: "Welcome back! Your record is active again.", Ephemeral: true}, nil
}
