package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shoplane/commerce-core/internal/domain"
)

// EnsureProfile resolves the local profile for a verified principal, creating
// it on first sight. Registration is driven by the identity provider, so this
// is the only place profiles come into existence.
func (s *Service) EnsureProfile(ctx context.Context, p *domain.Principal, requestID string) (domain.User, error) {
	u := s.begin(domain.OpViewProfile, requestID)
	if err := u.authorize(p); err != nil {
		return domain.User{}, err
	}

	user, err := s.deps.Users.GetBySubject(ctx, p.Subject)
	if err == nil {
		return user, u.finish(ctx)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, u.fail(err)
	}

	now := s.nowFn()
	user = domain.User{
		ID:        s.idFn(),
		Subject:   p.Subject,
		Email:     p.Email,
		Roles:     roleNames(p.Roles),
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.deps.Users.Create(writeContext(ctx), user)
	if err != nil {
		// Two concurrent first logins race on Create; the loser reads
		// the winner's profile.
		if errors.Is(err, domain.ErrConflict) {
			if existing, getErr := s.deps.Users.GetBySubject(ctx, p.Subject); getErr == nil {
				return existing, u.finish(ctx)
			}
		}
		return domain.User{}, u.fail(err)
	}

	if err := u.emit(domain.TopicUserEvents, domain.EventUserRegistered, created.ID, created); err != nil {
		return domain.User{}, u.fail(err)
	}
	return created, u.finish(ctx)
}

// UpdateProfile applies a partial profile edit under the caller's observed
// revision.
func (s *Service) UpdateProfile(ctx context.Context, p *domain.Principal, req UpdateProfileRequest, expected domain.Revision) (domain.User, error) {
	u := s.begin(domain.OpUpdateProfile, req.RequestID)
	if err := u.authorize(p); err != nil {
		return domain.User{}, err
	}

	current, err := s.deps.Users.GetBySubject(ctx, p.Subject)
	if err != nil {
		return domain.User{}, u.fail(err)
	}

	updated, err := s.deps.Users.Update(writeContext(ctx), current.ID, expected, func(user *domain.User) error {
		if name := strings.TrimSpace(req.Name); name != "" {
			user.Name = name
		}
		if email := strings.TrimSpace(req.Email); email != "" {
			if !strings.Contains(email, "@") {
				return fmt.Errorf("%w: malformed email", domain.ErrInvalidInput)
			}
			user.Email = email
		}
		user.UpdatedAt = s.nowFn()
		return nil
	})
	if err != nil {
		return domain.User{}, u.fail(err)
	}

	if err := u.emit(domain.TopicUserEvents, domain.EventUserUpdated, updated.ID, updated); err != nil {
		return domain.User{}, u.fail(err)
	}
	return updated, u.finish(ctx)
}

// currentUser resolves the stored profile behind a verified principal.
func (s *Service) currentUser(ctx context.Context, p *domain.Principal) (domain.User, error) {
	user, err := s.deps.Users.GetBySubject(ctx, p.Subject)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve profile: %w", err)
	}
	return user, nil
}

func roleNames(roles []domain.Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	return names
}
