// Package moderation bans, unbans and promotes users. Banning revokes every
// session before stripping roles, so the next login finds a role-less user.
package moderation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tunehub/authcore/identity"
	"github.com/tunehub/authcore/session"
)

// SessionClearer revokes every session of a user.
type SessionClearer interface {
	ClearAllSessions(ctx context.Context, userID string) session.Outcome
}

// Service applies moderation decisions.
type Service struct {
	users    identity.Store
	sessions SessionClearer
	logger   *zap.Logger
}

// NewService returns a Service. A nil logger discards output.
func NewService(users identity.Store, sessions SessionClearer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, sessions: sessions, logger: logger}
}

// Ban signs userID out everywhere and removes all of its roles.
func (s *Service) Ban(ctx context.Context, userID string) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return fmt.Errorf("ban %s: %w", userID, err)
	}

	out := s.sessions.ClearAllSessions(ctx, userID)
	if out == session.OutcomeFailed {
		s.logger.Warn("ban proceeding without clearing sessions", zap.String("user_id", userID))
	}

	if err := s.users.RemoveRoles(ctx, userID); err != nil {
		return fmt.Errorf("ban %s: %w", userID, err)
	}
	s.logger.Info("user banned", zap.String("user_id", userID), zap.Stringer("sessions", out))
	return nil
}

// Unban restores the default User role.
func (s *Service) Unban(ctx context.Context, userID string) error {
	if err := s.users.AddRole(ctx, userID, identity.RoleUser); err != nil {
		return fmt.Errorf("unban %s: %w", userID, err)
	}
	s.logger.Info("user unbanned", zap.String("user_id", userID))
	return nil
}

// Promote grants the Moderator role. The change shows up in the user's
// access token after their next login; renewal re-signs the claims of the
// expired token and keeps the old roles.
func (s *Service) Promote(ctx context.Context, userID string) error {
	roles, err := s.users.Roles(ctx, userID)
	if err != nil {
		return fmt.Errorf("promote %s: %w", userID, err)
	}
	if len(roles) == 0 {
		return fmt.Errorf("promote %s: %w", userID, ErrBanned)
	}
	if err := s.users.AddRole(ctx, userID, identity.RoleModerator); err != nil {
		return fmt.Errorf("promote %s: %w", userID, err)
	}
	s.logger.Info("user promoted", zap.String("user_id", userID))
	return nil
}
