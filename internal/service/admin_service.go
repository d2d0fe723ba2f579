package service

import (
	"context"
	"errors"
	"fmt"

	"stepwells-backend/internal/apperr"
	"stepwells-backend/internal/auth"
	"stepwells-backend/internal/models"
	"stepwells-backend/internal/store"
	"stepwells-backend/internal/util"

	"go.uber.org/zap"
)

// AdminStore is the persistence surface needed by AdminService.
type AdminStore interface {
	GetUser(ctx context.Context, uid string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetUserRole(ctx context.Context, uid, role string) error
	GrantAdminBootstrap(ctx context.Context, uid string) error
}

// AdminService manages role assignments.
type AdminService struct {
	store  AdminStore
	gate   *auth.Gate
	logger *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(store AdminStore, gate *auth.Gate) *AdminService {
	return &AdminService{
		store:  store,
		gate:   gate,
		logger: util.GetLogger(),
	}
}

// SetAdminRoleRequest targets a user by uid or email.
type SetAdminRoleRequest struct {
	TargetUID   string `json:"target_uid"`
	TargetEmail string `json:"target_email"`
}

// SetAdminRoleResponse acknowledges a grant.
type SetAdminRoleResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SetAdminRole grants the admin role. Existing admins may grant anyone;
// when no admin exists anywhere a caller may bootstrap exactly once by
// granting only themself. The zero-admins check and the grant are
// atomic, so concurrent bootstrap attempts cannot both succeed.
func (s *AdminService) SetAdminRole(ctx context.Context, identity *auth.Identity, req *SetAdminRoleRequest) (*SetAdminRoleResponse, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.SetAdminRole")
	defer span.End()

	if identity == nil {
		return nil, apperr.New(apperr.Unauthenticated, "must be logged in")
	}

	var target *models.User
	var err error
	switch {
	case req.TargetUID != "":
		target, err = s.store.GetUser(ctx, req.TargetUID)
	case req.TargetEmail != "":
		target, err = s.store.GetUserByEmail(ctx, req.TargetEmail)
	default:
		return nil, apperr.New(apperr.InvalidArgument, "must provide target_uid or target_email")
	}
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.New(apperr.NotFound, "target user not found")
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to resolve target user")
	}

	callerIsAdmin, err := s.gate.VerifyAdmin(ctx, identity)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to check role")
	}

	if callerIsAdmin {
		if err := s.store.SetUserRole(ctx, target.UID, models.RoleAdmin); err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "failed to set role")
		}
	} else {
		// Bootstrap path: only self-targeting, and only while no admin
		// exists anywhere.
		if target.UID != identity.UID {
			return nil, apperr.New(apperr.PermissionDenied, "only admins can assign admin roles")
		}
		if err := s.store.GrantAdminBootstrap(ctx, target.UID); err != nil {
			if errors.Is(err, store.ErrAdminsExist) {
				return nil, apperr.New(apperr.PermissionDenied, "only admins can assign admin roles")
			}
			return nil, apperr.Wrap(err, apperr.Internal, "failed to set role")
		}
		s.logger.Warn("Admin bootstrap performed", zap.String("uid", target.UID))
	}

	s.logger.Info("Admin role granted",
		zap.String("target_uid", target.UID),
		zap.String("granted_by", identity.UID))

	return &SetAdminRoleResponse{
		Success: true,
		Message: fmt.Sprintf("User %s is now an admin.", target.Email),
	}, nil
}

// RemoveAdminRole demotes a user back to customer. Admin-only;
// self-removal is rejected so the system cannot lose its last admin by
// accident.
func (s *AdminService) RemoveAdminRole(ctx context.Context, identity *auth.Identity, targetUID string) error {
	ctx, span := util.StartSpan(ctx, "AdminService.RemoveAdminRole")
	defer span.End()

	if identity == nil {
		return apperr.New(apperr.Unauthenticated, "must be logged in")
	}
	if err := s.gate.RequireAdmin(ctx, identity); err != nil {
		return err
	}
	if targetUID == "" {
		return apperr.New(apperr.InvalidArgument, "must provide target_uid")
	}
	if targetUID == identity.UID {
		return apperr.New(apperr.FailedPrecondition, "you cannot remove your own admin role")
	}

	if err := s.store.SetUserRole(ctx, targetUID, models.RoleCustomer); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return apperr.New(apperr.NotFound, "target user not found")
		}
		return apperr.Wrap(err, apperr.Internal, "failed to set role")
	}

	s.logger.Info("Admin role removed",
		zap.String("target_uid", targetUID),
		zap.String("removed_by", identity.UID))
	return nil
}
