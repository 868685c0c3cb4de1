package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkaninda/signoffs/internal/security"
)

// RoleRepository implements security.RoleStore.
type RoleRepository struct {
	db *gorm.DB
}

var _ security.RoleStore = (*RoleRepository)(nil)

// NewRoleRepository creates a RoleRepository.
func NewRoleRepository(db *gorm.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// LoadRBACConfig loads all roles and user assignments.
func (r *RoleRepository) LoadRBACConfig(ctx context.Context) (security.RBACConfig, error) {
	var roles []RoleModel
	if err := conn(ctx, r.db).Preload("Permissions").Find(&roles).Error; err != nil {
		return security.RBACConfig{}, fmt.Errorf("loading roles: %w", err)
	}

	roleMap := make(map[string]security.Role, len(roles))
	names := make(map[uuid.UUID]string, len(roles))
	for _, rm := range roles {
		roleMap[rm.Name] = toSecurityRole(&rm)
		names[rm.ID] = rm.Name
	}

	var assignments []UserRoleModel
	if err := conn(ctx, r.db).Find(&assignments).Error; err != nil {
		return security.RBACConfig{}, fmt.Errorf("loading user roles: %w", err)
	}

	userRoles := make(map[string]string, len(assignments))
	for _, ur := range assignments {
		if name, ok := names[ur.RoleID]; ok {
			userRoles[ur.UserID] = name
		}
	}

	return security.RBACConfig{
		Roles:     roleMap,
		UserRoles: userRoles,
	}, nil
}

// SaveRole creates or updates a role and replaces its permissions.
func (r *RoleRepository) SaveRole(ctx context.Context, role security.Role) error {
	return conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var rm RoleModel
		err := tx.Where("name = ?", role.Name).First(&rm).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rm = RoleModel{ID: uuid.New(), Name: role.Name}
			if err := tx.Create(&rm).Error; err != nil {
				return fmt.Errorf("creating role %q: %w", role.Name, err)
			}
		case err != nil:
			return fmt.Errorf("looking up role %q: %w", role.Name, err)
		}

		// Replace permissions: delete old, insert new.
		if err := tx.Where("role_id = ?", rm.ID).Delete(&PermissionModel{}).Error; err != nil {
			return fmt.Errorf("clearing permissions for %q: %w", role.Name, err)
		}
		for _, name := range role.Permissions {
			pm := PermissionModel{ID: uuid.New(), RoleID: rm.ID, Name: name}
			if err := tx.Create(&pm).Error; err != nil {
				return fmt.Errorf("creating permission %q: %w", name, err)
			}
		}
		return nil
	})
}

// AssignUserRole sets the role for a user, replacing any previous assignment.
func (r *RoleRepository) AssignUserRole(ctx context.Context, userID, roleName string) error {
	return conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var rm RoleModel
		if err := tx.Where("name = ?", roleName).First(&rm).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %q", security.ErrUnknownRole, roleName)
			}
			return fmt.Errorf("looking up role %q: %w", roleName, err)
		}

		if err := tx.Where("user_id = ?", userID).Delete(&UserRoleModel{}).Error; err != nil {
			return fmt.Errorf("clearing user role: %w", err)
		}
		ur := UserRoleModel{UserID: userID, RoleID: rm.ID}
		if err := tx.Create(&ur).Error; err != nil {
			return fmt.Errorf("assigning role: %w", err)
		}
		return nil
	})
}
