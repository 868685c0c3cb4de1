package postgres

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// conn returns the transaction carried by ctx, or db bound to ctx.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// Atomic runs fn in a transaction. Repositories called with the context
// passed to fn join the transaction. Nested calls reuse the outer one.
func Atomic(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Models returns every persisted model in FK-dependency order.
func Models() []any {
	return []any{
		&StampModel{},
		&SignetModel{},
		&ProcessModel{},
		&RoleModel{},
		&PermissionModel{},
		&UserRoleModel{},
		&AuditEventModel{},
	}
}
