package repository

import (
	"context"

	"shrimpshop/internal/domain/model"
	repo "shrimpshop/internal/repository"

	"gorm.io/gorm"
)

const (
	auditPageDefault = 50
	auditPageMax     = 200
)

type auditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) repo.AuditLogRepository {
	return &auditLogGormRepository{db: db}
}

// 在庫調整・出荷操作の記録。Tx内ではTxReposから同じdbで呼ばれる
func (r *auditLogGormRepository) Create(ctx context.Context, entry model.AuditLog) error {
	return r.db.WithContext(ctx).Create(&entry).Error
}

func (r *auditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	var out []model.AuditLog
	err := r.db.WithContext(ctx).
		Scopes(auditFilterScope(f), auditPageScope(f.Limit, f.Offset)).
		Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func auditFilterScope(f repo.AuditLogFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		conds := map[string]any{}
		if f.ActorUserID != nil {
			conds["actor_user_id"] = *f.ActorUserID
		}
		if f.Action != nil {
			conds["action"] = *f.Action
		}
		if f.ResourceType != nil {
			conds["resource_type"] = *f.ResourceType
		}
		if f.ResourceID != nil {
			conds["resource_id"] = *f.ResourceID
		}
		if len(conds) > 0 {
			db = db.Where(conds)
		}
		// 期間は両端含む
		if f.CreatedFrom != nil {
			db = db.Where("created_at >= ?", *f.CreatedFrom)
		}
		if f.CreatedTo != nil {
			db = db.Where("created_at <= ?", *f.CreatedTo)
		}
		return db
	}
}

func auditPageScope(limit, offset int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 || limit > auditPageMax {
			limit = auditPageDefault
		}
		if offset < 0 {
			offset = 0
		}
		return db.Limit(limit).Offset(offset)
	}
}
