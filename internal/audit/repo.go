package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tillstock-backend/pkg/db/models"
)

// Repository persists audit_logs rows. Rows are never updated or deleted.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, row *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// ListByEntity returns the trail for one entity, oldest first.
func (r *Repository) ListByEntity(ctx context.Context, companyID uuid.UUID, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND entity_type = ? AND entity_id = ?", companyID, entityType, entityID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
