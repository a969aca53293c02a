package db

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

type OperatorRepository struct {
	db    *gorm.DB
	scope timeoutScope
}

func NewOperatorRepository(db *gorm.DB, scope timeoutScope) *OperatorRepository {
	return &OperatorRepository{db: db, scope: scope}
}

func (r *OperatorRepository) Create(ctx context.Context, op domain.Operator) error {
	if r.db == nil {
		return errDBUnavailable
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()
	model := OperatorModel{
		ID:          op.ID,
		TenantID:    op.TenantID,
		DisplayName: op.DisplayName,
		Login:       op.Login,
		SecretHash:  op.SecretHash,
		Role:        string(op.Role),
		Status:      string(op.Status),
		CreatedAt:   dbTime(op.CreatedAt),
		UpdatedAt:   dbTime(op.UpdatedAt),
	}
	return storeError(r.db.WithContext(ctx).Create(&model).Error)
}

func (r *OperatorRepository) GetByID(ctx context.Context, operatorID string) (domain.Operator, error) {
	if r.db == nil {
		return domain.Operator{}, errDBUnavailable
	}
	if !validID(operatorID) {
		return domain.Operator{}, domain.ErrNotFound
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()
	var model OperatorModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", operatorID).Error; err != nil {
		return domain.Operator{}, storeError(err)
	}
	return operatorFromModel(model), nil
}

func (r *OperatorRepository) FindByLogin(ctx context.Context, tenantID, login string) ([]domain.Operator, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()
	query := r.db.WithContext(ctx).Where("lower(login) = ?", strings.ToLower(login))
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	var models []OperatorModel
	if err := query.Order("id ASC").Limit(10).Find(&models).Error; err != nil {
		return nil, storeError(err)
	}
	out := make([]domain.Operator, 0, len(models))
	for _, model := range models {
		out = append(out, operatorFromModel(model))
	}
	return out, nil
}

func (r *OperatorRepository) UpdateSecret(ctx context.Context, operatorID, secretHash string, at time.Time) error {
	return r.update(ctx, operatorID, map[string]any{
		"secret_hash": secretHash,
		"updated_at":  dbTime(at),
	})
}

func (r *OperatorRepository) UpdateStatus(ctx context.Context, operatorID string, status domain.OperatorStatus, at time.Time) error {
	return r.update(ctx, operatorID, map[string]any{
		"status":     string(status),
		"updated_at": dbTime(at),
	})
}

func (r *OperatorRepository) update(ctx context.Context, operatorID string, values map[string]any) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if !validID(operatorID) {
		return domain.ErrNotFound
	}
	ctx, cancel := r.scope.ctx(ctx)
	defer cancel()
	res := r.db.WithContext(ctx).Model(&OperatorModel{}).Where("id = ?", operatorID).Updates(values)
	if res.Error != nil {
		return storeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func operatorFromModel(model OperatorModel) domain.Operator {
	return domain.Operator{
		ID:          model.ID,
		TenantID:    model.TenantID,
		DisplayName: model.DisplayName,
		Login:       model.Login,
		SecretHash:  model.SecretHash,
		Role:        domain.Role(model.Role),
		Status:      domain.OperatorStatus(model.Status),
		CreatedAt:   model.CreatedAt.UTC(),
		UpdatedAt:   model.UpdatedAt.UTC(),
	}
}
