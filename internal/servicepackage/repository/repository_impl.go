package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ispbill/internal/servicepackage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const packageColumns = `id, title, speed, speed_type, amount, currency, gateway_id, billing_cycle_id, published, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Package, error) {
	var pkg domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT `+packageColumns+` FROM packages WHERE id = ?`,
		id,
	).Scan(&pkg).Error
	if err != nil {
		return nil, err
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}

func (r *repo) FindCheapest(ctx context.Context, db *gorm.DB) (*domain.Package, error) {
	var pkg domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT ` + packageColumns + ` FROM packages ORDER BY amount ASC, id ASC LIMIT 1`,
	).Scan(&pkg).Error
	if err != nil {
		return nil, err
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}

func (r *repo) ListPublishedSetupItems(ctx context.Context, db *gorm.DB, packageID snowflake.ID) ([]domain.SetupItem, error) {
	var items []domain.SetupItem
	err := db.WithContext(ctx).
		Where("package_id = ? AND published = ?", packageID, true).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
