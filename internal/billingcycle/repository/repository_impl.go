package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ispbill/internal/billingcycle/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BillingCycle, error) {
	var cycle domain.BillingCycle
	err := db.WithContext(ctx).Raw(
		`SELECT id, title, duration, duration_unit, created_at
		 FROM billing_cycles WHERE id = ?`,
		id,
	).Scan(&cycle).Error
	if err != nil {
		return nil, err
	}
	if cycle.ID == 0 {
		return nil, nil
	}
	return &cycle, nil
}
