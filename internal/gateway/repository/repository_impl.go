package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ispbill/internal/gateway/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, gw *domain.Gateway) error {
	return db.WithContext(ctx).Create(gw).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Gateway, error) {
	var gw domain.Gateway
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, ip_address, username, password, database_name, transport,
		        radius_secret, radius_auth_port, created_at, updated_at
		 FROM gateways WHERE id = ?`,
		id,
	).Scan(&gw).Error
	if err != nil {
		return nil, err
	}
	if gw.ID == 0 {
		return nil, nil
	}
	return &gw, nil
}

type resolver struct {
	repo domain.Repository
}

func ProvideResolver(repo domain.Repository) domain.Resolver {
	return &resolver{repo: repo}
}

func (r *resolver) ResolveForPackage(ctx context.Context, db *gorm.DB, gatewayID *snowflake.ID) (*domain.Gateway, error) {
	if gatewayID == nil || *gatewayID == 0 {
		return nil, domain.ErrNoGateway
	}
	gw, err := r.repo.FindByID(ctx, db, *gatewayID)
	if err != nil {
		return nil, err
	}
	if gw == nil {
		return nil, domain.ErrGatewayNotFound
	}
	return gw, nil
}
