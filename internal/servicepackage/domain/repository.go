package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Package, error)
	// FindCheapest returns the package with the lowest amount, ties broken by id.
	FindCheapest(ctx context.Context, db *gorm.DB) (*Package, error)
	ListPublishedSetupItems(ctx context.Context, db *gorm.DB, packageID snowflake.ID) ([]SetupItem, error)
}

var (
	ErrNotFound   = errors.New("package_not_found")
	ErrNoPackages = errors.New("no_packages")
)
