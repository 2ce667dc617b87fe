package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DurationUnit is the calendar unit a billing cycle is measured in.
type DurationUnit string

const (
	DurationUnitDays   DurationUnit = "days"
	DurationUnitWeeks  DurationUnit = "weeks"
	DurationUnitMonths DurationUnit = "months"
)

// BillingCycle is reference data describing how far a paid period extends.
type BillingCycle struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Title        string       `gorm:"type:varchar(255);not null" json:"title"`
	Duration     int          `gorm:"not null;default:1" json:"duration"`
	DurationUnit DurationUnit `gorm:"type:varchar(16);not null;default:'months'" json:"duration_unit"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (BillingCycle) TableName() string { return "billing_cycles" }
