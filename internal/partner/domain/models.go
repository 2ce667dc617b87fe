package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Partner is a billed customer. Sub-accounts point at their commercial
// partner through ParentID.
type Partner struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	ParentID  *snowflake.ID `gorm:"index" json:"parent_id,omitempty"`
	Name      string        `gorm:"type:varchar(255);not null" json:"name"`
	Email     string        `gorm:"type:varchar(255)" json:"email,omitempty"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Partner) TableName() string { return "partners" }

// CommercialPartnerID returns the partner that carries receivables.
func (p Partner) CommercialPartnerID() snowflake.ID {
	if p.ParentID != nil && *p.ParentID != 0 {
		return *p.ParentID
	}
	return p.ID
}
