package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Transport selects how radcheck statements reach a gateway.
type Transport string

const (
	// TransportSQL writes directly to the gateway's RADIUS MySQL database.
	TransportSQL Transport = "sql"
	// TransportHTTP posts raw statements to the gateway's query relay.
	TransportHTTP Transport = "http"
)

const DefaultRadiusAuthPort = 1812

// Gateway is a RADIUS-backed network access server.
type Gateway struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Name           string       `gorm:"type:varchar(255);not null" json:"name"`
	IPAddress      string       `gorm:"type:varchar(255);not null" json:"ip_address"`
	Username       string       `gorm:"type:varchar(255)" json:"username,omitempty"`
	Password       string       `gorm:"type:varchar(255)" json:"-"`
	DatabaseName   string       `gorm:"column:database_name;type:varchar(255)" json:"database_name,omitempty"`
	Transport      Transport    `gorm:"type:varchar(8);not null;default:'sql'" json:"transport"`
	RadiusSecret   string       `gorm:"type:varchar(255)" json:"-"`
	RadiusAuthPort int          `gorm:"not null;default:1812" json:"radius_auth_port"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Gateway) TableName() string { return "gateways" }

// RadCheck is a row of the FreeRADIUS radcheck table on the gateway database.
type RadCheck struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"type:varchar(64);not null;index"`
	Attribute string `gorm:"type:varchar(64);not null"`
	Op        string `gorm:"type:char(2);not null;default:'=='"`
	Value     string `gorm:"type:varchar(253);not null"`
}

// TableName sets the database table name.
func (RadCheck) TableName() string { return "radcheck" }
