package models

import (
	"time"

	"gorm.io/gorm"
)

// InstanceProvider identifies the cloud backend an instance runs on
type InstanceProvider string

const (
	InstanceProviderOpenStack    InstanceProvider = "openstack"
	InstanceProviderDigitalOcean InstanceProvider = "digitalocean"
)

// Instance represents a provisioned virtual machine that holds one
// auto-assigned credential. Provisioning itself happens outside this
// service; the row exists so credential assignments have a target.
type Instance struct {
	ID         uint             `gorm:"column:id;primaryKey" json:"id"`
	Name       string           `gorm:"column:name;size:255;not null" json:"name"`
	Provider   InstanceProvider `gorm:"column:provider;size:32" json:"provider"`
	ExternalID string           `gorm:"column:external_id;size:255;index" json:"external_id"`
	Status     string           `gorm:"column:status;size:32;default:pending" json:"status"`
	OwnerID    *uint            `gorm:"column:owner_id;index" json:"owner_id"`
	CreatedAt  time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt  gorm.DeletedAt   `gorm:"column:deleted_at;index" json:"-"`
}

func (Instance) TableName() string {
	return "instances"
}
