package models

import (
	"time"
)

// AssignmentType is the pool class a credential belongs to. It controls
// which allocation path may claim the credential.
type AssignmentType string

const (
	AssignmentTypeUserRequestable    AssignmentType = "user_requestable"
	AssignmentTypeInstanceAutoAssign AssignmentType = "instance_auto_assign"
	AssignmentTypeReserved           AssignmentType = "reserved"
)

// ValidAssignmentType reports whether t is one of the recognized pool classes
func ValidAssignmentType(t AssignmentType) bool {
	switch t {
	case AssignmentTypeUserRequestable, AssignmentTypeInstanceAutoAssign, AssignmentTypeReserved:
		return true
	}
	return false
}

// Credential represents one imported WireGuard configuration in the pool.
// Optional config fields are pointers: nil means the field was absent from
// the imported source and must not be re-emitted on generation.
type Credential struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	FileHash string `gorm:"column:file_hash;size:64;not null;uniqueIndex" json:"file_hash"`

	// Network material
	InterfaceIP  string  `gorm:"column:interface_ip;size:255;not null" json:"interface_ip"`
	IPv4Address  string  `gorm:"column:ipv4_address;size:64" json:"ipv4_address"`
	IPv6Local    string  `gorm:"column:ipv6_local;size:64" json:"ipv6_local"`
	IPv6Global   string  `gorm:"column:ipv6_global;size:64" json:"ipv6_global"`
	PrivateKey   string  `gorm:"column:private_key;size:255;not null" json:"-"`
	PresharedKey *string `gorm:"column:preshared_key;size:255" json:"-"`
	Endpoint     string  `gorm:"column:endpoint;size:255;not null" json:"endpoint"`
	PublicKey    *string `gorm:"column:public_key;size:255" json:"public_key,omitempty"`

	// Optional passthrough fields, preserved verbatim from the import
	DNS                 *string `gorm:"column:dns;size:255" json:"dns,omitempty"`
	MTU                 *string `gorm:"column:mtu;size:16" json:"mtu,omitempty"`
	AllowedIPs          *string `gorm:"column:allowed_ips;size:512" json:"allowed_ips,omitempty"`
	PersistentKeepalive *string `gorm:"column:persistent_keepalive;size:16" json:"persistent_keepalive,omitempty"`
	RoutingTable        *string `gorm:"column:routing_table;size:32" json:"table,omitempty"`
	SaveConfig          *string `gorm:"column:save_config;size:16" json:"save_config,omitempty"`
	FwMark              *string `gorm:"column:fwmark;size:32" json:"fwmark,omitempty"`

	// Pool classification
	AssignmentType AssignmentType `gorm:"column:assignment_type;size:32;not null;default:user_requestable;index" json:"assignment_type"`

	// Allocation state
	IsAvailable          bool       `gorm:"column:is_available;default:true;index" json:"is_available"`
	IsActive             bool       `gorm:"column:is_active;default:true;index" json:"is_active"`
	AssignedToUserID     *uint      `gorm:"column:assigned_to_user_id;index" json:"assigned_to_user_id"`
	AssignedToInstanceID *uint      `gorm:"column:assigned_to_instance_id;index" json:"assigned_to_instance_id"`
	AssignedToUsername   string     `gorm:"column:assigned_to_username;size:100" json:"assigned_to_username"`
	AssignedAt           *time.Time `gorm:"column:assigned_at" json:"assigned_at"`
	RequestBatchID       *string    `gorm:"column:request_batch_id;size:36;index" json:"request_batch_id"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Credential) TableName() string {
	return "credentials"
}

// IsAssigned returns true if the credential is held by a user or an instance
func (c *Credential) IsAssigned() bool {
	return c.AssignedToUserID != nil || c.AssignedToInstanceID != nil
}

// Claimable returns true if the allocator may hand this credential out
func (c *Credential) Claimable() bool {
	return c.IsAvailable && c.IsActive
}
