package model

// DomainStatus represents domain status
type DomainStatus string

const (
	DomainStatusActive   DomainStatus = "active"
	DomainStatusInactive DomainStatus = "inactive"
)

// Domain is a subdomain claimed by a user under one of the platform root domains.
// Apex is "{subdomain}.{rootDomain}" and bounds every record of the domain.
type Domain struct {
	BaseModel
	UserID         int          `gorm:"index;not null" json:"user_id"`
	Subdomain      string       `gorm:"type:varchar(63);not null" json:"subdomain"`
	RootDomain     string       `gorm:"type:varchar(190);not null" json:"root_domain"`
	Apex           string       `gorm:"type:varchar(253);uniqueIndex;not null" json:"apex"`
	Status         DomainStatus `gorm:"type:varchar(16);default:'active'" json:"status"`
	ProviderZoneID string       `gorm:"type:varchar(128);not null" json:"-"` // Cloudflare zone of RootDomain, not exposed in API
}

// TableName specifies the table name for Domain model
func (Domain) TableName() string {
	return "domains"
}
