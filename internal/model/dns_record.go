package model

// DNSRecordType represents DNS record type
type DNSRecordType string

const (
	DNSRecordTypeA     DNSRecordType = "A"
	DNSRecordTypeAAAA  DNSRecordType = "AAAA"
	DNSRecordTypeCNAME DNSRecordType = "CNAME"
	DNSRecordTypeTXT   DNSRecordType = "TXT"
	DNSRecordTypeMX    DNSRecordType = "MX"
)

// Valid reports whether t is one of the supported record types
func (t DNSRecordType) Valid() bool {
	switch t {
	case DNSRecordTypeA, DNSRecordTypeAAAA, DNSRecordTypeCNAME, DNSRecordTypeTXT, DNSRecordTypeMX:
		return true
	}
	return false
}

// DNSRecordStatus represents DNS record sync status
type DNSRecordStatus string

const (
	DNSRecordStatusPending  DNSRecordStatus = "pending"
	DNSRecordStatusActive   DNSRecordStatus = "active"
	DNSRecordStatusError    DNSRecordStatus = "error"
	DNSRecordStatusDeleting DNSRecordStatus = "deleting"
)

// DefaultMXPriority is applied to MX records created without a priority
const DefaultMXPriority = 10

// DNSRecord is the user-declared desired state of one provider record plus its
// sync bookkeeping. Status, LastError and ProviderRecordID are written only by
// the sync engine and the mutation service.
type DNSRecord struct {
	BaseModel
	DomainID         int             `gorm:"index;not null" json:"domain_id"`
	UserID           int             `gorm:"index;not null" json:"user_id"`
	Type             DNSRecordType   `gorm:"type:varchar(8);uniqueIndex:idx_dns_records_fqdn_type;not null" json:"type"`
	Name             string          `gorm:"type:varchar(253);not null" json:"name"`
	FQDN             string          `gorm:"column:fqdn;type:varchar(253);uniqueIndex:idx_dns_records_fqdn_type;not null" json:"fqdn"`
	Content          string          `gorm:"type:varchar(2048);not null" json:"content"`
	Priority         *int            `json:"priority,omitempty"`
	TTL              *int            `gorm:"column:ttl" json:"ttl,omitempty"`
	ProviderRecordID string          `gorm:"type:varchar(128)" json:"provider_record_id"`
	Status           DNSRecordStatus `gorm:"type:varchar(16);index;default:'pending'" json:"status"`
	LastError        string          `gorm:"type:varchar(255)" json:"last_error"`
	Revision         int             `gorm:"not null;default:1" json:"revision"`
	AppliedJobKey    string          `gorm:"type:varchar(64)" json:"-"`
}

// TableName specifies the table name for DNSRecord model
func (DNSRecord) TableName() string {
	return "dns_records"
}
