package dns

import (
	"context"

	"go_subdns/internal/dnstypes"
)

// Provider defines the interface for DNS providers. Both operations are
// idempotent so an at-least-once job may run them again.
type Provider interface {
	// Upsert ensures the provider holds record (keyed by name+type) and
	// returns its provider id. record.ProviderRecordID is tried first when set.
	Upsert(ctx context.Context, zoneID string, record dnstypes.DNSRecord) (providerRecordID string, err error)

	// Delete deletes a record by its provider id; an absent record is success
	Delete(ctx context.Context, zoneID string, providerRecordID string) error
}
