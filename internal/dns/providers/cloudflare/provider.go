package cloudflare

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go_subdns/internal/dnstypes"

	cf "github.com/cloudflare/cloudflare-go"
	"github.com/sirupsen/logrus"
)

const (
	requestTimeout = 10 * time.Second
	defaultRPS     = 4
)

// Config holds Cloudflare client settings
type Config struct {
	APIToken     string
	BaseURL      string  // empty uses the public API
	RateLimitRPS float64 // client-side request pacing, 0 uses the default
	HTTPClient   *http.Client
}

// Provider implements dns.Provider for the Cloudflare API.
// SDK retries are disabled; failed calls go back to the sync job's retry policy.
type Provider struct {
	api *cf.API
	log *logrus.Entry
}

// NewProvider creates a new Cloudflare DNS provider
func NewProvider(cfg Config, log *logrus.Entry) (*Provider, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("cloudflare api token is required")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = defaultRPS
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	opts := []cf.Option{
		cf.HTTPClient(httpClient),
		cf.UsingRetryPolicy(0, 0, 0),
		cf.UsingRateLimit(rps),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, cf.BaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}

	api, err := cf.NewWithAPIToken(cfg.APIToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("fail to create cloudflare api: %w", err)
	}

	return &Provider{api: api, log: log.WithField("provider", "cloudflare")}, nil
}

// Upsert makes the provider hold record under zoneID and returns its provider id.
//
// Steps:
// 1. remembered id set: update by id; a not-found answer means the id is stale
// 2. list by exact name+type: update the match and adopt its id
// 3. otherwise create
func (p *Provider) Upsert(ctx context.Context, zoneID string, record dnstypes.DNSRecord) (string, error) {
	if record.ProviderRecordID != "" {
		id, err := p.update(ctx, zoneID, record.ProviderRecordID, record)
		if err == nil {
			return id, nil
		}
		if !dnstypes.IsNotFound(err) {
			return "", err
		}
		p.log.WithFields(logrus.Fields{
			"zone_id":            zoneID,
			"name":               record.Name,
			"provider_record_id": record.ProviderRecordID,
		}).Warn("Remembered provider record id is stale, reconciling by name")
	}

	existing, err := p.find(ctx, zoneID, record.Type, record.Name)
	if err != nil {
		return "", err
	}
	if existing != nil {
		p.log.WithFields(logrus.Fields{
			"zone_id":            zoneID,
			"name":               record.Name,
			"type":               record.Type,
			"provider_record_id": existing.ID,
		}).Info("Adopting existing provider record")
		return p.update(ctx, zoneID, existing.ID, record)
	}

	return p.create(ctx, zoneID, record)
}

// Delete deletes a record by its provider id. A record that is already gone counts as deleted.
func (p *Provider) Delete(ctx context.Context, zoneID, providerRecordID string) error {
	err := p.api.DeleteDNSRecord(ctx, cf.ZoneIdentifier(zoneID), providerRecordID)
	if err == nil {
		return nil
	}

	perr := classify("delete record", err)
	if dnstypes.IsNotFound(perr) {
		p.log.WithFields(logrus.Fields{
			"zone_id":            zoneID,
			"provider_record_id": providerRecordID,
		}).Info("Provider record already absent")
		return nil
	}
	return perr
}

// ZoneID looks up the id of the zone named rootDomain
func (p *Provider) ZoneID(ctx context.Context, rootDomain string) (string, error) {
	res, err := p.api.ListZonesContext(ctx, cf.WithZoneFilters(rootDomain, "", ""))
	if err != nil {
		return "", classify("list zones", err)
	}
	for _, z := range res.Result {
		if strings.EqualFold(z.Name, rootDomain) {
			return z.ID, nil
		}
	}
	return "", dnstypes.NewProviderError(dnstypes.ErrorKindNotFound, 0, fmt.Sprintf("zone %s is not in this account", rootDomain), nil)
}

func (p *Provider) find(ctx context.Context, zoneID, recordType, name string) (*cf.DNSRecord, error) {
	records, _, err := p.api.ListDNSRecords(ctx, cf.ZoneIdentifier(zoneID), cf.ListDNSRecordsParams{
		Type: recordType,
		Name: name,
	})
	if err != nil {
		return nil, classify("list records", err)
	}

	for i := range records {
		if records[i].Type == recordType && strings.EqualFold(strings.TrimSuffix(records[i].Name, "."), name) {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (p *Provider) create(ctx context.Context, zoneID string, record dnstypes.DNSRecord) (string, error) {
	created, err := p.api.CreateDNSRecord(ctx, cf.ZoneIdentifier(zoneID), cf.CreateDNSRecordParams{
		Type:     record.Type,
		Name:     record.Name,
		Content:  record.Content,
		TTL:      ttl(record.TTL),
		Priority: priority(record.Priority),
	})
	if err != nil {
		return "", classify("create record", err)
	}
	if created.ID == "" {
		return "", dnstypes.NewProviderError(dnstypes.ErrorKindOther, 0, "create record: empty record id in response", nil)
	}
	return created.ID, nil
}

func (p *Provider) update(ctx context.Context, zoneID, recordID string, record dnstypes.DNSRecord) (string, error) {
	updated, err := p.api.UpdateDNSRecord(ctx, cf.ZoneIdentifier(zoneID), cf.UpdateDNSRecordParams{
		ID:       recordID,
		Type:     record.Type,
		Name:     record.Name,
		Content:  record.Content,
		TTL:      ttl(record.TTL),
		Priority: priority(record.Priority),
	})
	if err != nil {
		return "", classify("update record", err)
	}
	if updated.ID != "" {
		return updated.ID, nil
	}
	return recordID, nil
}

// ttl maps an unset TTL to Cloudflare's automatic TTL
func ttl(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

// priority is only sent when present
func priority(v *int) *uint16 {
	if v == nil {
		return nil
	}
	p := uint16(*v)
	return &p
}
