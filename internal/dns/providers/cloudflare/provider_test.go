package cloudflare

import (
	"context"
	"net/http"
	"testing"

	"go_subdns/internal/dns/providers/cloudflare/cloudflaretest"
	"go_subdns/internal/dnstypes"
	"go_subdns/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zoneID = "zone-example-com"

func newTestProvider(t *testing.T, baseURL, token string) *Provider {
	t.Helper()
	p, err := NewProvider(Config{APIToken: token, BaseURL: baseURL, RateLimitRPS: 1000}, logging.Discard())
	require.NoError(t, err)
	return p
}

func setup(t *testing.T) (*cloudflaretest.Server, *Provider) {
	t.Helper()
	srv := cloudflaretest.NewServer()
	t.Cleanup(srv.Close)
	return srv, newTestProvider(t, srv.URL(), cloudflaretest.Token)
}

func aRecord(content string) dnstypes.DNSRecord {
	return dnstypes.DNSRecord{Type: "A", Name: "api.acme.example.com", Content: content}
}

func TestNewProvider_RequiresToken(t *testing.T) {
	_, err := NewProvider(Config{}, nil)
	assert.Error(t, err)
}

func TestUpsert_CreatesWhenAbsent(t *testing.T) {
	srv, p := setup(t)

	id, err := p.Upsert(context.Background(), zoneID, aRecord("192.0.2.1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, ok := srv.Get(zoneID, id)
	require.True(t, ok)
	assert.Equal(t, "A", rec.Type)
	assert.Equal(t, "api.acme.example.com", rec.Name)
	assert.Equal(t, "192.0.2.1", rec.Content)
	assert.Equal(t, 1, rec.TTL, "unset ttl is sent as automatic")
	assert.Nil(t, rec.Priority)
	assert.Equal(t, 1, srv.CountCalls(http.MethodPost))
}

func TestUpsert_UpdatesByRememberedID(t *testing.T) {
	srv, p := setup(t)
	id := srv.Seed(zoneID, cloudflaretest.Record{Type: "A", Name: "api.acme.example.com", Content: "192.0.2.1", TTL: 1})

	rec := aRecord("192.0.2.2")
	rec.ProviderRecordID = id
	rec.TTL = 300
	got, err := p.Upsert(context.Background(), zoneID, rec)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	stored, _ := srv.Get(zoneID, id)
	assert.Equal(t, "192.0.2.2", stored.Content)
	assert.Equal(t, 300, stored.TTL)
	assert.Equal(t, 0, srv.CountCalls(http.MethodGet), "no lookup when the id is valid")
	assert.Equal(t, 0, srv.CountCalls(http.MethodPost))
}

func TestUpsert_StaleIDFallsBackToCreate(t *testing.T) {
	srv, p := setup(t)

	rec := aRecord("192.0.2.3")
	rec.ProviderRecordID = "gone"
	id, err := p.Upsert(context.Background(), zoneID, rec)
	require.NoError(t, err)
	assert.NotEqual(t, "gone", id)
	assert.Len(t, srv.Records(zoneID), 1)
	assert.Equal(t, 1, srv.CountCalls(http.MethodPost))
}

func TestUpsert_AdoptsDriftedRecord(t *testing.T) {
	srv, p := setup(t)
	existing := srv.Seed(zoneID, cloudflaretest.Record{Type: "A", Name: "api.acme.example.com", Content: "198.51.100.7", TTL: 1})
	// same name, other type: must not be touched
	other := srv.Seed(zoneID, cloudflaretest.Record{Type: "TXT", Name: "api.acme.example.com", Content: "hello", TTL: 1})

	id, err := p.Upsert(context.Background(), zoneID, aRecord("192.0.2.4"))
	require.NoError(t, err)
	assert.Equal(t, existing, id)

	records := srv.Records(zoneID)
	assert.Len(t, records, 2, "no duplicate created")
	adopted, _ := srv.Get(zoneID, existing)
	assert.Equal(t, "192.0.2.4", adopted.Content)
	untouched, _ := srv.Get(zoneID, other)
	assert.Equal(t, "hello", untouched.Content)
	assert.Equal(t, 0, srv.CountCalls(http.MethodPost))
}

func TestUpsert_MXPriority(t *testing.T) {
	srv, p := setup(t)

	prio := 10
	id, err := p.Upsert(context.Background(), zoneID, dnstypes.DNSRecord{
		Type: "MX", Name: "acme.example.com", Content: "mx.mail.example.net", Priority: &prio,
	})
	require.NoError(t, err)

	rec, _ := srv.Get(zoneID, id)
	require.NotNil(t, rec.Priority)
	assert.EqualValues(t, 10, *rec.Priority)
}

func TestUpsert_RejectedIsClassified(t *testing.T) {
	srv, p := setup(t)
	srv.Inject(cloudflaretest.Fault{Method: http.MethodPost, Status: http.StatusBadRequest, Code: 9005, Message: "Content for A record is invalid."})

	_, err := p.Upsert(context.Background(), zoneID, aRecord("192.0.2.1"))
	require.Error(t, err)

	perr, ok := dnstypes.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, dnstypes.ErrorKindRejected, perr.Kind)
	assert.Equal(t, 9005, perr.Code)
	assert.Empty(t, srv.Records(zoneID))
}

func TestUpsert_ServerErrorIsClassified(t *testing.T) {
	srv, p := setup(t)
	srv.Inject(cloudflaretest.Fault{Method: http.MethodGet, Status: http.StatusBadGateway})

	_, err := p.Upsert(context.Background(), zoneID, aRecord("192.0.2.1"))
	perr, ok := dnstypes.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, dnstypes.ErrorKindOther, perr.Kind)
	assert.Equal(t, 1, srv.CountCalls(http.MethodGet), "client does not retry on its own")
}

func TestUpsert_AuthFailureIsRejected(t *testing.T) {
	srv := cloudflaretest.NewServer()
	defer srv.Close()
	p := newTestProvider(t, srv.URL(), "wrong-token")

	_, err := p.Upsert(context.Background(), zoneID, aRecord("192.0.2.1"))
	perr, ok := dnstypes.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, dnstypes.ErrorKindRejected, perr.Kind)
	assert.Equal(t, cloudflaretest.CodeAuthFailed, perr.Code)
}

func TestUpsert_NetworkError(t *testing.T) {
	srv := cloudflaretest.NewServer()
	url := srv.URL()
	srv.Close()
	p := newTestProvider(t, url, cloudflaretest.Token)

	_, err := p.Upsert(context.Background(), zoneID, aRecord("192.0.2.1"))
	perr, ok := dnstypes.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, dnstypes.ErrorKindNetwork, perr.Kind)
}

func TestDelete(t *testing.T) {
	srv, p := setup(t)
	id := srv.Seed(zoneID, cloudflaretest.Record{Type: "A", Name: "api.acme.example.com", Content: "192.0.2.1", TTL: 1})

	require.NoError(t, p.Delete(context.Background(), zoneID, id))
	assert.Empty(t, srv.Records(zoneID))
}

func TestDelete_NotFoundIsSuccess(t *testing.T) {
	_, p := setup(t)
	assert.NoError(t, p.Delete(context.Background(), zoneID, "never-existed"))
}

func TestDelete_OtherErrorsPropagate(t *testing.T) {
	srv, p := setup(t)
	id := srv.Seed(zoneID, cloudflaretest.Record{Type: "A", Name: "api.acme.example.com", Content: "192.0.2.1", TTL: 1})
	srv.Inject(cloudflaretest.Fault{Method: http.MethodDelete, Status: http.StatusTooManyRequests, Code: 971, Message: "Please wait and consider throttling your request speed"})

	err := p.Delete(context.Background(), zoneID, id)
	require.Error(t, err)
	assert.False(t, dnstypes.IsNotFound(err))
	assert.Len(t, srv.Records(zoneID), 1)
}

func TestClassify_NotFoundCodes(t *testing.T) {
	srv, p := setup(t)
	srv.Inject(cloudflaretest.Fault{Method: http.MethodPatch, Status: http.StatusBadRequest, Code: cloudflaretest.CodeInvalidIdentity, Message: "Could not route to /zones/x/dns_records/y, perhaps your object identifier is invalid?"})

	rec := aRecord("192.0.2.9")
	rec.ProviderRecordID = "malformed"
	id, err := p.Upsert(context.Background(), zoneID, rec)
	require.NoError(t, err, "invalid id falls through to reconcile")
	assert.NotEqual(t, "malformed", id)
}

func TestZoneID(t *testing.T) {
	srv, p := setup(t)
	srv.AddZone("example.com", "zone-123")
	srv.AddZone("example.net", "zone-456")

	id, err := p.ZoneID(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "zone-123", id)

	_, err = p.ZoneID(context.Background(), "example.org")
	assert.True(t, dnstypes.IsNotFound(err))
}
