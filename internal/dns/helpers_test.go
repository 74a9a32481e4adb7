package dns

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go_subdns/internal/db"
	"go_subdns/internal/dns/providers/cloudflare"
	"go_subdns/internal/dns/providers/cloudflare/cloudflaretest"
	"go_subdns/internal/logging"
	"go_subdns/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testUserID = 1
	testZoneID = "zone-example-com"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "subdns.db")
	gdb, err := db.Open(db.DriverSQLite, dsn, db.Options{MaxOpenConns: 1, LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.Migrate(gdb, nil))
	return gdb
}

type countingWaker struct {
	n atomic.Int32
}

func (w *countingWaker) Wake() { w.n.Add(1) }

// harness wires the sync engine against sqlite and a fake Cloudflare
type harness struct {
	t       *testing.T
	db      *gorm.DB
	records *RecordStore
	queue   *Queue
	svc     *Service
	disp    *Dispatcher
	cf      *cloudflaretest.Server
	waker   *countingWaker
	domain  *model.Domain
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gdb := newTestDB(t)
	h := &harness{
		t:     t,
		db:    gdb,
		cf:    cloudflaretest.NewServer(),
		waker: &countingWaker{},
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(h.cf.Close)

	h.records = NewRecordStore(gdb)
	h.queue = NewQueue(gdb, h.records, DefaultRetryPolicy())
	h.queue.now = func() time.Time { return h.now }

	provider, err := cloudflare.NewProvider(cloudflare.Config{
		APIToken:     cloudflaretest.Token,
		BaseURL:      h.cf.URL(),
		RateLimitRPS: 1000,
	}, logging.Discard())
	require.NoError(t, err)

	h.svc = NewService(&ServiceConfig{
		DB:      gdb,
		Records: h.records,
		Queue:   h.queue,
		Logger:  logging.Discard(),
	})
	h.svc.SetWaker(h.waker)

	h.disp, err = NewDispatcher(&DispatcherConfig{
		Queue:    h.queue,
		Records:  h.records,
		Provider: provider,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)

	h.domain = h.createDomain(testUserID, "acme", "example.com")
	return h
}

func (h *harness) createDomain(userID int, sub, root string) *model.Domain {
	d := &model.Domain{
		UserID:         userID,
		Subdomain:      sub,
		RootDomain:     root,
		Apex:           sub + "." + root,
		Status:         model.DomainStatusActive,
		ProviderZoneID: testZoneID,
	}
	require.NoError(h.t, h.db.Create(d).Error)
	return d
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

// tick runs one dispatcher tick and reports whether a job was handled
func (h *harness) tick() bool {
	h.t.Helper()
	processed, err := h.disp.Tick(context.Background())
	require.NoError(h.t, err)
	return processed
}

// drain ticks until the queue has nothing claimable
func (h *harness) drain() int {
	h.t.Helper()
	n := 0
	for h.tick() {
		n++
		require.Less(h.t, n, 100, "queue did not drain")
	}
	return n
}

func (h *harness) record(id int) *model.DNSRecord {
	h.t.Helper()
	r, err := h.records.Get(context.Background(), nil, id)
	require.NoError(h.t, err)
	return r
}

func (h *harness) jobs(recordID int) []model.SyncJob {
	h.t.Helper()
	var jobs []model.SyncJob
	require.NoError(h.t, h.db.Where("record_id = ?", recordID).Order("id ASC").Find(&jobs).Error)
	return jobs
}

func (h *harness) createA(name, content string) *model.DNSRecord {
	h.t.Helper()
	r, err := h.svc.CreateRecord(context.Background(), testUserID, h.domain.ID, RecordInput{Type: "A", Name: name, Content: content})
	require.NoError(h.t, err)
	return r
}
