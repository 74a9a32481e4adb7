package domain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go_subdns/internal/domainutil"
	"go_subdns/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrDomainTaken is returned when the subdomain is already claimed
	ErrDomainTaken = errors.New("domain already claimed")

	// ErrRootDomainUnsupported is returned for root domains the platform does not host
	ErrRootDomainUnsupported = errors.New("root domain is not supported")

	// ErrInvalidSubdomain is returned for a malformed or reserved subdomain
	ErrInvalidSubdomain = errors.New("invalid subdomain")
)

var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// reserved subdomains never handed out to users
var reserved = map[string]bool{
	"www": true, "mail": true, "smtp": true, "imap": true, "pop": true, "mx": true,
	"ns": true, "ns1": true, "ns2": true, "ns3": true, "ns4": true,
	"admin": true, "api": true, "app": true, "root": true, "status": true,
	"support": true, "help": true, "blog": true, "ftp": true, "cdn": true,
	"localhost": true, "autoconfig": true, "autodiscover": true, "_dmarc": true,
}

// ZoneResolver finds the provider zone of a root domain not present in the static map
type ZoneResolver interface {
	ZoneID(ctx context.Context, rootDomain string) (string, error)
}

// ServiceConfig holds dependencies for Service
type ServiceConfig struct {
	DB       *gorm.DB
	Zones    map[string]string // root domain -> provider zone id
	Resolver ZoneResolver      // optional
	Logger   *logrus.Entry
}

// Service manages subdomain claims
type Service struct {
	db       *gorm.DB
	zones    map[string]string
	resolver ZoneResolver
	logger   *logrus.Entry
}

// NewService creates a new domain service
func NewService(cfg *ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	zones := make(map[string]string, len(cfg.Zones))
	for root, id := range cfg.Zones {
		zones[strings.TrimSuffix(strings.ToLower(root), ".")] = id
	}
	return &Service{
		db:       cfg.DB,
		zones:    zones,
		resolver: cfg.Resolver,
		logger:   logger.WithField("component", "domain-service"),
	}
}

// RootDomains returns the configured root domains, sorted
func (s *Service) RootDomains() []string {
	roots := make([]string, 0, len(s.zones))
	for root := range s.zones {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// Claim registers {subdomain}.{rootDomain} for userID
func (s *Service) Claim(ctx context.Context, userID int, subdomain, rootDomain string) (*model.Domain, error) {
	sub := strings.ToLower(strings.TrimSpace(subdomain))
	if !labelPattern.MatchString(sub) {
		return nil, fmt.Errorf("%w: %q must be a single DNS label", ErrInvalidSubdomain, subdomain)
	}
	if reserved[sub] {
		return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidSubdomain, sub)
	}

	root, err := domainutil.Normalize(rootDomain)
	if err != nil || !domainutil.IsRegistrable(root) {
		return nil, fmt.Errorf("%w: %s", ErrRootDomainUnsupported, rootDomain)
	}
	zoneID, err := s.zoneID(ctx, root)
	if err != nil {
		return nil, err
	}

	d := &model.Domain{
		UserID:         userID,
		Subdomain:      sub,
		RootDomain:     root,
		Apex:           sub + "." + root,
		Status:         model.DomainStatusActive,
		ProviderZoneID: zoneID,
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Domain{}).Where("apex = ?", d.Apex).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check domain: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDomainTaken, d.Apex)
	}
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDomainTaken, d.Apex)
		}
		return nil, fmt.Errorf("failed to create domain: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"domain_id": d.ID,
		"apex":      d.Apex,
	}).Info("Domain claimed")
	return d, nil
}

func (s *Service) zoneID(ctx context.Context, root string) (string, error) {
	if id, ok := s.zones[root]; ok {
		return id, nil
	}
	if s.resolver == nil {
		return "", fmt.Errorf("%w: %s", ErrRootDomainUnsupported, root)
	}

	id, err := s.resolver.ZoneID(ctx, root)
	if err != nil {
		s.logger.WithError(err).WithField("root_domain", root).Warn("Zone lookup failed")
		return "", fmt.Errorf("%w: %s", ErrRootDomainUnsupported, root)
	}
	return id, nil
}

// ListResult is one page of domains
type ListResult struct {
	Items    []model.Domain `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// List returns the user's domains, newest first
func (s *Service) List(ctx context.Context, userID, page, pageSize int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.WithContext(ctx).Model(&model.Domain{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count domains: %w", err)
	}

	items := make([]model.Domain, 0)
	if err := query.Order("id DESC").Limit(pageSize).Offset((page - 1) * pageSize).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to query domains: %w", err)
	}

	return &ListResult{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
