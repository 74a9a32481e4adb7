package dns

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"go_subdns/internal/model"
)

const (
	maxTXTLength = 2048
	maxNameLen   = 253
	minTTL       = 60
	maxTTL       = 86400
	autoTTL      = 1
)

var (
	// Record labels may carry underscores (_dmarc, _acme-challenge)
	recordLabelPattern = regexp.MustCompile(`^[a-z0-9_]([a-z0-9_-]{0,61}[a-z0-9_])?$`)
	hostLabelPattern   = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
)

// RecordInput is the user-supplied desired state of a record
type RecordInput struct {
	Type     model.DNSRecordType
	Name     string
	Content  string
	Priority *int
	TTL      *int
}

// normalizedRecord is a validated RecordInput bound to a domain apex
type normalizedRecord struct {
	Type     model.DNSRecordType
	Name     string // relative, "@" for apex
	FQDN     string
	Content  string
	Priority *int
	TTL      *int
}

// validateRecord checks in against apex and returns the normalized form.
// Out-of-scope names fail with ErrOutOfScope.
func validateRecord(in RecordInput, apex string) (*normalizedRecord, error) {
	recordType := model.DNSRecordType(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	if !recordType.Valid() {
		return nil, invalid("type", "unsupported record type %q", in.Type)
	}

	fqdn := ToFQDN(apex, in.Name)
	if !InScope(fqdn, apex) {
		return nil, fmt.Errorf("%w: %s is not under %s", ErrOutOfScope, fqdn, normalizeName(apex))
	}
	name := NormalizeRelativeName(fqdn, apex)
	if name != "@" {
		if err := validateRecordName(name); err != nil {
			return nil, err
		}
	}
	if len(fqdn) > maxNameLen {
		return nil, invalid("name", "fully qualified name exceeds %d characters", maxNameLen)
	}

	content, err := validateContent(recordType, in.Content)
	if err != nil {
		return nil, err
	}

	priority := in.Priority
	if recordType == model.DNSRecordTypeMX {
		if priority == nil {
			priority = model.IntPtr(model.DefaultMXPriority)
		} else if *priority < 0 || *priority > 65535 {
			return nil, invalid("priority", "must be between 0 and 65535")
		}
	} else {
		priority = nil
	}

	if in.TTL != nil {
		ttl := *in.TTL
		if ttl != autoTTL && (ttl < minTTL || ttl > maxTTL) {
			return nil, invalid("ttl", "must be 1 (automatic) or between %d and %d", minTTL, maxTTL)
		}
	}

	return &normalizedRecord{
		Type:     recordType,
		Name:     name,
		FQDN:     fqdn,
		Content:  content,
		Priority: priority,
		TTL:      in.TTL,
	}, nil
}

// validateRecordName checks a relative name label by label. A wildcard is
// allowed only as the leftmost label.
func validateRecordName(name string) error {
	labels := strings.Split(name, ".")
	for i, label := range labels {
		if label == "*" && i == 0 {
			continue
		}
		if !recordLabelPattern.MatchString(label) {
			return invalid("name", "invalid label %q", label)
		}
	}
	return nil
}

func validateContent(recordType model.DNSRecordType, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalid("content", "cannot be empty")
	}

	switch recordType {
	case model.DNSRecordTypeA:
		addr, err := netip.ParseAddr(content)
		if err != nil || !addr.Is4() {
			return "", invalid("content", "%q is not an IPv4 address", content)
		}
		return addr.String(), nil
	case model.DNSRecordTypeAAAA:
		addr, err := netip.ParseAddr(content)
		if err != nil || !addr.Is6() || addr.Is4In6() || addr.Zone() != "" {
			return "", invalid("content", "%q is not an IPv6 address", content)
		}
		return addr.String(), nil
	case model.DNSRecordTypeCNAME, model.DNSRecordTypeMX:
		host := strings.TrimSuffix(strings.ToLower(content), ".")
		if !isHostname(host) {
			return "", invalid("content", "%q is not a valid hostname", content)
		}
		return host, nil
	case model.DNSRecordTypeTXT:
		if len(content) > maxTXTLength {
			return "", invalid("content", "TXT content exceeds %d characters", maxTXTLength)
		}
		return content, nil
	}
	return "", invalid("type", "unsupported record type %q", recordType)
}

func isHostname(host string) bool {
	if host == "" || len(host) > maxNameLen {
		return false
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !hostLabelPattern.MatchString(label) {
			return false
		}
	}
	return true
}
