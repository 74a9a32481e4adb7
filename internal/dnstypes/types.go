package dnstypes

// DNSRecord represents a DNS record for provider operations
type DNSRecord struct {
	Type             string // A, AAAA, CNAME, TXT, MX
	Name             string // FQDN (e.g., api.acme.example.com)
	Content          string // IP address, target or text
	TTL              int    // Time to live, 1 = automatic
	Priority         *int   // MX only
	ProviderRecordID string // Remembered provider id, empty if never accepted
}
