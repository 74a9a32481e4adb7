package dns

import "strings"

// ToFQDN converts a record name to a Fully Qualified Domain Name under apex
//
// Rules:
// - apex = "acme.example.com"
// - name = "@"                      -> "acme.example.com"
// - name = "www"                    -> "www.acme.example.com"
// - name = "a.b"                    -> "a.b.acme.example.com"
// - name = "www.acme.example.com"   -> "www.acme.example.com" (already FQDN)
// - name = "evil.com."              -> "evil.com" (absolute, kept as-is; scope check rejects it)
//
// Output is lower-case without trailing dot.
func ToFQDN(apex string, name string) string {
	apex = normalizeName(apex)
	name = strings.ToLower(strings.TrimSpace(name))

	if name == "" || name == "@" {
		return apex
	}

	// Trailing dot marks an absolute name
	if strings.HasSuffix(name, ".") {
		return strings.TrimSuffix(name, ".")
	}

	if name == apex || strings.HasSuffix(name, "."+apex) {
		return name
	}

	return name + "." + apex
}

// NormalizeRelativeName converts any name format to a relative name (non-FQDN)
//
// Rules:
// - apex = "acme.example.com"
// - name = "acme.example.com"       -> "@"
// - name = "www.acme.example.com"   -> "www"
// - name = "www.acme.example.com."  -> "www"
// - name = "a.b"                    -> "a.b"
//
// Names outside apex are returned unchanged; callers run InScope first.
func NormalizeRelativeName(name, apex string) string {
	apex = normalizeName(apex)
	name = normalizeName(name)

	if name == "" || name == "@" || name == apex {
		return "@"
	}

	if strings.HasSuffix(name, "."+apex) {
		return strings.TrimSuffix(name, "."+apex)
	}

	return name
}

// InScope reports whether fqdn equals apex or is a strict sub-name of it
func InScope(fqdn, apex string) bool {
	fqdn = normalizeName(fqdn)
	apex = normalizeName(apex)
	if apex == "" {
		return false
	}
	return fqdn == apex || strings.HasSuffix(fqdn, "."+apex)
}

func normalizeName(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}
