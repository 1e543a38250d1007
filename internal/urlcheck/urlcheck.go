// Package urlcheck decides whether user input is a syntactically valid URL.
package urlcheck

import (
	"net/netip"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"mvdan.cc/xurls/v2"
)

const (
	schemes        = `https?://|ftp://`
	maxLabelLength = 63
	maxHostLength  = 253
	punycodePrefix = "xn--"
)

//nolint:gochecknoglobals // Compiled once, read-only afterwards.
var strictRe = sync.OnceValues(func() (*regexp.Regexp, error) {
	return xurls.StrictMatchingScheme(schemes)
})

//nolint:gochecknoglobals // Built once, read-only afterwards.
var knownTLDs = sync.OnceValue(func() map[string]struct{} {
	tlds := make(map[string]struct{}, len(xurls.TLDs)+len(xurls.PseudoTLDs))
	for _, tld := range xurls.TLDs {
		tlds[strings.ToLower(tld)] = struct{}{}
	}
	for _, tld := range xurls.PseudoTLDs {
		tlds[strings.ToLower(tld)] = struct{}{}
	}
	return tlds
})

// Valid reports whether s is exactly one http, https or ftp URL. The host
// must be an IP literal or a dotted domain name ending in a known TLD, and an
// explicit port must be in 1-65535.
func Valid(s string) bool {
	if s == "" || strings.IndexFunc(s, unicode.IsSpace) >= 0 || strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return false
	}

	u, err := url.Parse(s)
	if err != nil || u.Opaque != "" {
		return false
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
	default:
		return false
	}

	if !validPort(u.Port()) {
		return false
	}

	return validHost(u.Hostname(), strings.HasPrefix(u.Host, "["))
}

func validPort(port string) bool {
	if port == "" {
		return true
	}

	n, err := strconv.Atoi(port)

	return err == nil && n >= 1 && n <= 65535
}

func validHost(host string, bracketed bool) bool {
	if host == "" {
		return false
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		// IPv6 literals are only valid inside brackets.
		return addr.Is4() != bracketed && addr.Zone() == ""
	}
	if bracketed {
		return false
	}

	host = strings.TrimSuffix(host, ".")
	if len(host) > maxHostLength {
		return false
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}

	for _, label := range labels {
		if !validLabel(label) {
			return false
		}
	}

	tld := strings.ToLower(labels[len(labels)-1])
	if strings.HasPrefix(tld, punycodePrefix) {
		return true
	}

	_, ok := knownTLDs()[tld]

	return ok
}

// validLabel accepts letters, digits and inner hyphens.
func validLabel(label string) bool {
	if label == "" || len(label) > maxLabelLength {
		return false
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return false
	}

	for _, r := range label {
		if r != '-' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}

	return true
}

// FindAll returns every http(s) or ftp URL mentioned in free text, in order.
// Trailing sentence punctuation is not part of a match.
func FindAll(text string) []string {
	re, err := strictRe()
	if err != nil {
		return nil
	}

	var urls []string
	for _, candidate := range re.FindAllString(text, -1) {
		if Valid(candidate) {
			urls = append(urls, candidate)
		}
	}

	return urls
}
