// Package tenant derives resource names from a captain domain and serializes
// destructive work per tenant.
package tenant

import (
	"regexp"
	"strings"

	"github.com/gravitational/trace"
)

// LabelKey is the label/tag key that marks resources owned by a tenant.
const LabelKey = "captain_domain"

// DefaultCompliantName is used when a tenant contains no usable characters.
const DefaultCompliantName = "default-name"

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9-]`)
	leadingHyphens   = regexp.MustCompile(`^-+`)
	trailingHyphens  = regexp.MustCompile(`-+$`)
)

// Normalize trims surrounding whitespace and rejects empty domains.
func Normalize(captainDomain string) (string, error) {
	domain := strings.TrimSpace(captainDomain)
	if domain == "" {
		return "", trace.BadParameter("captain_domain is required")
	}

	if strings.ContainsAny(domain, " \t\r\n") {
		return "", trace.BadParameter("captain_domain %q must not contain whitespace", domain)
	}

	return domain, nil
}

// EnvironmentName returns the first dot-delimited segment of a captain domain.
func EnvironmentName(captainDomain string) string {
	env, _, _ := strings.Cut(strings.TrimSpace(captainDomain), ".")

	return env
}

// CompliantName turns an arbitrary tenant string into a DNS and bucket safe
// name: lowercase, only [a-z0-9-], no leading or trailing hyphens.
func CompliantName(name string) string {
	name = invalidNameChars.ReplaceAllString(strings.ToLower(name), "")
	name = leadingHyphens.ReplaceAllString(name, "")
	name = trailingHyphens.ReplaceAllString(name, "")

	if name == "" {
		return DefaultCompliantName
	}

	return name
}
