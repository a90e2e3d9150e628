package proxy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ochinchina/stackpanel/envfile"
)

// Kind selects the directive set of a route
type Kind int

const (
	// Static serves a document root with a FastCGI backend
	Static Kind = iota
	// ReverseProxy forwards everything to an upstream
	ReverseProxy
)

// String returns the name of the kind
func (k Kind) String() string {
	if k == Static {
		return "static"
	}
	return "reverse_proxy"
}

// Keys of the environment file read by the generator
const (
	KeyAcmeEmail     = "ACME_EMAIL"
	KeyAppDomain     = "APP_DOMAIN"
	KeyAppRoot       = "APP_ROOT"
	KeyAppFastCGI    = "APP_FASTCGI"
	KeyBotDomain     = "BOT_DOMAIN"
	KeyBotUpstream   = "BOT_UPSTREAM"
	KeyN8nDomain     = "N8N_DOMAIN"
	KeyN8nUpstream   = "N8N_UPSTREAM"
	KeyPanelDomain   = "PANEL_DOMAIN"
	KeyPanelUpstream = "PANEL_UPSTREAM"
	KeyPmaDomain     = "PMA_DOMAIN"
	KeyPmaUpstream   = "PMA_UPSTREAM"
	KeyPmaUser       = "PMA_BASIC_USER"
	KeyPmaHash       = "PMA_BASIC_HASH"
	// KeyPmaPassword is accepted from callers and stored as KeyPmaHash
	KeyPmaPassword = "PMA_BASIC_PASS"
)

// Route is a routing block derived from the environment file
type Route struct {
	Key      string `json:"key"`
	Domain   string `json:"domain"`
	Kind     Kind   `json:"-"`
	KindName string `json:"kind"`
	Root     string `json:"root,omitempty"`
	Upstream string `json:"upstream"`
	AuthUser string `json:"auth_user,omitempty"`
	AuthHash string `json:"-"`
}

// HasAuth returns true if the route carries a basic-auth overlay
func (r Route) HasAuth() bool {
	return r.AuthUser != "" && r.AuthHash != ""
}

type routeSpec struct {
	key             string
	kind            Kind
	rootKey         string
	rootDefault     string
	upstreamKey     string
	upstreamDefault string
	authUserKey     string
	authHashKey     string
}

// the emission order of routes, independent of the order of the file
var routeSpecs = []routeSpec{
	{key: KeyAppDomain, kind: Static, rootKey: KeyAppRoot, rootDefault: "/srv/www/public", upstreamKey: KeyAppFastCGI, upstreamDefault: "php:9000"},
	{key: KeyBotDomain, kind: ReverseProxy, upstreamKey: KeyBotUpstream, upstreamDefault: "wa-bot:3000"},
	{key: KeyN8nDomain, kind: ReverseProxy, upstreamKey: KeyN8nUpstream, upstreamDefault: "n8n:5678"},
	{key: KeyPanelDomain, kind: ReverseProxy, upstreamKey: KeyPanelUpstream, upstreamDefault: "panel:4000"},
	{key: KeyPmaDomain, kind: ReverseProxy, upstreamKey: KeyPmaUpstream, upstreamDefault: "phpmyadmin:80", authUserKey: KeyPmaUser, authHashKey: KeyPmaHash},
}

// DomainKeys returns the recognized domain keys in emission order
func DomainKeys() []string {
	keys := make([]string, 0, len(routeSpecs))
	for _, s := range routeSpecs {
		keys = append(keys, s.key)
	}
	return keys
}

// IsDomainKey returns true if key produces a routing block
func IsDomainKey(key string) bool {
	for _, s := range routeSpecs {
		if s.key == key {
			return true
		}
	}
	return false
}

// SettingKeys returns every key the generator reads, domain keys first
func SettingKeys() []string {
	keys := DomainKeys()
	keys = append(keys, KeyAcmeEmail)
	for _, s := range routeSpecs {
		for _, k := range []string{s.rootKey, s.upstreamKey, s.authUserKey, s.authHashKey} {
			if k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Routes derives the routing blocks from entries
func Routes(entries envfile.Entries) []Route {
	routes := make([]Route, 0, len(routeSpecs))
	for _, s := range routeSpecs {
		domain := strings.TrimSpace(entries.Value(s.key))
		if domain == "" {
			continue
		}
		r := Route{
			Key:      s.key,
			Domain:   domain,
			Kind:     s.kind,
			KindName: s.kind.String(),
			Upstream: valueOr(entries, s.upstreamKey, s.upstreamDefault),
		}
		if s.kind == Static {
			r.Root = valueOr(entries, s.rootKey, s.rootDefault)
		}
		if s.authUserKey != "" {
			r.AuthUser = strings.TrimSpace(entries.Value(s.authUserKey))
			r.AuthHash = strings.TrimSpace(entries.Value(s.authHashKey))
			if !r.HasAuth() {
				r.AuthUser, r.AuthHash = "", ""
			}
		}
		routes = append(routes, r)
	}
	return routes
}

func valueOr(entries envfile.Entries, key, def string) string {
	if v := strings.TrimSpace(entries.Value(key)); v != "" {
		return v
	}
	return def
}

var (
	domainRegex   = regexp.MustCompile(`^(\*\.)?([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(:[0-9]{1,5})?$`)
	upstreamRegex = regexp.MustCompile(`^[a-zA-Z0-9._:/\[\]-]+$`)
)

// ValidateDomain accepts host names with an optional wildcard label and port.
// The empty string is valid and means "not configured".
func ValidateDomain(domain string) error {
	if domain == "" {
		return nil
	}
	if len(domain) > 253 || !domainRegex.MatchString(domain) {
		return fmt.Errorf("%q is not a valid domain", domain)
	}
	return nil
}

// ValidateUpstream accepts host:port, unix sockets and paths
func ValidateUpstream(upstream string) error {
	if upstream == "" {
		return nil
	}
	if !upstreamRegex.MatchString(upstream) {
		return fmt.Errorf("%q is not a valid upstream", upstream)
	}
	return nil
}
