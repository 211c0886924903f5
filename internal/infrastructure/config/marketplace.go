package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sellerlink/backend/internal/domain/integration"
)

// Default marketplace endpoints and scopes
const (
	DefaultAuthBaseURL    = "https://auth.mercadolivre.com.br"
	DefaultAPIBaseURL     = "https://api.mercadolibre.com"
	DefaultScopes         = "offline_access read write"
	DefaultRequestTimeout = 15 * time.Second
	DefaultStateTTL       = 15 * time.Minute
)

// MarketplaceConfig holds the connection parameters for the marketplace seller account
type MarketplaceConfig struct {
	AppID         string
	ClientSecret  string
	RedirectURI   string
	SellerID      string
	WebhookSecret string
	// WebhookInsecure accepts unsigned webhooks when no secret is configured.
	// Never enable outside local development.
	WebhookInsecure bool
	AuthBaseURL     string
	APIBaseURL      string
	Scopes          []string
	PKCEEnabled     bool
	RequestTimeout  time.Duration
	StateTTL        time.Duration

	// LegacyKeys lists deprecated configuration keys that were found while loading.
	LegacyKeys []string

	pkceSet bool
}

// ValidationResult is the structured outcome of validating the marketplace configuration.
// Field names are reported; values are never echoed.
type ValidationResult struct {
	IsValid    bool     `json:"is_valid"`
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings"`
	Missing    []string `json:"missing"`
	Configured []string `json:"configured"`
}

// ParseScopes splits a space- or comma-separated scope list, dropping empties and duplicates
func ParseScopes(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	seen := make(map[string]struct{}, len(fields))
	scopes := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		scopes = append(scopes, f)
	}
	return scopes
}

func (m *MarketplaceConfig) applyDefaults() {
	if m.AuthBaseURL == "" {
		m.AuthBaseURL = DefaultAuthBaseURL
	}
	if m.APIBaseURL == "" {
		m.APIBaseURL = DefaultAPIBaseURL
	}
	m.AuthBaseURL = strings.TrimRight(m.AuthBaseURL, "/")
	m.APIBaseURL = strings.TrimRight(m.APIBaseURL, "/")
	if len(m.Scopes) == 0 {
		m.Scopes = ParseScopes(DefaultScopes)
	}
	if !m.pkceSet {
		m.PKCEEnabled = true
	}
	if m.RequestTimeout == 0 {
		m.RequestTimeout = DefaultRequestTimeout
	}
	if m.StateTTL == 0 {
		m.StateTTL = DefaultStateTTL
	}
}

// ScopeString returns the scopes joined the way the authorization endpoint expects
func (m *MarketplaceConfig) ScopeString() string {
	return strings.Join(m.Scopes, " ")
}

// marketplaceField describes one configuration parameter and how to validate it
type marketplaceField struct {
	name     string
	required bool
	value    func(m *MarketplaceConfig) any
	isSet    func(m *MarketplaceConfig) bool
	tag      string
	message  string
}

var marketplaceFields = []marketplaceField{
	{
		name:     "app_id",
		required: true,
		value:    func(m *MarketplaceConfig) any { return m.AppID },
		isSet:    func(m *MarketplaceConfig) bool { return m.AppID != "" },
		tag:      "required,max=64",
		message:  "app_id must be a non-empty identifier",
	},
	{
		name:     "client_secret",
		required: true,
		value:    func(m *MarketplaceConfig) any { return m.ClientSecret },
		isSet:    func(m *MarketplaceConfig) bool { return m.ClientSecret != "" },
		tag:      "required",
		message:  "client_secret must not be empty",
	},
	{
		name:     "redirect_uri",
		required: true,
		value:    func(m *MarketplaceConfig) any { return m.RedirectURI },
		isSet:    func(m *MarketplaceConfig) bool { return m.RedirectURI != "" },
		tag:      "required,url",
		message:  "redirect_uri must be an absolute URI",
	},
	{
		name:     "seller_id",
		required: true,
		value:    func(m *MarketplaceConfig) any { return m.SellerID },
		isSet:    func(m *MarketplaceConfig) bool { return m.SellerID != "" },
		tag:      "required,numeric",
		message:  "seller_id must be numeric",
	},
	{
		name:    "auth_base_url",
		value:   func(m *MarketplaceConfig) any { return m.AuthBaseURL },
		isSet:   func(m *MarketplaceConfig) bool { return m.AuthBaseURL != "" },
		tag:     "omitempty,url",
		message: "auth_base_url must be an absolute URL",
	},
	{
		name:    "api_base_url",
		value:   func(m *MarketplaceConfig) any { return m.APIBaseURL },
		isSet:   func(m *MarketplaceConfig) bool { return m.APIBaseURL != "" },
		tag:     "omitempty,url",
		message: "api_base_url must be an absolute URL",
	},
	{
		name:    "scopes",
		value:   func(m *MarketplaceConfig) any { return m.Scopes },
		isSet:   func(m *MarketplaceConfig) bool { return len(m.Scopes) > 0 },
		tag:     "omitempty,dive,required,printascii",
		message: "scopes must be printable ASCII tokens",
	},
	{
		name:    "pkce_enabled",
		value:   func(m *MarketplaceConfig) any { return m.PKCEEnabled },
		isSet:   func(m *MarketplaceConfig) bool { return m.pkceSet },
		tag:     "",
		message: "",
	},
	{
		name:    "webhook_secret",
		value:   func(m *MarketplaceConfig) any { return m.WebhookSecret },
		isSet:   func(m *MarketplaceConfig) bool { return m.WebhookSecret != "" },
		tag:     "omitempty,min=8",
		message: "webhook_secret must be at least 8 characters",
	},
}

var fieldValidator = validator.New()

// Validate checks every marketplace parameter with its own rule and reports the outcome.
// It performs no I/O.
func (m *MarketplaceConfig) Validate() ValidationResult {
	result := ValidationResult{
		Errors:     []string{},
		Warnings:   []string{},
		Missing:    []string{},
		Configured: []string{},
	}

	for _, f := range marketplaceFields {
		set := f.isSet(m)
		if f.required && !set {
			result.Missing = append(result.Missing, f.name)
			result.Errors = append(result.Errors, fmt.Sprintf("%s is required", f.name))
			continue
		}
		if !set {
			continue
		}
		if f.tag != "" {
			if err := fieldValidator.Var(f.value(m), f.tag); err != nil {
				result.Errors = append(result.Errors, f.message)
				continue
			}
		}
		result.Configured = append(result.Configured, f.name)
	}

	if m.WebhookSecret == "" {
		if m.WebhookInsecure {
			result.Warnings = append(result.Warnings,
				"webhook_secret is not set and webhook_insecure is enabled: webhook signatures are not verified")
		} else {
			result.Warnings = append(result.Warnings,
				"webhook_secret is not set: inbound webhooks will be rejected")
		}
	}

	if len(m.Scopes) > 0 && !containsScope(m.Scopes, "offline_access") {
		result.Warnings = append(result.Warnings,
			"scopes do not include offline_access: no refresh token will be issued")
	}

	legacy := append([]string(nil), m.LegacyKeys...)
	sort.Strings(legacy)
	for _, key := range legacy {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s is deprecated, use %s instead", key, legacyMarketplaceKeys[key]))
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// RequireValid returns ErrConfigInvalid describing every problem when the configuration is not usable
func (m *MarketplaceConfig) RequireValid() error {
	result := m.Validate()
	if result.IsValid {
		return nil
	}
	return fmt.Errorf("%w: %s", integration.ErrConfigInvalid, strings.Join(result.Errors, "; "))
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
