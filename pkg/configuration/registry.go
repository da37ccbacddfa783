package configuration

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/iota-uz/registrar/pkg/serrors"
)

var ErrMissingRegistrySetting = serrors.NewError(
	"REGISTRY_MISSING_SETTING",
	"missing membership registry setting",
	"Errors.Registry.MissingSetting",
)

// RegistrySetting names a single required registry value by its env key.
type RegistrySetting string

const (
	SettingBaseURL        RegistrySetting = "HITOBITO_BASE_URL"
	SettingAPIToken       RegistrySetting = "HITOBITO_API_TOKEN"
	SettingFrontendURL    RegistrySetting = "HITOBITO_FRONTEND_URL"
	SettingBrowserCookie  RegistrySetting = "HITOBITO_BROWSER_COOKIE"
	SettingSupportGroupID RegistrySetting = "HITOBITO_SUPPORT_GROUP_ID"
	SettingEventID        RegistrySetting = "HITOBITO_EVENT_ID"
	SettingEventGroupID   RegistrySetting = "HITOBITO_EVENT_GROUP_ID"
	SettingHelperGroupID  RegistrySetting = "HITOBITO_HELPER_GROUP_ID"
	SettingHelperRoleType RegistrySetting = "HITOBITO_HELPER_ROLE_TYPE"
)

// RegistryOptions configures access to the hitobito membership registry.
type RegistryOptions struct {
	BaseURL          string        `env:"HITOBITO_BASE_URL"`
	APIToken         string        `env:"HITOBITO_API_TOKEN"`
	FrontendURL      string        `env:"HITOBITO_FRONTEND_URL"`
	BrowserCookie    string        `env:"HITOBITO_BROWSER_COOKIE"`
	SupportGroupID   string        `env:"HITOBITO_SUPPORT_GROUP_ID"`
	EventID          string        `env:"HITOBITO_EVENT_ID"`
	EventGroupID     string        `env:"HITOBITO_EVENT_GROUP_ID"`
	HelperGroupID    string        `env:"HITOBITO_HELPER_GROUP_ID"`
	ExternalRoleType string        `env:"HITOBITO_EXTERNAL_ROLE_TYPE" envDefault:"Group::ExternalRole"`
	HelperRoleType   string        `env:"HITOBITO_HELPER_ROLE_TYPE"`
	RequestTimeout   time.Duration `env:"HITOBITO_REQUEST_TIMEOUT" envDefault:"20s"`
	Timezone         string        `env:"HITOBITO_TIMEZONE" envDefault:"Europe/Zurich"`
	UserAgent        string        `env:"HITOBITO_USER_AGENT" envDefault:"Mozilla/5.0 (compatible; registrar-bot/1.0)"`
	// Days a support-group grant stays valid when added to unlock person details.
	SupportGrantDays int `env:"HITOBITO_SUPPORT_GRANT_DAYS" envDefault:"30"`
}

func (r *RegistryOptions) value(s RegistrySetting) string {
	switch s {
	case SettingBaseURL:
		return r.BaseURL
	case SettingAPIToken:
		return r.APIToken
	case SettingFrontendURL:
		return r.FrontendURL
	case SettingBrowserCookie:
		return r.BrowserCookie
	case SettingSupportGroupID:
		return r.SupportGroupID
	case SettingEventID:
		return r.EventID
	case SettingEventGroupID:
		return r.EventGroupID
	case SettingHelperGroupID:
		return r.HelperGroupID
	case SettingHelperRoleType:
		return r.HelperRoleType
	}
	return ""
}

// Require reports every missing setting in one error wrapping
// ErrMissingRegistrySetting. With no arguments the transport settings are
// checked.
func (r *RegistryOptions) Require(settings ...RegistrySetting) error {
	if len(settings) == 0 {
		settings = TransportSettings()
	}
	var missing []string
	for _, s := range settings {
		if strings.TrimSpace(r.value(s)) == "" {
			missing = append(missing, string(s))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingRegistrySetting, strings.Join(missing, ", "))
}

func TransportSettings() []RegistrySetting {
	return []RegistrySetting{SettingBaseURL, SettingAPIToken, SettingFrontendURL, SettingBrowserCookie}
}

// Location returns the time zone used for role dates, defaulting to UTC when
// the configured name cannot be loaded.
func (r *RegistryOptions) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (r *RegistryOptions) validateFormat() error {
	for name, raw := range map[string]string{"HITOBITO_BASE_URL": r.BaseURL, "HITOBITO_FRONTEND_URL": r.FrontendURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s=%q (expected absolute URL)", name, raw)
		}
	}
	if r.RequestTimeout < 0 {
		return fmt.Errorf("invalid HITOBITO_REQUEST_TIMEOUT=%s", r.RequestTimeout)
	}
	if r.SupportGrantDays < 0 {
		return fmt.Errorf("invalid HITOBITO_SUPPORT_GRANT_DAYS=%d", r.SupportGrantDays)
	}
	return nil
}
