package config

import (
	"fmt"
	"time"
)

// SiteConfig holds per-site page loading settings.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent when loading pages of this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent when loading pages of this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the global User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`
}

// Timeouts holds duration overrides written as Go duration strings
// ("500ms", "3s"). Empty fields keep their current value.
type Timeouts struct {
	TabQuery              string `yaml:"tabQuery,omitempty"`
	LoadingTabWait        string `yaml:"loadingTabWait,omitempty"`
	ActivationWait        string `yaml:"activationWait,omitempty"`
	InitialScanDelay      string `yaml:"initialScanDelay,omitempty"`
	MutationDebounce      string `yaml:"mutationDebounce,omitempty"`
	ScanRequest           string `yaml:"scanRequest,omitempty"`
	UnavailableRetryDelay string `yaml:"unavailableRetryDelay,omitempty"`
	StaleAfter            string `yaml:"staleAfter,omitempty"`
	SweepInterval         string `yaml:"sweepInterval,omitempty"`
	MaxRecordAge          string `yaml:"maxRecordAge,omitempty"`
	Fetch                 string `yaml:"fetch,omitempty"`
	RenderSettle          string `yaml:"renderSettle,omitempty"`
}

// File represents the structure of the .protectmyart configuration file.
type File struct {
	// RestrictedPrefixes are added to the built-in restricted page list.
	RestrictedPrefixes []string `yaml:"restrictedPrefixes,omitempty"`

	// Timeouts overrides the coordination timeouts.
	Timeouts Timeouts `yaml:"timeouts,omitempty"`

	// UnavailableRetries overrides the retry count when set.
	UnavailableRetries *int `yaml:"unavailableRetries,omitempty"`

	// Proxy is an optional SOCKS5 proxy address for page downloads.
	Proxy string `yaml:"proxy,omitempty"`

	// FetchRetries overrides the download retry count when set.
	FetchRetries *int `yaml:"fetchRetries,omitempty"`

	// RateLimit overrides the per-host request rate when set.
	RateLimit *float64 `yaml:"rateLimit,omitempty"`

	// ChromePath is the Chrome executable used by --render.
	ChromePath string `yaml:"chromePath,omitempty"`

	// Sites maps host names to their site-specific configurations.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to all sites unless overridden per site.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host, merged over defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if result.Headers != nil {
		headers := make(map[string]string, len(result.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	if siteConfig, ok := cf.Sites[host]; ok {
		if siteConfig.Cookie != "" {
			result.Cookie = siteConfig.Cookie
		}
		if siteConfig.UserAgent != "" {
			result.UserAgent = siteConfig.UserAgent
		}
		if len(siteConfig.Headers) > 0 {
			if result.Headers == nil {
				result.Headers = make(map[string]string)
			}
			for k, v := range siteConfig.Headers {
				result.Headers[k] = v
			}
		}
	}

	return result
}

// ApplyTo copies the file's settings onto cfg. Durations that fail to
// parse leave cfg partially updated and return ErrInvalidDuration.
func (cf *File) ApplyTo(cfg *Config) error {
	for _, p := range cf.RestrictedPrefixes {
		if p != "" {
			cfg.RestrictedPrefixes = append(cfg.RestrictedPrefixes, p)
		}
	}
	if cf.UnavailableRetries != nil {
		cfg.UnavailableRetries = *cf.UnavailableRetries
	}
	if cf.Proxy != "" {
		cfg.ProxyAddress = cf.Proxy
	}
	if cf.FetchRetries != nil {
		cfg.FetchRetries = *cf.FetchRetries
	}
	if cf.RateLimit != nil {
		cfg.RateLimit = *cf.RateLimit
	}
	if cf.ChromePath != "" {
		cfg.ChromePath = cf.ChromePath
	}

	overrides := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"tabQuery", cf.Timeouts.TabQuery, &cfg.TabQueryTimeout},
		{"loadingTabWait", cf.Timeouts.LoadingTabWait, &cfg.LoadingTabWait},
		{"activationWait", cf.Timeouts.ActivationWait, &cfg.ActivationWait},
		{"initialScanDelay", cf.Timeouts.InitialScanDelay, &cfg.InitialScanDelay},
		{"mutationDebounce", cf.Timeouts.MutationDebounce, &cfg.MutationDebounce},
		{"scanRequest", cf.Timeouts.ScanRequest, &cfg.ScanRequestTimeout},
		{"unavailableRetryDelay", cf.Timeouts.UnavailableRetryDelay, &cfg.UnavailableRetryDelay},
		{"staleAfter", cf.Timeouts.StaleAfter, &cfg.StaleAfter},
		{"sweepInterval", cf.Timeouts.SweepInterval, &cfg.SweepInterval},
		{"maxRecordAge", cf.Timeouts.MaxRecordAge, &cfg.MaxRecordAge},
		{"fetch", cf.Timeouts.Fetch, &cfg.FetchTimeout},
		{"renderSettle", cf.Timeouts.RenderSettle, &cfg.RenderSettle},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		d, err := time.ParseDuration(o.value)
		if err != nil {
			return fmt.Errorf("%w: timeouts.%s: %v", ErrInvalidDuration, o.name, err)
		}
		*o.dst = d
	}

	cfg.SiteConfigs = cf
	return nil
}
