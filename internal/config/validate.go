package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Escalation.Threshold)) {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("escalation.threshold must be low, medium or high, got %q", cfg.Escalation.Threshold)
	}

	if err := validateGranularity(cfg.Granularity.Email, "granularity.email", "domain_only", "first_letter", "full_mask"); err != nil {
		return err
	}
	if err := validateGranularity(cfg.Granularity.Phone, "granularity.phone", "last_4", "area_code", "full_mask"); err != nil {
		return err
	}
	if err := validateGranularity(cfg.Granularity.Address, "granularity.address", "city_only", "state_only", "country_only", "full_mask"); err != nil {
		return err
	}
	if err := validateGranularity(cfg.Granularity.DOB, "granularity.dob", "year_only", "age_range", "full_mask"); err != nil {
		return err
	}
	if err := validateGranularity(cfg.Granularity.Card, "granularity.card", "last_4", "bin_only", "full_mask"); err != nil {
		return err
	}

	for i, s := range cfg.Escalation.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "log":
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("escalation sink %d (file_jsonl) missing path", i)
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("escalation sink %d (webhook) missing url", i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("escalation sink %d (webhook) has invalid url", i)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("escalation sink %d (webhook) url must be http or https", i)
			}
		default:
			return fmt.Errorf("escalation sink %d has unknown type %q", i, s.Type)
		}
	}

	if ep := strings.TrimSpace(cfg.Explain.Endpoint); ep != "" {
		u, err := url.Parse(ep)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("explain.endpoint is not a valid URL: %q", cfg.Explain.Endpoint)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("explain.endpoint must be http or https")
		}
	}

	if cfg.Telemetry.Enabled {
		if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
			return errors.New("telemetry enabled but endpoint is empty")
		}
		switch strings.ToLower(strings.TrimSpace(cfg.Telemetry.Protocol)) {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", cfg.Telemetry.Protocol)
		}
	}
	return nil
}

func validateGranularity(value, field string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}
