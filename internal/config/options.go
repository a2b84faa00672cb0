package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lp-tools/lpmigrate/internal/types"
)

// EnvPrefix prefixes the environment variable of every option.
const EnvPrefix = "LP_RELEASE"

// DefaultConfigFile is read when no config_file is given and it exists.
const DefaultConfigFile = "/etc/lpmigrate/lpmigrate.yaml"

// Option describes a configuration key of the migrate run.
type Option struct {
	Key         string // Flag and config file key (e.g., "new_milestone_name")
	Description string // Human-readable description
	Required    bool   // Run cannot start without it
	Default     string // Default value (empty = no default)
	Validate    func(string) error
}

// Options defines all configuration keys. Each may be given as a flag, as the
// environment variable LP_RELEASE_<KEY> or in the config file.
var Options = []Option{
	// Migration scope
	{
		Key:         "projects",
		Description: "project names in which context the migration runs",
		Required:    true,
	},
	{
		Key:         "old_milestone_names",
		Description: "closed milestone names from which bugs are retargeted",
		Required:    true,
	},
	{
		Key:         "new_milestone_name",
		Description: "active milestone name to which bugs are retargeted",
		Required:    true,
	},
	{
		Key:         "maximum",
		Description: "total amount of issues to be processed",
		Required:    true,
		Validate:    validatePositiveInt,
	},
	{
		Key:         "statuses",
		Description: "statuses of the bugs to be processed",
		Required:    true,
		Default:     joinStatuses(types.OpenStatuses),
		Validate:    validateStatuses,
	},
	{
		Key:         "bugs_importance",
		Description: "importance of the bugs to be processed",
		Required:    true,
		Validate:    validateImportances,
	},
	{
		Key:         "skip_tags",
		Description: "bugs carrying any of these tags are left alone",
		Default:     "wait-for-stable",
	},
	{
		Key:         "maintenance_marker",
		Description: "milestone substring that marks maintenance bugs",
		Default:     "-mu",
	},
	// Plumbing
	{
		Key:         "config_file",
		Description: "path to config file if any",
	},
	{
		Key:         "cache",
		Description: "cache store URL (sqlite://path, mysql://dsn, dolt:///dir, memory://)",
		Default:     "sqlite://lpcache.db",
	},
	{
		Key:         "credentials_file",
		Description: "Launchpad OAuth credentials file (TOML)",
	},
	{
		Key:         "api_url",
		Description: "Launchpad API root",
		Default:     "https://api.launchpad.net/devel",
	},
	{
		Key:         "request_timeout",
		Description: "timeout of a single remote call (e.g., 30s)",
		Default:     "30s",
		Validate:    validateDuration,
	},
	{
		Key:         "policy_file",
		Description: "policy file of the apply command",
		Default:     "lpmigrate-policy.yaml",
	},
	{
		Key:         "otel_enabled",
		Description: "record OpenTelemetry metrics and spans",
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Key:         "otel_stdout",
		Description: "export telemetry to stdout",
		Default:     "false",
		Validate:    validateBool,
	},
}

// LookupOption returns the Option definition if key is known, nil otherwise.
func LookupOption(key string) *Option {
	for i := range Options {
		if Options[i].Key == key {
			return &Options[i]
		}
	}
	return nil
}

// EnvVar returns the environment variable name of an option.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// SplitList splits a comma-separated value, trimming blanks.
func SplitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validation helpers

func validatePositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than 0, got %d", n)
	}
	return nil
}

func validateStatuses(value string) error {
	for _, s := range SplitList(value) {
		if !types.Status(s).IsValid() {
			return fmt.Errorf("unknown status %q", s)
		}
	}
	return nil
}

func validateImportances(value string) error {
	for _, s := range SplitList(value) {
		if !types.Importance(s).IsValid() {
			return fmt.Errorf("unknown importance %q", s)
		}
	}
	return nil
}

func validateDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration, got %q", value)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", d)
	}
	return nil
}

func validateBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false, got %q", value)
	}
	return nil
}

func joinStatuses(ss []types.Status) string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return strings.Join(out, ",")
}
