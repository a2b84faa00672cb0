// Package config resolves run options from flags, LP_RELEASE_* environment
// variables, the config file and built-in defaults, in that order of
// precedence, and loads the policy file of the apply command.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lp-tools/lpmigrate/internal/launchpad"
	"github.com/lp-tools/lpmigrate/internal/types"
)

var (
	// ErrMissingOption is returned when a required option is unset.
	ErrMissingOption = errors.New("missing required option")

	// ErrInvalidOption is returned when an option value fails validation.
	ErrInvalidOption = errors.New("invalid option")
)

// Config is the resolved configuration of one run. It is built once at
// startup and passed to constructors explicitly.
type Config struct {
	Projects          []string
	OldMilestones     []string
	NewMilestone      string
	Maximum           int
	Statuses          []types.Status
	Importances       []types.Importance
	SkipTags          []string
	MaintenanceMarker string

	ConfigFile      string
	Cache           string
	CredentialsFile string
	AccessToken     string
	AccessSecret    string
	APIURL          string
	PolicyFile      string
	RequestTimeout  time.Duration
	OTelEnabled     bool
	OTelStdout      bool
}

// Load resolves every option. flags may be nil; flags that were not changed
// on the command line do not override other sources.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, opt := range Options {
		if opt.Default != "" {
			v.SetDefault(opt.Key, opt.Default)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	path := v.GetString("config_file")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil || explicit {
		values, err := readConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		path = ""
	}

	var errs []error
	for _, opt := range Options {
		if opt.Validate == nil || !v.IsSet(opt.Key) {
			continue
		}
		if err := opt.Validate(valueString(v, opt.Key)); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalidOption, opt.Key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cfg := &Config{
		Projects:          listValue(v, "projects"),
		OldMilestones:     listValue(v, "old_milestone_names"),
		NewMilestone:      strings.TrimSpace(v.GetString("new_milestone_name")),
		SkipTags:          listValue(v, "skip_tags"),
		MaintenanceMarker: v.GetString("maintenance_marker"),
		ConfigFile:        path,
		Cache:             v.GetString("cache"),
		CredentialsFile:   v.GetString("credentials_file"),
		AccessToken:       v.GetString("access_token"),
		AccessSecret:      v.GetString("access_secret"),
		APIURL:            v.GetString("api_url"),
		PolicyFile:        v.GetString("policy_file"),
		RequestTimeout:    v.GetDuration("request_timeout"),
		OTelEnabled:       v.GetBool("otel_enabled"),
		OTelStdout:        v.GetBool("otel_stdout"),
	}
	if v.IsSet("maximum") {
		cfg.Maximum = v.GetInt("maximum")
	}
	for _, s := range listValue(v, "statuses") {
		cfg.Statuses = append(cfg.Statuses, types.Status(s))
	}
	for _, s := range listValue(v, "bugs_importance") {
		cfg.Importances = append(cfg.Importances, types.Importance(s))
	}
	return cfg, nil
}

// RequireMigration checks the options the migrate run cannot start without.
// All missing options are reported at once.
func (c *Config) RequireMigration() error {
	set := map[string]bool{
		"projects":            len(c.Projects) > 0,
		"old_milestone_names": len(c.OldMilestones) > 0,
		"new_milestone_name":  c.NewMilestone != "",
		"maximum":             c.Maximum > 0,
		"statuses":            len(c.Statuses) > 0,
		"bugs_importance":     len(c.Importances) > 0,
	}
	var missing []string
	for _, opt := range Options {
		if opt.Required && !set[opt.Key] {
			missing = append(missing, fmt.Sprintf("%s (--%s or %s)", opt.Key, opt.Key, EnvVar(opt.Key)))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingOption, strings.Join(missing, ", "))
	}
	return nil
}

// Credentials returns the remote credentials: the credentials file when set,
// with LP_RELEASE_ACCESS_TOKEN and LP_RELEASE_ACCESS_SECRET taking
// precedence. Nil means anonymous access.
func (c *Config) Credentials() (*launchpad.Credentials, error) {
	var creds *launchpad.Credentials
	if c.CredentialsFile != "" {
		var err error
		if creds, err = launchpad.LoadCredentials(c.CredentialsFile); err != nil {
			return nil, err
		}
	}
	if c.AccessToken != "" || c.AccessSecret != "" {
		if c.AccessToken == "" || c.AccessSecret == "" {
			return nil, fmt.Errorf("%w: %s and %s must be set together",
				ErrInvalidOption, EnvVar("access_token"), EnvVar("access_secret"))
		}
		if creds == nil {
			creds = &launchpad.Credentials{ConsumerKey: launchpad.DefaultConsumerKey}
		}
		creds.AccessToken = c.AccessToken
		creds.AccessSecret = c.AccessSecret
	}
	return creds, nil
}

// Summary lists the effective migration options, sorted by key, for the
// startup log line.
func (c *Config) Summary() []any {
	m := map[string]any{
		"projects":            strings.Join(c.Projects, ","),
		"old_milestone_names": strings.Join(c.OldMilestones, ","),
		"new_milestone_name":  c.NewMilestone,
		"maximum":             c.Maximum,
		"statuses":            len(c.Statuses),
		"bugs_importance":     len(c.Importances),
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, k, m[k])
	}
	return out
}

// listValue reads a list option given either as a YAML list or as a
// comma-separated string (flags, environment variables).
func listValue(v *viper.Viper, key string) []string {
	switch raw := v.Get(key).(type) {
	case nil:
		return nil
	case []string:
		var out []string
		for _, s := range raw {
			out = append(out, SplitList(s)...)
		}
		return out
	case []any:
		var out []string
		for _, item := range raw {
			out = append(out, SplitList(fmt.Sprint(item))...)
		}
		return out
	default:
		return SplitList(fmt.Sprint(raw))
	}
}

func valueString(v *viper.Viper, key string) string {
	switch v.Get(key).(type) {
	case []string, []any:
		return strings.Join(listValue(v, key), ",")
	default:
		return v.GetString(key)
	}
}
