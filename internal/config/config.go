// Package config loads the updater settings from an optional YAML file and
// the XENO_UPDATE_* environment.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xenolauncher/xenoupdate/internal/gate"
	"github.com/xenolauncher/xenoupdate/internal/logging"
	"github.com/xenolauncher/xenoupdate/internal/release"
)

const (
	ModeAuto   = "auto"
	ModeManual = "manual"

	DefaultDownloadTimeoutSeconds = 180
	DefaultCheckTimeoutSeconds    = 12
)

type File struct {
	Version int     `yaml:"version" json:"version"`
	Product Product `yaml:"product" json:"product"`
	Source  Source  `yaml:"source" json:"source"`
	Update  Update  `yaml:"update" json:"update"`
	Paths   Paths   `yaml:"paths" json:"paths"`
	Logging Logging `yaml:"logging" json:"logging"`
	Status  Status  `yaml:"status" json:"status"`
}

type Product struct {
	Name           string `yaml:"name" json:"name"`
	CurrentVersion string `yaml:"current_version,omitempty" json:"current_version,omitempty"`
	Packaged       bool   `yaml:"packaged" json:"packaged"`
}

type Source struct {
	ManifestURL string                  `yaml:"manifest_url,omitempty" json:"manifest_url,omitempty"`
	Repo        string                  `yaml:"repo,omitempty" json:"repo,omitempty"`
	Repository  string                  `yaml:"repository,omitempty" json:"repository,omitempty"`
	Publish     []release.PublishTarget `yaml:"publish,omitempty" json:"publish,omitempty"`
	APIBase     string                  `yaml:"api_base,omitempty" json:"api_base,omitempty"`
	// Token is only read from the environment.
	Token string `yaml:"-" json:"-"`
}

type Update struct {
	Mode                   string `yaml:"mode" json:"mode"`
	IncludePrerelease      bool   `yaml:"include_prerelease" json:"include_prerelease"`
	RequireApproval        bool   `yaml:"require_approval" json:"require_approval"`
	AllowUnapproved        bool   `yaml:"allow_unapproved" json:"allow_unapproved"`
	ApprovalToken          string `yaml:"approval_token" json:"approval_token"`
	AllowBinaryFallback    bool   `yaml:"allow_binary_fallback" json:"allow_binary_fallback"`
	StrictCommit           bool   `yaml:"strict_commit" json:"strict_commit"`
	DownloadTimeoutSeconds int    `yaml:"download_timeout_seconds" json:"download_timeout_seconds"`
	CheckTimeoutSeconds    int    `yaml:"check_timeout_seconds" json:"check_timeout_seconds"`
}

type Paths struct {
	DataDir      string `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`
	ResourcesDir string `yaml:"resources_dir,omitempty" json:"resources_dir,omitempty"`
	Executable   string `yaml:"executable,omitempty" json:"executable,omitempty"`
}

type Logging struct {
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
	Level string `yaml:"level,omitempty" json:"level,omitempty"`
}

// Status configures the optional local status endpoint.
type Status struct {
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`
}

// Default is the configuration used when no file is given.
func Default() File {
	return File{
		Version: 1,
		Product: Product{Name: "xeno", Packaged: true},
		Source:  Source{APIBase: release.DefaultAPIBase},
		Update: Update{
			Mode:                   ModeAuto,
			RequireApproval:        true,
			ApprovalToken:          gate.DefaultApprovalToken,
			DownloadTimeoutSeconds: DefaultDownloadTimeoutSeconds,
			CheckTimeoutSeconds:    DefaultCheckTimeoutSeconds,
		},
		Logging: Logging{Level: "info"},
	}
}

func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	return Parse(data, path)
}

// Parse decodes data over the defaults. Unknown keys are rejected.
func Parse(data []byte, source string) (File, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse YAML in %q: %w", source, err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid config in %q: %s", source, strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Resolve loads path (or XENO_UPDATE_CONFIG, or nothing) and applies the
// environment overrides on top.
func Resolve(path string, getenv func(string) string) (File, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(getenv("XENO_UPDATE_CONFIG"))
	}
	cfg := Default()
	source := "environment"
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return loaded, err
		}
		cfg = loaded
		source = path
	}
	cfg.ApplyEnv(getenv)
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid config in %q: %s", source, strings.Join(errs, "; "))
	}
	return cfg, nil
}

// ApplyEnv overrides fields from XENO_UPDATE_* variables. Unset or empty
// variables leave the field alone.
func (cfg *File) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := parseBool(getenv(key)); ok {
			*dst = v
		}
	}
	str("XENO_UPDATE_MANIFEST_URL", &cfg.Source.ManifestURL)
	str("XENO_UPDATE_REPO", &cfg.Source.Repo)
	str("XENO_UPDATE_API_BASE", &cfg.Source.APIBase)
	str("XENO_GITHUB_TOKEN", &cfg.Source.Token)
	str("XENO_UPDATE_MODE", &cfg.Update.Mode)
	flag("XENO_UPDATE_INCLUDE_PRERELEASE", &cfg.Update.IncludePrerelease)
	flag("XENO_UPDATE_REQUIRE_APPROVAL", &cfg.Update.RequireApproval)
	flag("XENO_UPDATE_ALLOW_UNAPPROVED", &cfg.Update.AllowUnapproved)
	str("XENO_UPDATE_APPROVAL_TOKEN", &cfg.Update.ApprovalToken)
	flag("XENO_UPDATE_ALLOW_BINARY_FALLBACK", &cfg.Update.AllowBinaryFallback)
	flag("XENO_UPDATE_STRICT_COMMIT", &cfg.Update.StrictCommit)
	str("XENO_UPDATE_DATA_DIR", &cfg.Paths.DataDir)
	str("XENO_UPDATE_EXECUTABLE", &cfg.Paths.Executable)
	str("XENO_UPDATE_RESOURCES_DIR", &cfg.Paths.ResourcesDir)
	str("XENO_UPDATE_LOG_FILE", &cfg.Logging.File)
	str("XENO_UPDATE_LOG_LEVEL", &cfg.Logging.Level)
	str("XENO_UPDATE_STATUS_LISTEN", &cfg.Status.Listen)
	if v := strings.TrimSpace(getenv("XENO_UPDATE_DOWNLOAD_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Update.DownloadTimeoutSeconds = n
		}
	}
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func (cfg File) Validate() []string {
	var errs []string

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported config version %d", cfg.Version))
	}
	if strings.TrimSpace(cfg.Product.Name) == "" {
		errs = append(errs, "product.name is required")
	}
	if !slices.Contains([]string{ModeAuto, ModeManual}, cfg.Update.Mode) {
		errs = append(errs, fmt.Sprintf("update.mode must be one of %s,%s", ModeAuto, ModeManual))
	}
	if cfg.Update.DownloadTimeoutSeconds < 0 {
		errs = append(errs, "update.download_timeout_seconds must be >= 0")
	}
	if cfg.Update.CheckTimeoutSeconds < 0 {
		errs = append(errs, "update.check_timeout_seconds must be >= 0")
	}
	if u := strings.TrimSpace(cfg.Source.ManifestURL); u != "" && !isHTTPURL(u) {
		errs = append(errs, fmt.Sprintf("source.manifest_url %q must be an http(s) URL", u))
	}
	if u := strings.TrimSpace(cfg.Source.APIBase); u != "" && !isHTTPURL(u) {
		errs = append(errs, fmt.Sprintf("source.api_base %q must be an http(s) URL", u))
	}
	for i, p := range cfg.Source.Publish {
		if !strings.EqualFold(strings.TrimSpace(p.Provider), "github") {
			errs = append(errs, fmt.Sprintf("source.publish[%d].provider unsupported %q", i, p.Provider))
			continue
		}
		if strings.TrimSpace(p.Owner) == "" || strings.TrimSpace(p.Repo) == "" {
			errs = append(errs, fmt.Sprintf("source.publish[%d] requires owner and repo", i))
		}
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level: %v", err))
	}
	return errs
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Repo is the hosted repository updates come from, or "".
func (cfg File) Repo() string {
	return release.ResolveRepo(cfg.Source.Repo, cfg.Source.Publish, cfg.Source.Repository)
}

// Manual reports whether automatic updates are switched off.
func (cfg File) Manual() bool {
	return cfg.Update.Mode == ModeManual
}

// DataDir is where state and downloads live.
func (cfg File) DataDir() (string, error) {
	if dir := strings.TrimSpace(cfg.Paths.DataDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(base, cfg.Product.Name), nil
}

func (cfg File) DownloadTimeout() time.Duration {
	if cfg.Update.DownloadTimeoutSeconds <= 0 {
		return DefaultDownloadTimeoutSeconds * time.Second
	}
	return time.Duration(cfg.Update.DownloadTimeoutSeconds) * time.Second
}

func (cfg File) CheckTimeout() time.Duration {
	if cfg.Update.CheckTimeoutSeconds <= 0 {
		return DefaultCheckTimeoutSeconds * time.Second
	}
	return time.Duration(cfg.Update.CheckTimeoutSeconds) * time.Second
}
