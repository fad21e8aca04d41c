package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Config is the full pagecraft configuration, loaded from TOML.
type Config struct {
	StorageDir string `toml:"storage_dir"`

	// Host and Port are the API listen address.
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// SiteBaseURL is the origin of the public site pages are extracted
	// from, e.g. "https://clinic.example".
	SiteBaseURL string `toml:"site_base_url"`

	// PublicBaseURL is the origin uploaded assets are served from.
	// Defaults to the API's own address.
	PublicBaseURL string `toml:"public_base_url"`

	// LogoURL is threaded into the admin shell instead of living in a
	// page global.
	LogoURL string `toml:"logo_url"`

	// RevisionsKeep bounds per-page revision history. Omitted keeps 20
	// revisions; an explicit 0 disables archiving.
	RevisionsKeep *int `toml:"revisions_keep"`

	// EventBufferSize is the per-listener realtime buffer.
	EventBufferSize int `toml:"event_buffer_size"`

	// OptimizeInterval runs periodic database optimization. Zero
	// disables it.
	OptimizeInterval Duration `toml:"optimize_interval"`

	Extract ExtractConfig         `toml:"extract"`
	Pages   map[string]PageConfig `toml:"pages"`
}

// ExtractConfig configures the content extractor.
//
// The include flags and exclude list are pointers and nilable so an omitted
// [extract] section keeps the full default posture. An all-false section
// would make every scheduled re-extraction replace the page with an empty
// block list.
type ExtractConfig struct {
	// Engine is "static" or "browser".
	Engine string `toml:"engine"`

	// Category include flags. An omitted flag counts as enabled.
	Headings   *bool `toml:"headings"`
	Paragraphs *bool `toml:"paragraphs"`
	Lists      *bool `toml:"lists"`
	Links      *bool `toml:"links"`
	Images     *bool `toml:"images"`

	// ExcludePaths lists path substrings that are never extracted.
	// Omitted falls back to skipping admin and appointment paths.
	ExcludePaths []string `toml:"exclude_paths"`

	// WaitTime lets client-rendered pages settle before the browser
	// engine scans them.
	WaitTime Duration `toml:"wait_time"`
}

// IncludeHeadings reports whether heading extraction is on.
func (e ExtractConfig) IncludeHeadings() bool { return e.Headings == nil || *e.Headings }

// IncludeParagraphs reports whether paragraph extraction is on.
func (e ExtractConfig) IncludeParagraphs() bool { return e.Paragraphs == nil || *e.Paragraphs }

// IncludeLists reports whether list extraction is on.
func (e ExtractConfig) IncludeLists() bool { return e.Lists == nil || *e.Lists }

// IncludeLinks reports whether link extraction is on.
func (e ExtractConfig) IncludeLinks() bool { return e.Links == nil || *e.Links }

// IncludeImages reports whether image extraction is on.
func (e ExtractConfig) IncludeImages() bool { return e.Images == nil || *e.Images }

// ExcludeList returns the configured exclusions, or the default admin and
// appointment skip list when the field was omitted.
func (e ExtractConfig) ExcludeList() []string {
	if e.ExcludePaths == nil {
		return []string{"admin", "appointment"}
	}
	return e.ExcludePaths
}

// PageConfig configures one managed page.
type PageConfig struct {
	// Interval is the re-extraction period. Nil uses the 30 minute
	// default, zero disables scheduling for the page.
	Interval *Duration `toml:"interval,omitempty"`
}

// Duration is a time.Duration that marshals as a string like "30m".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// GetDefaultConfig returns a config with the defaults applied. Nilable
// fields stay nil and resolve through their accessors.
func GetDefaultConfig() (*Config, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return nil, fmt.Errorf("getting default storage directory: %w", err)
	}
	return &Config{
		StorageDir:      storageDir,
		Host:            "localhost",
		Port:            8787,
		EventBufferSize: 32,
		Extract:         ExtractConfig{Engine: "static"},
		Pages:           make(map[string]PageConfig),
	}, nil
}

// RevisionRetention returns how many replace snapshots to keep per page,
// defaulting to 20 when revisions_keep is unset.
func (c *Config) RevisionRetention() int {
	if c.RevisionsKeep == nil {
		return 20
	}
	return *c.RevisionsKeep
}

// LoadConfig reads the TOML file at configPath, falling back to defaults
// when it does not exist and filling defaults for omitted fields.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.StorageDir == "" {
		storageDir, err := GetDefaultStorageDir()
		if err != nil {
			return nil, fmt.Errorf("getting default storage directory: %w", err)
		}
		config.StorageDir = storageDir
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 8787
	}
	if config.PublicBaseURL == "" {
		config.PublicBaseURL = fmt.Sprintf("http://%s:%d", config.Host, config.Port)
	}
	if config.EventBufferSize == 0 {
		config.EventBufferSize = 32
	}
	if config.Extract.Engine == "" {
		config.Extract.Engine = "static"
	}
	if config.Pages == nil {
		config.Pages = make(map[string]PageConfig)
	}

	return &config, nil
}

// SaveConfig writes the config back to disk as TOML.
func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveTemplateConfig writes the commented sample config, with the storage
// directory filled in, for first-time setup.
func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	storageDir := c.StorageDir
	if storageDir == "" {
		var err error
		storageDir, err = GetDefaultStorageDir()
		if err != nil {
			return fmt.Errorf("getting default storage directory: %w", err)
		}
	}

	template := strings.Replace(configTemplate, "/home/user/.local/share/pagecraft", storageDir, 1)
	return os.WriteFile(configPath, []byte(template), 0644)
}

// AddPage registers a managed page.
func (c *Config) AddPage(pagePath string, interval *Duration) {
	c.Pages[pagePath] = PageConfig{Interval: interval}
}

// RemovePage forgets a managed page.
func (c *Config) RemovePage(pagePath string) {
	delete(c.Pages, pagePath)
}

// ListPages returns the managed page paths, sorted.
func (c *Config) ListPages() []string {
	paths := make([]string, 0, len(c.Pages))
	for p := range c.Pages {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// GetPageInterval returns a page's re-extraction interval, defaulting to
// 30 minutes when unset.
func (c *Config) GetPageInterval(pagePath string) time.Duration {
	info, exists := c.Pages[pagePath]
	if !exists || info.Interval == nil {
		return 30 * time.Minute
	}
	return info.Interval.Duration
}

// ListenAddr returns the host:port the API binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DBPath returns the database location under the storage directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.StorageDir, "pagecraft.db")
}

// UploadsDir returns the uploads root under the storage directory.
func (c *Config) UploadsDir() string {
	return filepath.Join(c.StorageDir, "uploads")
}

// GetDefaultStorageDir returns the XDG data directory for pagecraft,
// creating it when missing.
func GetDefaultStorageDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, "pagecraft")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetConfigDir returns the XDG config directory for pagecraft, creating it
// when missing.
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "pagecraft")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
