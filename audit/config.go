package audit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Store backends selectable in the config file.
const (
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"
	StoreBackendRemote = "remote"
)

// Config is the full service configuration loaded from YAML.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Capture CaptureConfig `yaml:"capture"`
	Report  ReportConfig  `yaml:"report"`

	// Reference overrides the built-in target table when non-empty.
	Reference []ReferenceEntry `yaml:"reference,omitempty"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend string       `yaml:"backend"`
	Path    string       `yaml:"path,omitempty"`   // file backend
	DBPath  string       `yaml:"dbPath,omitempty"` // sqlite backend
	Remote  RemoteConfig `yaml:"remote,omitempty"` // remote backend
}

// RemoteConfig configures the remote object store and its auth. When
// TokenURL is set, OAuth-style refreshing tokens are used; otherwise
// Token is sent as a static bearer token.
type RemoteConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token,omitempty"`
	TokenURL     string `yaml:"tokenUrl,omitempty"`
	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
	RefreshToken string `yaml:"refreshToken,omitempty"`
}

// HTTPConfig configures the HTTP service.
type HTTPConfig struct {
	Port int `yaml:"port,omitempty"`
}

// MQTTConfig holds MQTT connection settings. An empty broker disables
// event publishing.
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
}

// CaptureConfig tunes point capture and overlay rendering.
type CaptureConfig struct {
	DedupRadius   float64         `yaml:"dedupRadius,omitempty"`
	MaxImageWidth int             `yaml:"maxImageWidth,omitempty"`
	MarkerRadius  int             `yaml:"markerRadius,omitempty"`
	Rule          MeasurementRule `yaml:"measurementRule,omitempty"`
}

// ReportConfig tunes PDF/CSV export.
type ReportConfig struct {
	Title    string `yaml:"title,omitempty"`
	LogoPath string `yaml:"logoPath,omitempty"`

	// BaseURL, when set, puts a QR code on the PDF cover linking to
	// the project's report endpoint.
	BaseURL string `yaml:"baseUrl,omitempty"`
}

// LoadConfig loads and validates the YAML configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// DefaultConfig returns a config with all defaults applied and the
// file backend pointing at projects.json.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendFile
	}
	if c.Store.Path == "" {
		c.Store.Path = "projects.json"
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = "projects.db"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = "luxaudit"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "luxaudit"
	}
	if c.Capture.DedupRadius == 0 {
		c.Capture.DedupRadius = DefaultDedupRadius
	}
	if c.Capture.MaxImageWidth == 0 {
		c.Capture.MaxImageWidth = DefaultMaxImageWidth
	}
	if c.Capture.MarkerRadius == 0 {
		c.Capture.MarkerRadius = DefaultMarkerStyle().Radius
	}
	if c.Report.Title == "" {
		c.Report.Title = "Reporte Auditoría Iluminación RETILAP"
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreBackendFile, StoreBackendSQLite:
	case StoreBackendRemote:
		if c.Store.Remote.URL == "" {
			return fmt.Errorf("store.remote.url is required for the remote backend")
		}
		if c.Store.Remote.Token == "" && c.Store.Remote.TokenURL == "" {
			return fmt.Errorf("store.remote needs either token or tokenUrl")
		}
		if c.Store.Remote.TokenURL != "" && c.Store.Remote.RefreshToken == "" {
			return fmt.Errorf("store.remote.refreshToken is required with tokenUrl")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Capture.DedupRadius < 0 {
		return fmt.Errorf("capture.dedupRadius must be >= 0")
	}
	if c.Capture.Rule.MinReading < 0 {
		return fmt.Errorf("capture.measurementRule.minReading must be >= 0")
	}
	return nil
}

// ReferenceTable builds the configured table, or the built-in one when
// no override is present.
func (c *Config) ReferenceTable() (*ReferenceTable, error) {
	if len(c.Reference) == 0 {
		return DefaultReferenceTable(), nil
	}
	return NewReferenceTable(c.Reference)
}

// OpenStore constructs the configured ProjectStore.
func (c *Config) OpenStore(table *ReferenceTable) (ProjectStore, error) {
	switch c.Store.Backend {
	case StoreBackendFile:
		return NewFileStore(c.Store.Path, table), nil
	case StoreBackendSQLite:
		return NewSQLiteStore(c.Store.DBPath, table)
	case StoreBackendRemote:
		var tokens TokenSource
		if c.Store.Remote.TokenURL != "" {
			tokens = &RefreshingToken{
				TokenURL:     c.Store.Remote.TokenURL,
				ClientID:     c.Store.Remote.ClientID,
				ClientSecret: c.Store.Remote.ClientSecret,
				RefreshToken: c.Store.Remote.RefreshToken,
			}
		} else {
			tokens = StaticToken(c.Store.Remote.Token)
		}
		return NewRemoteStore(c.Store.Remote.URL, tokens, table), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
}
