package match

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the full configuration file
type Config struct {
	Catalogue CatalogueConfig `yaml:"catalogue,omitempty" json:"catalogue"`
	NoSwap    bool            `yaml:"noSwap,omitempty" json:"noSwap,omitempty"`
	Pair      *ParamsConfig   `yaml:"pair,omitempty" json:"pair,omitempty"`
	Triangle  *ParamsConfig   `yaml:"triangle,omitempty" json:"triangle,omitempty"`
	Quad      *ParamsConfig   `yaml:"quad,omitempty" json:"quad,omitempty"`
	MQTT      MQTTConfig      `yaml:"mqtt,omitempty" json:"mqtt"`
	Plot      PlotConfig      `yaml:"plot,omitempty" json:"plot"`
	Serve     ServeConfig     `yaml:"serve,omitempty" json:"serve"`
}

// CatalogueConfig holds column and separator defaults for both inputs.
// Zero values mean "use the built-in default".
type CatalogueConfig struct {
	X1  int    `yaml:"x1,omitempty" json:"x1,omitempty"`
	Y1  int    `yaml:"y1,omitempty" json:"y1,omitempty"`
	X2  int    `yaml:"x2,omitempty" json:"x2,omitempty"`
	Y2  int    `yaml:"y2,omitempty" json:"y2,omitempty"`
	FS1 string `yaml:"fs1,omitempty" json:"fs1,omitempty"`
	FS2 string `yaml:"fs2,omitempty" json:"fs2,omitempty"`
}

// ParamsConfig overrides matcher parameters; nil fields keep the default.
type ParamsConfig struct {
	DistCut      *float64 `yaml:"distCut,omitempty" json:"distCut,omitempty"`
	TransCut     *float64 `yaml:"transCut,omitempty" json:"transCut,omitempty"`
	Param2Factor *float64 `yaml:"param2Factor,omitempty" json:"param2Factor,omitempty"`
	XFactor      *float64 `yaml:"xFactor,omitempty" json:"xFactor,omitempty"`
	YFactor      *float64 `yaml:"yFactor,omitempty" json:"yFactor,omitempty"`
	MaxMatches   *int     `yaml:"maxMatches,omitempty" json:"maxMatches,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// PlotConfig controls the diagnostic overlay.
type PlotConfig struct {
	Output     string  `yaml:"output,omitempty" json:"output,omitempty"`
	Resolution float64 `yaml:"resolution,omitempty" json:"resolution,omitempty"` // PNG dots per mm of plot
	Size       float64 `yaml:"size,omitempty" json:"size,omitempty"`             // longest plot side in mm
}

// DefaultMaxPoints is the per-catalogue point limit of the HTTP service.
const DefaultMaxPoints = 64

// ServeConfig holds HTTP service limits.
type ServeConfig struct {
	// MaxPoints caps each catalogue of a match request. Zero selects
	// DefaultMaxPoints; a negative value removes the cap.
	MaxPoints int `yaml:"maxPoints,omitempty" json:"maxPoints,omitempty"`
}

// Apply copies the set fields onto p.
func (pc *ParamsConfig) Apply(p *Params) {
	if pc == nil {
		return
	}
	if pc.DistCut != nil {
		p.DistCut = *pc.DistCut
	}
	if pc.TransCut != nil {
		p.TransCut = *pc.TransCut
	}
	if pc.Param2Factor != nil {
		p.Param2Factor = *pc.Param2Factor
	}
	if pc.XFactor != nil {
		p.XFactor = *pc.XFactor
	}
	if pc.YFactor != nil {
		p.YFactor = *pc.YFactor
	}
	if pc.MaxMatches != nil {
		p.MaxMatches = *pc.MaxMatches
	}
}

// Section returns the override block for kind.
func (c *Config) Section(kind Kind) *ParamsConfig {
	switch kind {
	case KindPair:
		return c.Pair
	case KindTriangle:
		return c.Triangle
	case KindQuad:
		return c.Quad
	}
	return nil
}

// Params returns the defaults for kind with the file's overrides applied.
func (c *Config) Params(kind Kind) Params {
	p := DefaultParams(kind)
	if c == nil {
		return p
	}
	c.Section(kind).Apply(&p)
	p.NoSwap = c.NoSwap
	return p
}

// MaxPoints returns the per-catalogue point limit of the HTTP service, or
// 0 when there is none.
func (c *Config) MaxPoints() int {
	if c == nil || c.Serve.MaxPoints == 0 {
		return DefaultMaxPoints
	}
	if c.Serve.MaxPoints < 0 {
		return 0
	}
	return c.Serve.MaxPoints
}

// LoadOptions returns the column settings for catalogue 1 or 2.
func (c *Config) LoadOptions(which int) LoadOptions {
	opts := DefaultLoadOptions()
	if c == nil {
		return opts
	}
	x, y, fs := c.Catalogue.X1, c.Catalogue.Y1, c.Catalogue.FS1
	if which == 2 {
		x, y, fs = c.Catalogue.X2, c.Catalogue.Y2, c.Catalogue.FS2
	}
	if x > 0 {
		opts.XCol = x
	}
	if y > 0 {
		opts.YCol = y
	}
	if fs != "" {
		opts.Separators = fs
	}
	return opts
}

// LoadConfig loads the configuration from a YAML file
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

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	cols := []struct {
		name string
		v    int
	}{
		{"catalogue.x1", c.Catalogue.X1},
		{"catalogue.y1", c.Catalogue.Y1},
		{"catalogue.x2", c.Catalogue.X2},
		{"catalogue.y2", c.Catalogue.Y2},
	}
	for _, col := range cols {
		if col.v < 0 {
			return fmt.Errorf("%s must be a 1-based column, got %d", col.name, col.v)
		}
	}

	for _, kind := range []Kind{KindPair, KindTriangle, KindQuad} {
		if c.Section(kind) == nil {
			continue
		}
		if err := c.Params(kind).Validate(kind); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
	}

	if (c.MQTT.PublishPrefix != "" || c.MQTT.ClientID != "" || c.MQTT.Username != "") && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.Plot.Resolution < 0 || c.Plot.Size < 0 {
		return fmt.Errorf("plot.resolution and plot.size must not be negative")
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
