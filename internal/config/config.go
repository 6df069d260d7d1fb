// The application's root configuration: input artifact paths, rendering
// output, and the two delivery sinks.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/reportpipe/api/schemas"
)

var (
	instance *Config
	once     sync.Once
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Project    ProjectConfig    `mapstructure:"project"`
	Inputs     InputsConfig     `mapstructure:"inputs"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Report     ReportConfig     `mapstructure:"report"`
	Email      EmailConfig      `mapstructure:"email"`
	Confluence ConfluenceConfig `mapstructure:"confluence"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" json:"level" yaml:"level"`
	Format      string `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" json:"compress" yaml:"compress"`
}

// ProjectConfig names the pipeline run in subjects and page titles.
type ProjectConfig struct {
	Name string `mapstructure:"name"`
}

// InputsConfig points at the raw artifacts the external tools left behind.
// An empty path is valid and means the tool did not run.
type InputsConfig struct {
	Tests string `mapstructure:"tests"`
	SAST  string `mapstructure:"sast"`
	Deps  string `mapstructure:"deps"`
	Image string `mapstructure:"image"`
	DAST  string `mapstructure:"dast"`
}

// PathFor returns the configured artifact path for a tool kind.
func (c InputsConfig) PathFor(kind schemas.ToolKind) string {
	switch kind {
	case schemas.ToolTests:
		return c.Tests
	case schemas.ToolSAST:
		return c.SAST
	case schemas.ToolDeps:
		return c.Deps
	case schemas.ToolImage:
		return c.Image
	case schemas.ToolDAST:
		return c.DAST
	default:
		return ""
	}
}

// IngestConfig holds parsing policy knobs.
type IngestConfig struct {
	// UnknownSeverity is the band a finding falls into when its tool's
	// vocabulary is not in any mapping table. Findings that hit this
	// fallback carry a note; they are never dropped.
	UnknownSeverity string `mapstructure:"unknown_severity"`
}

// ReportConfig holds settings for the rendered artifacts.
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// EmailConfig holds the SMTP sink settings.
type EmailConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	From        string   `mapstructure:"from"`
	To          []string `mapstructure:"to"`
	MaxAttempts int      `mapstructure:"max_attempts"`
}

// ConfluenceConfig holds the wiki sink settings.
type ConfluenceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	Space    string `mapstructure:"space"`
	Username string `mapstructure:"username"`
	APIToken string `mapstructure:"api_token"`
	// PageTitle is the stable, title-keyed page the report lands on.
	PageTitle string `mapstructure:"page_title"`
	// ParentTitle, when set, parents a newly created report page under an
	// index page (created on demand).
	ParentTitle string        `mapstructure:"parent_title"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SetDefaults registers defaults so the app can run with a minimal config.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "reportpipe")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("project.name", "reportpipe")
	v.SetDefault("ingest.unknown_severity", string(schemas.SeverityMedium))
	v.SetDefault("report.output_dir", "report")

	v.SetDefault("email.port", 587)
	v.SetDefault("email.max_attempts", 3)

	v.SetDefault("confluence.timeout", 30*time.Second)
}

// Validate checks cross-field consistency before a run starts.
func (c *Config) Validate() error {
	if c.Report.OutputDir == "" {
		return fmt.Errorf("report.output_dir must be set")
	}
	if _, ok := schemas.ParseSeverity(c.Ingest.UnknownSeverity); c.Ingest.UnknownSeverity != "" && !ok {
		return fmt.Errorf("ingest.unknown_severity %q is not a known severity", c.Ingest.UnknownSeverity)
	}
	if c.Email.Enabled {
		if c.Email.Host == "" {
			return fmt.Errorf("email.host must be set when email is enabled")
		}
		if c.Email.From == "" || len(c.Email.To) == 0 {
			return fmt.Errorf("email.from and email.to must be set when email is enabled")
		}
		if c.Email.MaxAttempts < 1 {
			return fmt.Errorf("email.max_attempts must be at least 1")
		}
	}
	if c.Confluence.Enabled {
		if c.Confluence.BaseURL == "" {
			return fmt.Errorf("confluence.base_url must be set when confluence is enabled")
		}
		if !strings.HasPrefix(c.Confluence.BaseURL, "http://") && !strings.HasPrefix(c.Confluence.BaseURL, "https://") {
			return fmt.Errorf("confluence.base_url %q must be an absolute http(s) URL", c.Confluence.BaseURL)
		}
		if c.Confluence.Space == "" || c.Confluence.PageTitle == "" {
			return fmt.Errorf("confluence.space and confluence.page_title must be set when confluence is enabled")
		}
	}
	return nil
}

// UnknownSeverityBand resolves the configured fallback band.
func (c *Config) UnknownSeverityBand() schemas.Severity {
	if c.Ingest.UnknownSeverity == "" {
		return schemas.SeverityMedium
	}
	sev, _ := schemas.ParseSeverity(c.Ingest.UnknownSeverity)
	return sev
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	var loadErr error
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			loadErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
