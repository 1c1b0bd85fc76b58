package linker

import (
	"github.com/ZanzyTHEbar/recon-linker-go/internal/config"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/database"
)

// Config exposes a stable wrapper for store and correlation settings in package mode.
// Zero values fall back to the defaults used by the CLI.
type Config struct {
	URL              string
	AuthToken        string
	ProjectsDir      string
	MultiProjectMode bool
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxIdleSec   int
	ConnMaxLifeSec   int

	// Confidence and SourceTool are written on heuristic edges.
	Confidence float64
	SourceTool string
}

// FromAppConfig maps the CLI configuration onto a service Config.
func FromAppConfig(c *config.Config) *Config {
	return &Config{
		URL:              c.Database.URL,
		AuthToken:        c.Database.AuthToken,
		ProjectsDir:      c.Database.ProjectsDir,
		MultiProjectMode: c.Database.ProjectsDir != "",
		MaxOpenConns:     c.Database.MaxOpenConns,
		MaxIdleConns:     c.Database.MaxIdleConns,
		ConnMaxIdleSec:   c.Database.ConnMaxIdleSec,
		ConnMaxLifeSec:   c.Database.ConnMaxLifeSec,
		Confidence:       c.Correlation.Confidence,
		SourceTool:       c.Correlation.SourceTool,
	}
}

func (c *Config) toInternal() *database.Config {
	url := c.URL
	if url == "" && !c.MultiProjectMode {
		url = database.NewConfig().URL
	}
	return &database.Config{
		URL:              url,
		AuthToken:        c.AuthToken,
		ProjectsDir:      c.ProjectsDir,
		MultiProjectMode: c.MultiProjectMode,
		MaxOpenConns:     c.MaxOpenConns,
		MaxIdleConns:     c.MaxIdleConns,
		ConnMaxIdleSec:   c.ConnMaxIdleSec,
		ConnMaxLifeSec:   c.ConnMaxLifeSec,
	}
}
