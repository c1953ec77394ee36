package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" env:"AURA_LOG_LEVEL"`   // debug, info, warn, error
	Format     string          `yaml:"format" env:"AURA_LOG_FORMAT"` // json, console
	File       string          `yaml:"file" env:"AURA_LOG_FILE"`     // empty = stderr
	Categories map[string]bool `yaml:"categories"`                   // per-category toggles
}

// IsCategoryEnabled reports whether a category should emit logs.
// Categories not listed are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}
