package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/temirov/godeps/internal/utils"
)

const (
	// DefaultFormat is the output format used when neither configuration nor flags choose one.
	DefaultFormat = "raw"
	// DefaultMode is the explorer mode used when none is configured.
	DefaultMode = "modules"
	// DefaultServeAddress is the listen address of godeps serve.
	DefaultServeAddress = "127.0.0.1:8787"
	// DefaultConcurrency bounds parallel go list invocations.
	DefaultConcurrency = 4
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration holds the settings read from configuration files.
type ApplicationConfiguration struct {
	Go        GoConfiguration        `mapstructure:"go" yaml:"go"`
	Tree      TreeConfiguration      `mapstructure:"tree" yaml:"tree"`
	Workspace WorkspaceConfiguration `mapstructure:"workspace" yaml:"workspace"`
	Serve     ServeConfiguration     `mapstructure:"serve" yaml:"serve"`
	Watch     WatchConfiguration     `mapstructure:"watch" yaml:"watch"`
}

// GoConfiguration controls how the go tool is invoked.
type GoConfiguration struct {
	Binary      string `mapstructure:"binary" yaml:"binary"`
	Concurrency *int   `mapstructure:"concurrency" yaml:"concurrency"`
	Mode        string `mapstructure:"mode" yaml:"mode"`
}

// TreeConfiguration controls tree construction and rendering.
type TreeConfiguration struct {
	Format             string `mapstructure:"format" yaml:"format"`
	CollapseRoot       *bool  `mapstructure:"collapse_root" yaml:"collapse_root"`
	CollapseSingletons *bool  `mapstructure:"collapse_singletons" yaml:"collapse_singletons"`
	CaseInsensitive    *bool  `mapstructure:"case_insensitive" yaml:"case_insensitive"`
	Color              *bool  `mapstructure:"color" yaml:"color"`
}

// WorkspaceConfiguration lists the folders treated as workspace roots and
// the directories never searched for nested modules.
type WorkspaceConfiguration struct {
	Roots   []string `mapstructure:"roots" yaml:"roots"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
}

// ServeConfiguration configures the HTTP server.
type ServeConfiguration struct {
	Address string `mapstructure:"address" yaml:"address"`
}

// WatchConfiguration configures module file watching.
type WatchConfiguration struct {
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`
}

// LoadApplicationConfiguration loads configuration from global and local files.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", err)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, err := os.UserHomeDir(); err == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		globalConfig, loadErr := loadConfigurationFromPath(globalPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(globalConfig)
	}

	localPath, resolveErr := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveErr != nil {
		return ApplicationConfiguration{}, resolveErr
	}
	if localPath != "" {
		localConfig, loadErr := loadConfigurationFromPath(localPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(localConfig)
	}

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		if workingDirectory == "" {
			absolute, err := filepath.Abs(explicitPath)
			if err != nil {
				return "", fmt.Errorf("resolve configuration path %s: %w", explicitPath, err)
			}
			return absolute, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.LocalConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statErr)
	}
	if info.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	reader.SetConfigType("yaml")
	if readErr := reader.ReadInConfig(); readErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readErr)
	}
	var config ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&config); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeErr)
	}
	return config, nil
}

// Merge overlays override onto the receiver returning the combined configuration.
func (config ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := config
	result.Go = result.Go.merge(override.Go)
	result.Tree = result.Tree.merge(override.Tree)
	if len(override.Workspace.Roots) > 0 {
		result.Workspace.Roots = lo.Uniq(override.Workspace.Roots)
	}
	if len(override.Workspace.Exclude) > 0 {
		result.Workspace.Exclude = lo.Uniq(override.Workspace.Exclude)
	}
	if override.Serve.Address != "" {
		result.Serve.Address = override.Serve.Address
	}
	if override.Watch.Enabled != nil {
		result.Watch.Enabled = cloneBool(override.Watch.Enabled)
	}
	return result
}

func (config GoConfiguration) merge(override GoConfiguration) GoConfiguration {
	result := config
	if override.Binary != "" {
		result.Binary = override.Binary
	}
	if override.Concurrency != nil {
		result.Concurrency = cloneInt(override.Concurrency)
	}
	if override.Mode != "" {
		result.Mode = override.Mode
	}
	return result
}

func (config TreeConfiguration) merge(override TreeConfiguration) TreeConfiguration {
	result := config
	if override.Format != "" {
		result.Format = override.Format
	}
	if override.CollapseRoot != nil {
		result.CollapseRoot = cloneBool(override.CollapseRoot)
	}
	if override.CollapseSingletons != nil {
		result.CollapseSingletons = cloneBool(override.CollapseSingletons)
	}
	if override.CaseInsensitive != nil {
		result.CaseInsensitive = cloneBool(override.CaseInsensitive)
	}
	if override.Color != nil {
		result.Color = cloneBool(override.Color)
	}
	return result
}

// Settings is the configuration with every default applied.
type Settings struct {
	Binary             string
	Concurrency        int
	Mode               string
	Format             string
	CollapseRoot       bool
	CollapseSingletons bool
	CaseInsensitive    bool
	Color              bool
	WorkspaceRoots     []string
	WorkspaceExclude   []string
	ServeAddress       string
	WatchEnabled       bool
}

// Resolve fills unset values with defaults.
func (config ApplicationConfiguration) Resolve() Settings {
	settings := Settings{
		Binary:             config.Go.Binary,
		Concurrency:        DefaultConcurrency,
		Mode:               config.Go.Mode,
		Format:             config.Tree.Format,
		CollapseRoot:       boolOrDefault(config.Tree.CollapseRoot, false),
		CollapseSingletons: boolOrDefault(config.Tree.CollapseSingletons, true),
		CaseInsensitive:    boolOrDefault(config.Tree.CaseInsensitive, false),
		Color:              boolOrDefault(config.Tree.Color, false),
		WorkspaceRoots:     append([]string(nil), config.Workspace.Roots...),
		WorkspaceExclude:   append([]string(nil), config.Workspace.Exclude...),
		ServeAddress:       config.Serve.Address,
		WatchEnabled:       boolOrDefault(config.Watch.Enabled, false),
	}
	if config.Go.Concurrency != nil && *config.Go.Concurrency > 0 {
		settings.Concurrency = *config.Go.Concurrency
	}
	if settings.Mode == "" {
		settings.Mode = DefaultMode
	}
	if settings.Format == "" {
		settings.Format = DefaultFormat
	}
	if settings.ServeAddress == "" {
		settings.ServeAddress = DefaultServeAddress
	}
	return settings
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func cloneBool(value *bool) *bool {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
