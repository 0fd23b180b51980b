package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/temirov/godeps/internal/utils"
)

// InitTarget identifies where configuration should be initialized.
type InitTarget string

const (
	// InitTargetLocal writes configuration into the working directory.
	InitTargetLocal InitTarget = "local"
	// InitTargetGlobal writes configuration into the global configuration directory.
	InitTargetGlobal InitTarget = "global"

	defaultBinary = "go"
	yamlIndent    = 2
)

// InitOptions controls how configuration initialization behaves.
type InitOptions struct {
	Target           InitTarget
	Force            bool
	WorkingDirectory string
}

// DefaultConfiguration returns the configuration written by godeps init.
func DefaultConfiguration() ApplicationConfiguration {
	concurrency := DefaultConcurrency
	collapseRoot := false
	collapseSingletons := true
	caseInsensitive := false
	color := false
	watchEnabled := false
	return ApplicationConfiguration{
		Go: GoConfiguration{Binary: defaultBinary, Concurrency: &concurrency, Mode: DefaultMode},
		Tree: TreeConfiguration{
			Format:             DefaultFormat,
			CollapseRoot:       &collapseRoot,
			CollapseSingletons: &collapseSingletons,
			CaseInsensitive:    &caseInsensitive,
			Color:              &color,
		},
		Workspace: WorkspaceConfiguration{Roots: []string{}, Exclude: []string{}},
		Serve:     ServeConfiguration{Address: DefaultServeAddress},
		Watch:     WatchConfiguration{Enabled: &watchEnabled},
	}
}

// EncodeConfiguration renders configuration as YAML.
func EncodeConfiguration(configuration ApplicationConfiguration) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(yamlIndent)
	if encodeErr := encoder.Encode(configuration); encodeErr != nil {
		return nil, fmt.Errorf("encode configuration: %w", encodeErr)
	}
	if closeErr := encoder.Close(); closeErr != nil {
		return nil, fmt.Errorf("encode configuration: %w", closeErr)
	}
	return buffer.Bytes(), nil
}

// InitializeConfiguration writes the default configuration to the requested target.
func InitializeConfiguration(options InitOptions) (string, error) {
	target := options.Target
	if target == "" {
		target = InitTargetLocal
	}
	var destinationPath string
	switch target {
	case InitTargetLocal:
		workingDirectory := options.WorkingDirectory
		if workingDirectory == "" {
			current, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("determine working directory for configuration: %w", err)
			}
			workingDirectory = current
		}
		destinationPath = filepath.Join(workingDirectory, utils.LocalConfigFileName)
	case InitTargetGlobal:
		homeDirectory, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory for configuration: %w", err)
		}
		configurationDirectory := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName)
		if err := os.MkdirAll(configurationDirectory, 0o755); err != nil {
			return "", fmt.Errorf("create configuration directory %s: %w", configurationDirectory, err)
		}
		destinationPath = filepath.Join(configurationDirectory, utils.ConfigFileName)
	default:
		return "", fmt.Errorf("unsupported init target %q", target)
	}

	if _, err := os.Stat(destinationPath); err == nil {
		if !options.Force {
			return "", fmt.Errorf("configuration file already exists at %s", destinationPath)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("inspect configuration path %s: %w", destinationPath, err)
	}

	content, encodeErr := EncodeConfiguration(DefaultConfiguration())
	if encodeErr != nil {
		return "", encodeErr
	}
	if err := os.WriteFile(destinationPath, content, 0o600); err != nil {
		return "", fmt.Errorf("write configuration to %s: %w", destinationPath, err)
	}

	return destinationPath, nil
}
