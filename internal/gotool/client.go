// Package gotool wraps the go command: environment lookup, module listing and
// dependency package discovery.
package gotool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/mod/module"
	"golang.org/x/tools/go/packages"
)

const (
	// DefaultBinary is the go command looked up on PATH.
	DefaultBinary = "go"

	// EnvironmentGoRoot names the Go installation root.
	EnvironmentGoRoot = "GOROOT"
	// EnvironmentModuleCache names the module download cache.
	EnvironmentModuleCache = "GOMODCACHE"

	standardLibrarySourceDirectory = "src"
	allModulesPattern              = "all"
	allPackagesPattern             = "./..."

	errorDecodeEnvironment = "decode go env output: %w"
	errorDecodeModules     = "decode go list -m output for %s: %w"
	errorMissingVariable   = "go env did not report %s"
	errorLoadPackages      = "load packages in %s: %w"
)

// ErrMissingVariable reports an expected go env variable that was empty.
var ErrMissingVariable = errors.New("missing go environment variable")

// Module is one entry of `go list -m`. The embedded module.Version carries
// the import path and version.
type Module struct {
	module.Version
	Dir        string
	IsReplaced bool
	IsMain     bool
}

// PackageDirectory is one package directory reached from a workspace's
// packages through imports.
type PackageDirectory struct {
	Dir           string
	ImportPath    string
	ModulePath    string
	ModuleVersion string
	ModuleDir     string
	IsReplaced    bool
	IsStandard    bool
}

type moduleRecord struct {
	Path    string
	Version string
	Dir     string
	Main    bool
	Replace *moduleRecord
}

// PackageLoader loads packages the way golang.org/x/tools/go/packages does.
type PackageLoader func(config *packages.Config, patterns ...string) ([]*packages.Package, error)

// Client invokes the go command.
type Client struct {
	binary       string
	runner       CommandRunner
	loadPackages PackageLoader
	logger       *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithBinary selects the go executable.
func WithBinary(binary string) Option {
	return func(client *Client) {
		if strings.TrimSpace(binary) != "" {
			client.binary = binary
		}
	}
}

// WithRunner replaces the subprocess runner.
func WithRunner(runner CommandRunner) Option {
	return func(client *Client) {
		if runner != nil {
			client.runner = runner
		}
	}
}

// WithPackageLoader replaces packages.Load.
func WithPackageLoader(loader PackageLoader) Option {
	return func(client *Client) {
		if loader != nil {
			client.loadPackages = loader
		}
	}
}

// NewClient constructs a Client.
func NewClient(logger *zap.Logger, options ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &Client{
		binary:       DefaultBinary,
		runner:       ExecRunner{},
		loadPackages: packages.Load,
		logger:       logger,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// Environment returns the variables reported by `go env -json`.
func (client *Client) Environment(ctx context.Context) (map[string]string, error) {
	output, runError := client.runner.Run(ctx, "", client.binary, "env", "-json")
	if runError != nil {
		return nil, runError
	}
	environment := make(map[string]string)
	if decodeError := json.Unmarshal(output, &environment); decodeError != nil {
		return nil, fmt.Errorf(errorDecodeEnvironment, decodeError)
	}
	return environment, nil
}

// StandardLibraryDir returns GOROOT/src from a go environment.
func StandardLibraryDir(environment map[string]string) (string, error) {
	goRoot := strings.TrimSpace(environment[EnvironmentGoRoot])
	if goRoot == "" {
		return "", fmt.Errorf("%w: "+errorMissingVariable, ErrMissingVariable, EnvironmentGoRoot)
	}
	return filepath.Join(goRoot, standardLibrarySourceDirectory), nil
}

// ModuleCacheDir returns GOMODCACHE from a go environment.
func ModuleCacheDir(environment map[string]string) (string, error) {
	moduleCache := strings.TrimSpace(environment[EnvironmentModuleCache])
	if moduleCache == "" {
		return "", fmt.Errorf("%w: "+errorMissingVariable, ErrMissingVariable, EnvironmentModuleCache)
	}
	return filepath.Clean(moduleCache), nil
}

// ListModules runs `go list -m -json pattern` in workingDirectory. Modules
// that have not been downloaded (no directory) are left out.
func (client *Client) ListModules(ctx context.Context, pattern string, workingDirectory string) ([]Module, error) {
	if pattern == "" {
		pattern = allModulesPattern
	}
	output, runError := client.runner.Run(ctx, workingDirectory, client.binary, "list", "-m", "-json", pattern)
	if runError != nil {
		return nil, runError
	}
	decoder := json.NewDecoder(bytes.NewReader(output))
	var modules []Module
	for {
		var record moduleRecord
		decodeError := decoder.Decode(&record)
		if errors.Is(decodeError, io.EOF) {
			break
		}
		if decodeError != nil {
			return nil, fmt.Errorf(errorDecodeModules, workingDirectory, decodeError)
		}
		directory := record.Dir
		if record.Replace != nil && record.Replace.Dir != "" {
			directory = record.Replace.Dir
		}
		if directory == "" {
			client.logger.Debug("module has no directory", zap.String("module", record.Path))
			continue
		}
		modules = append(modules, Module{
			Version:    module.Version{Path: record.Path, Version: record.Version},
			Dir:        filepath.Clean(directory),
			IsReplaced: record.Replace != nil,
			IsMain:     record.Main,
		})
	}
	return modules, nil
}

// ListDependencyPackageDirs loads the workspace packages and every package
// they import, the equivalent of `go list -deps ./...`.
func (client *Client) ListDependencyPackageDirs(ctx context.Context, workingDirectory string) ([]PackageDirectory, error) {
	config := &packages.Config{
		Context: ctx,
		Dir:     workingDirectory,
		Mode:    packages.NeedName | packages.NeedFiles | packages.NeedModule | packages.NeedImports | packages.NeedDeps,
	}
	loaded, loadError := client.loadPackages(config, allPackagesPattern)
	if loadError != nil {
		return nil, fmt.Errorf(errorLoadPackages, workingDirectory, loadError)
	}

	seen := make(map[string]struct{})
	var directories []PackageDirectory
	packages.Visit(loaded, nil, func(visited *packages.Package) {
		directory := packageDirectory(visited)
		if directory == "" {
			return
		}
		if _, duplicate := seen[directory]; duplicate {
			return
		}
		seen[directory] = struct{}{}
		entry := PackageDirectory{Dir: directory, ImportPath: visited.PkgPath, IsStandard: visited.Module == nil}
		if visited.Module != nil {
			entry.ModulePath = visited.Module.Path
			entry.ModuleVersion = visited.Module.Version
			entry.ModuleDir = visited.Module.Dir
			if visited.Module.Replace != nil {
				entry.IsReplaced = true
				if visited.Module.Replace.Dir != "" {
					entry.ModuleDir = visited.Module.Replace.Dir
				}
			}
		}
		directories = append(directories, entry)
	})
	return directories, nil
}

func packageDirectory(visited *packages.Package) string {
	files := visited.GoFiles
	if len(files) == 0 {
		files = visited.OtherFiles
	}
	if len(files) == 0 {
		return ""
	}
	return filepath.Dir(files[0])
}
