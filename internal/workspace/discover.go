// Package workspace locates the Go modules that make up a workspace.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/mod/modfile"
)

const (
	goModFileName  = "go.mod"
	goWorkFileName = "go.work"
	goModPattern   = "**/" + goModFileName

	errorGlobFormat       = "searching %s for go.mod files: %w"
	errorReadFormat       = "read %s: %w"
	errorParseWorkFormat  = "parse %s: %w"
	warningParseModule    = "skipping unparsable go.mod"
	debugModuleDiscovered = "module discovered"
)

// DefaultExcludePatterns are directories never searched for nested modules.
var DefaultExcludePatterns = []string{
	"**/vendor/**",
	"**/testdata/**",
	"**/node_modules/**",
	"**/.git/**",
}

// Module is one module root found in a workspace folder.
type Module struct {
	Dir        string
	ModulePath string
}

// Discoverer finds module roots below workspace folders.
type Discoverer struct {
	fileSystem      afero.Fs
	excludePatterns []string
	logger          *zap.Logger
}

// NewDiscoverer constructs a Discoverer. A nil fileSystem means the operating
// system filesystem; nil excludePatterns means DefaultExcludePatterns.
func NewDiscoverer(fileSystem afero.Fs, excludePatterns []string, logger *zap.Logger) *Discoverer {
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}
	if excludePatterns == nil {
		excludePatterns = DefaultExcludePatterns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{fileSystem: fileSystem, excludePatterns: excludePatterns, logger: logger}
}

// Discover returns the module roots of every folder: each go.mod below the
// folder plus every directory named by a go.work use directive. A folder
// without any module is returned as-is so the go tool can report on it.
func (discoverer *Discoverer) Discover(ctx context.Context, folders []string) ([]Module, error) {
	var modules []Module
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cleanFolder := filepath.Clean(folder)
		folderModules, discoverError := discoverer.discoverFolder(cleanFolder)
		if discoverError != nil {
			return nil, discoverError
		}
		if len(folderModules) == 0 {
			folderModules = []Module{{Dir: cleanFolder}}
		}
		modules = append(modules, folderModules...)
	}
	modules = lo.UniqBy(modules, func(module Module) string {
		return module.Dir
	})
	sort.SliceStable(modules, func(left, right int) bool {
		return modules[left].Dir < modules[right].Dir
	})
	return modules, nil
}

func (discoverer *Discoverer) discoverFolder(folder string) ([]Module, error) {
	folderFs := afero.NewIOFS(afero.NewBasePathFs(discoverer.fileSystem, folder))
	matches, globError := doublestar.Glob(folderFs, goModPattern)
	if globError != nil {
		return nil, fmt.Errorf(errorGlobFormat, folder, globError)
	}
	matches = lo.Filter(matches, func(match string, _ int) bool {
		return !discoverer.excluded(match)
	})

	var modules []Module
	for _, match := range matches {
		moduleDirectory := filepath.Join(folder, filepath.FromSlash(path.Dir(match)))
		module, readError := discoverer.readModule(moduleDirectory)
		if readError != nil {
			discoverer.logger.Warn(warningParseModule, zap.String("path", moduleDirectory), zap.Error(readError))
			continue
		}
		discoverer.logger.Debug(debugModuleDiscovered, zap.String("path", module.Dir), zap.String("module", module.ModulePath))
		modules = append(modules, module)
	}

	workModules, workError := discoverer.readWorkUses(folder)
	if workError != nil {
		return nil, workError
	}
	return append(modules, workModules...), nil
}

func (discoverer *Discoverer) excluded(match string) bool {
	for _, pattern := range discoverer.excludePatterns {
		if matched, _ := doublestar.Match(pattern, match); matched {
			return true
		}
	}
	return false
}

func (discoverer *Discoverer) readModule(moduleDirectory string) (Module, error) {
	goModPath := filepath.Join(moduleDirectory, goModFileName)
	content, readError := afero.ReadFile(discoverer.fileSystem, goModPath)
	if readError != nil {
		return Module{}, fmt.Errorf(errorReadFormat, goModPath, readError)
	}
	return Module{Dir: moduleDirectory, ModulePath: modfile.ModulePath(content)}, nil
}

func (discoverer *Discoverer) readWorkUses(folder string) ([]Module, error) {
	goWorkPath := filepath.Join(folder, goWorkFileName)
	content, readError := afero.ReadFile(discoverer.fileSystem, goWorkPath)
	if readError != nil {
		if os.IsNotExist(readError) {
			return nil, nil
		}
		return nil, fmt.Errorf(errorReadFormat, goWorkPath, readError)
	}
	workFile, parseError := modfile.ParseWork(goWorkPath, content, nil)
	if parseError != nil {
		return nil, fmt.Errorf(errorParseWorkFormat, goWorkPath, parseError)
	}
	var modules []Module
	for _, use := range workFile.Use {
		if use == nil || use.Path == "" {
			continue
		}
		useDirectory := use.Path
		if !filepath.IsAbs(useDirectory) {
			useDirectory = filepath.Join(folder, filepath.FromSlash(useDirectory))
		}
		module, moduleError := discoverer.readModule(filepath.Clean(useDirectory))
		if moduleError != nil {
			discoverer.logger.Warn(warningParseModule, zap.String("path", useDirectory), zap.Error(moduleError))
			continue
		}
		modules = append(modules, module)
	}
	return modules, nil
}
