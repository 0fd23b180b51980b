package dependencies

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/mod/module"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/godeps/internal/gotool"
	"github.com/temirov/godeps/internal/hierarchy"
	"github.com/temirov/godeps/internal/vfs"
	"github.com/temirov/godeps/internal/workspace"
)

// Mode selects how dependency package directories are discovered.
type Mode string

const (
	// ModeModules lists every module of the build list and scans its
	// directory for packages.
	ModeModules Mode = "modules"
	// ModeImports keeps only the packages reachable through imports.
	ModeImports Mode = "imports"

	// DefaultConcurrency bounds the number of concurrent go and directory calls.
	DefaultConcurrency = 4

	allModulesPattern = "all"

	errorEnvironmentFormat = "resolve go environment: %w"
	errorDiscoverFormat    = "discover workspace modules: %w"
	errorUnknownModeFormat = "unknown dependency mode %q"

	warningModuleListing   = "module listing failed, root contributes nothing"
	warningPackageListing  = "package directory listing failed, module contributes nothing"
	warningStandardLibrary = "standard library listing failed"
	warningImportListing   = "dependency package listing failed, root contributes nothing"
	debugRefreshStarted    = "refreshing dependency trees"
	debugRefreshFinished   = "dependency trees refreshed"
)

// ErrNotReady is returned before the first successful refresh.
var ErrNotReady = errors.New("dependency trees have not been built yet")

// GoTool is the subset of the go command the explorer needs.
type GoTool interface {
	Environment(ctx context.Context) (map[string]string, error)
	ListModules(ctx context.Context, pattern string, workingDirectory string) ([]gotool.Module, error)
	ListDependencyPackageDirs(ctx context.Context, workingDirectory string) ([]gotool.PackageDirectory, error)
}

// PackageDirLister finds package directories and lists directory entries.
type PackageDirLister interface {
	EntryReader
	ListPackageDirectories(ctx context.Context, rootPath string) ([]string, error)
}

// ModuleDiscoverer finds the module roots of workspace folders.
type ModuleDiscoverer interface {
	Discover(ctx context.Context, folders []string) ([]workspace.Module, error)
}

// TreeOptions controls how the dependency trees are shaped.
type TreeOptions struct {
	CollapseRoot       bool
	CollapseSingletons bool
	CaseInsensitive    bool
}

// ExplorerOptions configures an Explorer.
type ExplorerOptions struct {
	Folders     []string
	Mode        Mode
	Concurrency int
	Tree        TreeOptions
	GoTool      GoTool
	Lister      PackageDirLister
	Discoverer  ModuleDiscoverer
	Logger      *zap.Logger
}

// Explorer builds dependency snapshots and publishes the most recent one.
type Explorer struct {
	options  ExplorerOptions
	logger   *zap.Logger
	current  atomic.Pointer[Snapshot]
	mutex    sync.Mutex
	handlers []func(*Snapshot)
}

// NewExplorer validates options and constructs an Explorer.
func NewExplorer(options ExplorerOptions) (*Explorer, error) {
	if options.Mode == "" {
		options.Mode = ModeModules
	}
	if options.Mode != ModeModules && options.Mode != ModeImports {
		return nil, fmt.Errorf(errorUnknownModeFormat, options.Mode)
	}
	if options.Concurrency <= 0 {
		options.Concurrency = DefaultConcurrency
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if options.GoTool == nil || options.Lister == nil || options.Discoverer == nil {
		return nil, errors.New("explorer requires a go tool, a package lister and a module discoverer")
	}
	return &Explorer{options: options, logger: options.Logger}, nil
}

// Current returns the published snapshot.
func (explorer *Explorer) Current() (*Snapshot, error) {
	snapshot := explorer.current.Load()
	if snapshot == nil {
		return nil, ErrNotReady
	}
	return snapshot, nil
}

// OnRefresh registers a handler invoked after every published refresh.
func (explorer *Explorer) OnRefresh(handler func(*Snapshot)) {
	explorer.mutex.Lock()
	defer explorer.mutex.Unlock()
	explorer.handlers = append(explorer.handlers, handler)
}

// Refresh rebuilds every tree and publishes the result. Failures of single
// roots or modules are logged and leave them out; only a missing go
// environment or an unreadable workspace fails the refresh, in which case the
// previous snapshot stays published.
func (explorer *Explorer) Refresh(ctx context.Context) (*Snapshot, error) {
	explorer.logger.Debug(debugRefreshStarted, zap.Strings("folders", explorer.options.Folders))

	environment, environmentError := explorer.options.GoTool.Environment(ctx)
	if environmentError != nil {
		return nil, fmt.Errorf(errorEnvironmentFormat, environmentError)
	}
	standardLibraryDir, standardError := gotool.StandardLibraryDir(environment)
	if standardError != nil {
		return nil, fmt.Errorf(errorEnvironmentFormat, standardError)
	}
	moduleCacheDir, cacheError := gotool.ModuleCacheDir(environment)
	if cacheError != nil {
		return nil, fmt.Errorf(errorEnvironmentFormat, cacheError)
	}

	modules, discoverError := explorer.options.Discoverer.Discover(ctx, explorer.options.Folders)
	if discoverError != nil {
		return nil, fmt.Errorf(errorDiscoverFormat, discoverError)
	}
	workspaceRoots := make([]string, 0, len(explorer.options.Folders)+len(modules))
	for _, folder := range explorer.options.Folders {
		workspaceRoots = append(workspaceRoots, filepath.Clean(folder))
	}
	for _, workspaceModule := range modules {
		workspaceRoots = append(workspaceRoots, workspaceModule.Dir)
	}

	var directories collectedDirectories
	var classification Classification
	var collectError error
	switch explorer.options.Mode {
	case ModeImports:
		directories, classification, collectError = explorer.collectImports(ctx, modules, workspaceRoots, standardLibraryDir)
	default:
		directories, classification, collectError = explorer.collectModules(ctx, modules, workspaceRoots, standardLibraryDir)
	}
	if collectError != nil {
		return nil, collectError
	}

	snapshot := explorer.buildSnapshot(directories, classification, standardLibraryDir, moduleCacheDir)
	explorer.current.Store(snapshot)
	explorer.logger.Debug(debugRefreshFinished,
		zap.Int("nodes", snapshot.Index().Len()),
		zap.Int("external_modules", len(classification.External)),
		zap.Int("replaced_modules", len(classification.Replaced)),
	)

	explorer.mutex.Lock()
	handlers := append([]func(*Snapshot){}, explorer.handlers...)
	explorer.mutex.Unlock()
	for _, handler := range handlers {
		handler(snapshot)
	}
	return snapshot, nil
}

type collectedDirectories struct {
	standardLibrary []string
	external        []string
	replaced        []string
}

func (explorer *Explorer) collectModules(ctx context.Context, modules []workspace.Module, workspaceRoots []string, standardLibraryDir string) (collectedDirectories, Classification, error) {
	results := make([]RootModules, len(modules))
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(explorer.options.Concurrency)
	for moduleIndex, workspaceModule := range modules {
		moduleIndex, workspaceModule := moduleIndex, workspaceModule
		group.Go(func() error {
			listed, listError := explorer.options.GoTool.ListModules(groupContext, allModulesPattern, workspaceModule.Dir)
			if listError != nil {
				explorer.logger.Warn(warningModuleListing, zap.String("root", workspaceModule.Dir), zap.Error(listError))
			}
			results[moduleIndex] = RootModules{Root: workspaceModule.Dir, Modules: listed, Err: listError}
			return nil
		})
	}
	var standardLibrary []string
	group.Go(func() error {
		listed, listError := explorer.options.Lister.ListPackageDirectories(groupContext, standardLibraryDir)
		if listError != nil {
			explorer.logger.Warn(warningStandardLibrary, zap.String("root", standardLibraryDir), zap.Error(listError))
			return nil
		}
		standardLibrary = listed
		return nil
	})
	if waitError := group.Wait(); waitError != nil {
		return collectedDirectories{}, Classification{}, waitError
	}
	if err := ctx.Err(); err != nil {
		return collectedDirectories{}, Classification{}, err
	}

	classification := Classify(results, workspaceRoots, explorer.options.Tree.CaseInsensitive)
	external, externalError := explorer.listPackageDirectories(ctx, classification.ExternalDirs())
	if externalError != nil {
		return collectedDirectories{}, Classification{}, externalError
	}
	replaced, replacedError := explorer.listPackageDirectories(ctx, classification.ReplacedDirs())
	if replacedError != nil {
		return collectedDirectories{}, Classification{}, replacedError
	}
	return collectedDirectories{standardLibrary: standardLibrary, external: external, replaced: replaced}, classification, nil
}

// listPackageDirectories scans every module directory concurrently and
// concatenates the results in module order.
func (explorer *Explorer) listPackageDirectories(ctx context.Context, moduleDirs []string) ([]string, error) {
	perModule := make([][]string, len(moduleDirs))
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(explorer.options.Concurrency)
	for moduleIndex, moduleDir := range moduleDirs {
		moduleIndex, moduleDir := moduleIndex, moduleDir
		group.Go(func() error {
			listed, listError := explorer.options.Lister.ListPackageDirectories(groupContext, moduleDir)
			if listError != nil {
				explorer.logger.Warn(warningPackageListing, zap.String("module_dir", moduleDir), zap.Error(listError))
				return nil
			}
			perModule[moduleIndex] = listed
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil {
		return nil, waitError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var directories []string
	for _, listed := range perModule {
		directories = append(directories, listed...)
	}
	return directories, nil
}

func (explorer *Explorer) collectImports(ctx context.Context, modules []workspace.Module, workspaceRoots []string, standardLibraryDir string) (collectedDirectories, Classification, error) {
	perRoot := make([][]gotool.PackageDirectory, len(modules))
	results := make([]RootModules, len(modules))
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(explorer.options.Concurrency)
	for moduleIndex, workspaceModule := range modules {
		moduleIndex, workspaceModule := moduleIndex, workspaceModule
		group.Go(func() error {
			listed, listError := explorer.options.GoTool.ListDependencyPackageDirs(groupContext, workspaceModule.Dir)
			if listError != nil {
				explorer.logger.Warn(warningImportListing, zap.String("root", workspaceModule.Dir), zap.Error(listError))
				results[moduleIndex] = RootModules{Root: workspaceModule.Dir, Err: listError}
				return nil
			}
			perRoot[moduleIndex] = listed
			results[moduleIndex] = RootModules{Root: workspaceModule.Dir, Modules: packageModules(listed)}
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil {
		return collectedDirectories{}, Classification{}, waitError
	}
	if err := ctx.Err(); err != nil {
		return collectedDirectories{}, Classification{}, err
	}

	caseInsensitive := explorer.options.Tree.CaseInsensitive
	normalizedStandardLibrary := hierarchy.NormalizePath(standardLibraryDir, caseInsensitive)
	var directories collectedDirectories
	for _, listed := range perRoot {
		for _, packageDirectory := range listed {
			switch {
			case packageDirectory.IsStandard:
				if hierarchy.IsUnder(hierarchy.NormalizePath(packageDirectory.Dir, caseInsensitive), normalizedStandardLibrary) {
					directories.standardLibrary = append(directories.standardLibrary, packageDirectory.Dir)
				}
			case underAny(packageDirectory.Dir, workspaceRoots, caseInsensitive):
			case packageDirectory.IsReplaced:
				directories.replaced = append(directories.replaced, packageDirectory.Dir)
			default:
				directories.external = append(directories.external, packageDirectory.Dir)
			}
		}
	}
	return directories, Classify(results, workspaceRoots, caseInsensitive), nil
}

// packageModules derives the modules owning the listed packages so imports
// mode classifies with the same rules as modules mode.
func packageModules(listed []gotool.PackageDirectory) []gotool.Module {
	var modules []gotool.Module
	for _, packageDirectory := range listed {
		if packageDirectory.IsStandard || packageDirectory.ModuleDir == "" {
			continue
		}
		modules = append(modules, gotool.Module{
			Version:    module.Version{Path: packageDirectory.ModulePath, Version: packageDirectory.ModuleVersion},
			Dir:        filepath.Clean(packageDirectory.ModuleDir),
			IsReplaced: packageDirectory.IsReplaced,
		})
	}
	return modules
}

func (explorer *Explorer) buildSnapshot(directories collectedDirectories, classification Classification, standardLibraryDir string, moduleCacheDir string) *Snapshot {
	treeOptions := explorer.options.Tree
	var standardLibrary *hierarchy.Directory
	if len(directories.standardLibrary) > 0 {
		standardLibrary = hierarchy.Build(directories.standardLibrary, hierarchy.BuildOptions{
			RootPath:           standardLibraryDir,
			RootPathRewrite:    vfs.RootStandardLibrary,
			RootLabel:          LabelStandardLibrary,
			CollapseRoot:       treeOptions.CollapseRoot,
			CollapseSingletons: treeOptions.CollapseSingletons,
			CaseInsensitive:    treeOptions.CaseInsensitive,
			Logger:             explorer.logger,
		})
	}
	external := hierarchy.Build(directories.external, hierarchy.BuildOptions{
		RootPath:           moduleCacheDir,
		RootPathRewrite:    vfs.RootExternal,
		RootLabel:          LabelExternal,
		CollapseRoot:       treeOptions.CollapseRoot,
		CollapseSingletons: treeOptions.CollapseSingletons,
		CaseInsensitive:    treeOptions.CaseInsensitive,
		Logger:             explorer.logger,
	})
	replaced, hasReplaced := hierarchy.BuildGrouped(hierarchy.GroupByRoot(directories.replaced, treeOptions.CaseInsensitive), hierarchy.BuildOptions{
		RootPathRewrite: vfs.RootReplaced,
		RootLabel:       LabelReplaced,
		CollapseRoot:    treeOptions.CollapseRoot,
		CaseInsensitive: treeOptions.CaseInsensitive,
		Logger:          explorer.logger,
	})
	if !hasReplaced {
		replaced = nil
	}
	return newSnapshot(standardLibrary, external, replaced, classification, standardLibraryDir, moduleCacheDir, treeOptions.CaseInsensitive, explorer.options.Lister)
}
