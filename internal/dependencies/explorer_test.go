package dependencies_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/godeps/internal/dependencies"
	"github.com/temirov/godeps/internal/gotool"
	"github.com/temirov/godeps/internal/hierarchy"
	"github.com/temirov/godeps/internal/packagedirs"
	"github.com/temirov/godeps/internal/workspace"
)

type fakeGoTool struct {
	mutex          sync.Mutex
	environment    map[string]string
	environmentErr error
	modulesByRoot  map[string][]gotool.Module
	errorsByRoot   map[string]error
	packagesByRoot map[string][]gotool.PackageDirectory
	listCalls      int
}

func (tool *fakeGoTool) Environment(context.Context) (map[string]string, error) {
	return tool.environment, tool.environmentErr
}

func (tool *fakeGoTool) ListModules(_ context.Context, _ string, workingDirectory string) ([]gotool.Module, error) {
	tool.mutex.Lock()
	tool.listCalls++
	tool.mutex.Unlock()
	if listError := tool.errorsByRoot[workingDirectory]; listError != nil {
		return nil, listError
	}
	return tool.modulesByRoot[workingDirectory], nil
}

func (tool *fakeGoTool) ListDependencyPackageDirs(_ context.Context, workingDirectory string) ([]gotool.PackageDirectory, error) {
	if listError := tool.errorsByRoot[workingDirectory]; listError != nil {
		return nil, listError
	}
	return tool.packagesByRoot[workingDirectory], nil
}

func seedFileSystem(testingHandle *testing.T) afero.Fs {
	testingHandle.Helper()
	fileSystem := afero.NewMemMapFs()
	for filePath, content := range map[string]string{
		"/go/src/fmt/print.go":                             "package fmt\n",
		"/go/src/fmt/doc.go":                               "package fmt\n",
		"/go/src/net/http/server.go":                       "package http\n",
		"/cache/github.com/pkg/errors@v0.9.1/errors.go":    "package errors\n",
		"/cache/golang.org/x/mod@v0.28.0/LICENSE":          "BSD\n",
		"/cache/golang.org/x/mod@v0.28.0/modfile/read.go":  "package modfile\n",
		"/cache/golang.org/x/mod@v0.28.0/module/module.go": "package module\n",
		"/forks/lib/lib.go":                                "package lib\n",
		"/forks/lib/sub/sub.go":                            "package sub\n",
		"/work/app/go.mod":                                 "module example.com/app\n",
		"/work/app/main.go":                                "package main\n",
		"/work/app/tools/go.mod":                           "module example.com/app/tools\n",
		"/work/app/tools/tools.go":                         "package tools\n",
	} {
		require.NoError(testingHandle, fileSystem.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(testingHandle, afero.WriteFile(fileSystem, filePath, []byte(content), 0o644))
	}
	return fileSystem
}

func newFakeGoTool() *fakeGoTool {
	return &fakeGoTool{
		environment: map[string]string{"GOROOT": "/go", "GOMODCACHE": "/cache"},
		modulesByRoot: map[string][]gotool.Module{
			"/work/app": {
				{Dir: "/work/app", IsMain: true},
				listedModule("github.com/pkg/errors", "v0.9.1", "/cache/github.com/pkg/errors@v0.9.1", false),
				listedModule("golang.org/x/mod", "v0.28.0", "/cache/golang.org/x/mod@v0.28.0", false),
				listedModule("example.com/forked", "v1.0.0", "/forks/lib", true),
				listedModule("example.com/app/tools", "v0.0.0", "/work/app/tools", true),
			},
		},
		errorsByRoot: map[string]error{"/work/app/tools": errors.New("go: updates to go.mod needed")},
	}
}

func newExplorer(testingHandle *testing.T, tool *fakeGoTool, mode dependencies.Mode, logger *zap.Logger) *dependencies.Explorer {
	testingHandle.Helper()
	fileSystem := seedFileSystem(testingHandle)
	explorer, explorerError := dependencies.NewExplorer(dependencies.ExplorerOptions{
		Folders:     []string{"/work/app"},
		Mode:        mode,
		Concurrency: 2,
		Tree:        dependencies.TreeOptions{CollapseSingletons: true},
		GoTool:      tool,
		Lister:      packagedirs.NewLister(fileSystem, logger),
		Discoverer:  workspace.NewDiscoverer(fileSystem, nil, logger),
		Logger:      logger,
	})
	require.NoError(testingHandle, explorerError)
	return explorer
}

func childLabels(directory *hierarchy.Directory) []string {
	labels := make([]string, 0, len(directory.Subdirectories))
	for _, subdirectory := range directory.Subdirectories {
		labels = append(labels, subdirectory.Label)
	}
	return labels
}

func TestExplorerRefreshBuildsTrees(testingHandle *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	explorer := newExplorer(testingHandle, newFakeGoTool(), dependencies.ModeModules, zap.New(core))

	_, notReadyError := explorer.Current()
	assert.ErrorIs(testingHandle, notReadyError, dependencies.ErrNotReady)

	snapshot, refreshError := explorer.Refresh(context.Background())
	require.NoError(testingHandle, refreshError)
	current, currentError := explorer.Current()
	require.NoError(testingHandle, currentError)
	assert.Same(testingHandle, snapshot, current)

	require.NotNil(testingHandle, snapshot.StandardLibrary)
	assert.Equal(testingHandle, "/StdLib", snapshot.StandardLibrary.Path)
	assert.Equal(testingHandle, dependencies.LabelStandardLibrary, snapshot.StandardLibrary.Label)
	assert.ElementsMatch(testingHandle, []string{"fmt", "net/http"}, childLabels(snapshot.StandardLibrary))

	assert.Equal(testingHandle, "/ExtPack", snapshot.External.Path)
	assert.Equal(testingHandle, []string{"github.com/pkg/errors@v0.9.1", "golang.org/x/mod@v0.28.0"}, childLabels(snapshot.External))
	modNode, found := snapshot.Lookup("/ExtPack/golang.org/x/mod@v0.28.0")
	require.True(testingHandle, found)
	assert.False(testingHandle, modNode.IsPackageDirectory)
	assert.Equal(testingHandle, []string{"modfile", "module"}, childLabels(modNode))

	require.NotNil(testingHandle, snapshot.Replaced)
	assert.Equal(testingHandle, "/ExtPackReplaced", snapshot.Replaced.Path)
	require.Len(testingHandle, snapshot.Replaced.Subdirectories, 1)
	forkNode := snapshot.Replaced.Subdirectories[0]
	assert.Equal(testingHandle, "/forks/lib", forkNode.Path)
	assert.True(testingHandle, forkNode.IsPackageDirectory)
	assert.Equal(testingHandle, []string{"sub"}, childLabels(forkNode))

	assert.Equal(testingHandle, []string{"/cache/github.com/pkg/errors@v0.9.1", "/cache/golang.org/x/mod@v0.28.0"}, snapshot.Classification.ExternalDirs())
	assert.Equal(testingHandle, []string{"/forks/lib"}, snapshot.Classification.ReplacedDirs())

	var failedRoots []string
	for _, entry := range logs.All() {
		failedRoots = append(failedRoots, entry.ContextMap()["root"].(string))
	}
	assert.Equal(testingHandle, []string{"/work/app/tools"}, failedRoots)

	for _, root := range snapshot.Roots() {
		root.Walk(func(directory *hierarchy.Directory) bool {
			if directory != root && directory.IsLeaf() {
				assert.Truef(testingHandle, directory.IsPackageDirectory, "leaf %s", directory.Path)
			}
			return true
		})
	}
}

func TestSnapshotLookupsAndChildren(testingHandle *testing.T) {
	explorer := newExplorer(testingHandle, newFakeGoTool(), dependencies.ModeModules, nil)
	snapshot, refreshError := explorer.Refresh(context.Background())
	require.NoError(testingHandle, refreshError)

	node, found := snapshot.Lookup("/go/src/net/http")
	require.True(testingHandle, found)
	assert.Equal(testingHandle, "/StdLib/net/http", node.Path)

	node, found = snapshot.NearestAncestor("go-dep-file:///StdLib/fmt/print.go")
	require.True(testingHandle, found)
	assert.Equal(testingHandle, "/StdLib/fmt", node.Path)

	_, found = snapshot.Lookup("/elsewhere")
	assert.False(testingHandle, found)

	revealed, revealedFound := snapshot.Reveal("/go/src/fmt/print.go")
	require.True(testingHandle, revealedFound)
	assert.Equal(testingHandle, "/StdLib/fmt", revealed.Path)
	_, revealedFound = snapshot.Reveal("/cache/golang.org/x/mod@v0.28.0/LICENSE")
	assert.False(testingHandle, revealedFound)
	revealed, revealedFound = snapshot.Reveal("/forks/lib/sub/sub.go")
	require.True(testingHandle, revealedFound)
	assert.Equal(testingHandle, "/forks/lib/sub", revealed.Path)

	children, childrenError := snapshot.Children("/StdLib/fmt")
	require.NoError(testingHandle, childrenError)
	assert.Equal(testingHandle, []dependencies.Node{
		{Kind: dependencies.NodeKindFile, Label: "doc.go", Path: "/StdLib/fmt/doc.go"},
		{Kind: dependencies.NodeKindFile, Label: "print.go", Path: "/StdLib/fmt/print.go"},
	}, children)

	children, childrenError = snapshot.Children("/forks/lib")
	require.NoError(testingHandle, childrenError)
	assert.Equal(testingHandle, []dependencies.Node{
		{Kind: dependencies.NodeKindDirectory, Label: "sub", Path: "/forks/lib/sub", IsPackageDirectory: true},
		{Kind: dependencies.NodeKindFile, Label: "lib.go", Path: "/forks/lib/lib.go"},
	}, children)

	children, childrenError = snapshot.Children("/ExtPack")
	require.NoError(testingHandle, childrenError)
	assert.Len(testingHandle, children, 2)

	_, missingError := snapshot.Children("/StdLib/unknown")
	assert.ErrorIs(testingHandle, missingError, dependencies.ErrNotFound)
}

func TestExplorerRefreshKeepsPreviousSnapshotOnFailure(testingHandle *testing.T) {
	tool := newFakeGoTool()
	explorer := newExplorer(testingHandle, tool, dependencies.ModeModules, nil)
	first, refreshError := explorer.Refresh(context.Background())
	require.NoError(testingHandle, refreshError)

	tool.environmentErr = errors.New("go: command not found")
	_, refreshError = explorer.Refresh(context.Background())
	require.Error(testingHandle, refreshError)

	current, currentError := explorer.Current()
	require.NoError(testingHandle, currentError)
	assert.Same(testingHandle, first, current)
}

func TestExplorerRefreshNotifiesHandlers(testingHandle *testing.T) {
	explorer := newExplorer(testingHandle, newFakeGoTool(), dependencies.ModeModules, nil)
	var notified []*dependencies.Snapshot
	explorer.OnRefresh(func(snapshot *dependencies.Snapshot) {
		notified = append(notified, snapshot)
	})

	first, _ := explorer.Refresh(context.Background())
	second, _ := explorer.Refresh(context.Background())
	require.Len(testingHandle, notified, 2)
	assert.Same(testingHandle, first, notified[0])
	assert.Same(testingHandle, second, notified[1])
	assert.NotSame(testingHandle, first, second)
}

func TestExplorerImportsMode(testingHandle *testing.T) {
	tool := newFakeGoTool()
	tool.packagesByRoot = map[string][]gotool.PackageDirectory{
		"/work/app": {
			{Dir: "/work/app", ModulePath: "example.com/app", ModuleDir: "/work/app"},
			{Dir: "/go/src/fmt", IsStandard: true},
			{Dir: "/cache/golang.org/x/mod@v0.28.0/modfile", ModulePath: "golang.org/x/mod", ModuleVersion: "v0.28.0", ModuleDir: "/cache/golang.org/x/mod@v0.28.0"},
			{Dir: "/forks/lib/sub", ModulePath: "example.com/forked", ModuleDir: "/forks/lib", IsReplaced: true},
		},
	}
	explorer := newExplorer(testingHandle, tool, dependencies.ModeImports, nil)

	snapshot, refreshError := explorer.Refresh(context.Background())
	require.NoError(testingHandle, refreshError)
	assert.Equal(testingHandle, []string{"fmt"}, childLabels(snapshot.StandardLibrary))
	assert.Equal(testingHandle, []string{"golang.org/x/mod@v0.28.0/modfile"}, childLabels(snapshot.External))
	assert.Equal(testingHandle, []string{"/cache/golang.org/x/mod@v0.28.0"}, snapshot.Classification.ExternalDirs())
	assert.Equal(testingHandle, []string{"/forks/lib"}, snapshot.Classification.ReplacedDirs())
	require.NotNil(testingHandle, snapshot.Replaced)
	assert.Equal(testingHandle, "/forks/lib/sub", snapshot.Replaced.Subdirectories[0].Path)
	assert.Zero(testingHandle, tool.listCalls)
}

func TestNewExplorerRejectsUnknownMode(testingHandle *testing.T) {
	_, explorerError := dependencies.NewExplorer(dependencies.ExplorerOptions{Mode: "vendored"})
	assert.Error(testingHandle, explorerError)
}

func TestSnapshotSelect(testingHandle *testing.T) {
	tool := newFakeGoTool()
	tool.modulesByRoot["/work/app"] = tool.modulesByRoot["/work/app"][:3]
	explorer := newExplorer(testingHandle, tool, dependencies.ModeModules, nil)
	snapshot, refreshError := explorer.Refresh(context.Background())
	require.NoError(testingHandle, refreshError)

	testCases := []struct {
		treeName      string
		expectedPaths []string
	}{
		{treeName: dependencies.TreeStandardLibrary, expectedPaths: []string{"/StdLib"}},
		{treeName: dependencies.TreeExternal, expectedPaths: []string{"/ExtPack"}},
		{treeName: dependencies.TreeReplaced, expectedPaths: nil},
		{treeName: dependencies.TreeAll, expectedPaths: []string{"/StdLib", "/ExtPack"}},
	}
	for _, testCase := range testCases {
		selected, selectError := snapshot.Select(testCase.treeName)
		require.NoError(testingHandle, selectError)
		var paths []string
		for _, root := range selected {
			paths = append(paths, root.Path)
		}
		assert.Equalf(testingHandle, testCase.expectedPaths, paths, testCase.treeName)
	}

	_, selectError := snapshot.Select("vendor")
	assert.Error(testingHandle, selectError)
}

func TestExplorerCaseInsensitiveVolumes(testingHandle *testing.T) {
	fileSystem := afero.NewMemMapFs()
	for _, filePath := range []string{
		"C:/Go/src/fmt/print.go",
		"C:/cache/github.com/pkg/errors@v0.9.1/errors.go",
		"C:/forks/lib/lib.go",
		"C:/forks/lib/sub/sub.go",
		"C:/work/app/main.go",
	} {
		require.NoError(testingHandle, fileSystem.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(testingHandle, afero.WriteFile(fileSystem, filePath, []byte("package x\n"), 0o644))
	}
	require.NoError(testingHandle, afero.WriteFile(fileSystem, "C:/work/app/go.mod", []byte("module example.com/app\n"), 0o644))

	tool := &fakeGoTool{
		environment: map[string]string{"GOROOT": "C:/Go", "GOMODCACHE": "C:/cache"},
		modulesByRoot: map[string][]gotool.Module{
			"C:/work/app": {
				{Dir: "C:/work/app", IsMain: true},
				listedModule("github.com/pkg/errors", "v0.9.1", "C:/cache/github.com/pkg/errors@v0.9.1", false),
				listedModule("example.com/forked", "v1.0.0", "C:/forks/lib", true),
				listedModule("example.com/app/tool", "v0.0.0", "c:/work/app/tool", true),
			},
		},
	}
	explorer, explorerError := dependencies.NewExplorer(dependencies.ExplorerOptions{
		Folders:    []string{"C:/work/app"},
		Tree:       dependencies.TreeOptions{CollapseSingletons: true, CaseInsensitive: true},
		GoTool:     tool,
		Lister:     packagedirs.NewLister(fileSystem, nil),
		Discoverer: workspace.NewDiscoverer(fileSystem, nil, nil),
	})
	require.NoError(testingHandle, explorerError)

	snapshot, refreshError := explorer.Refresh(context.Background())
	require.NoError(testingHandle, refreshError)
	assert.Equal(testingHandle, []string{"C:/forks/lib"}, snapshot.Classification.ReplacedDirs())

	require.NotNil(testingHandle, snapshot.Replaced)
	require.Len(testingHandle, snapshot.Replaced.Subdirectories, 1)
	forkNode := snapshot.Replaced.Subdirectories[0]
	assert.Equal(testingHandle, "c:/forks/lib", forkNode.Path)

	children, childrenError := snapshot.Children(forkNode.Path)
	require.NoError(testingHandle, childrenError)
	require.Len(testingHandle, children, 2)
	assert.Equal(testingHandle, dependencies.NodeKindDirectory, children[0].Kind)
	assert.Equal(testingHandle, "lib.go", children[1].Label)

	upperCased, found := snapshot.Lookup("C:/forks/lib/sub")
	require.True(testingHandle, found)
	assert.Equal(testingHandle, "c:/forks/lib/sub", upperCased.Path)

	ancestor, found := snapshot.NearestAncestor("C:/Go/src/fmt/print.go")
	require.True(testingHandle, found)
	assert.Equal(testingHandle, "/StdLib/fmt", ancestor.Path)

	standardFiles, standardError := snapshot.Children("c:/Go/src/fmt")
	require.NoError(testingHandle, standardError)
	require.Len(testingHandle, standardFiles, 1)
	assert.Equal(testingHandle, "print.go", standardFiles[0].Label)
}
