package dependencies_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/mod/module"

	"github.com/temirov/godeps/internal/dependencies"
	"github.com/temirov/godeps/internal/gotool"
)

func listedModule(path string, version string, directory string, replaced bool) gotool.Module {
	return gotool.Module{Version: module.Version{Path: path, Version: version}, Dir: directory, IsReplaced: replaced}
}

func TestClassify(testingHandle *testing.T) {
	testCases := []struct {
		name             string
		results          []dependencies.RootModules
		workspaceRoots   []string
		caseInsensitive  bool
		expectedExternal []string
		expectedReplaced []string
	}{
		{
			name: "excludes_workspace_modules",
			results: []dependencies.RootModules{{
				Root: "/work/app",
				Modules: []gotool.Module{
					listedModule("example.com/app", "", "/work/app", false),
					listedModule("example.com/app/tools", "", "/work/app/tools", true),
					listedModule("github.com/pkg/errors", "v0.9.1", "/cache/github.com/pkg/errors@v0.9.1", false),
					listedModule("example.com/forked", "v1.0.0", "/forks/lib", true),
				},
			}},
			workspaceRoots:   []string{"/work/app/"},
			expectedExternal: []string{"/cache/github.com/pkg/errors@v0.9.1"},
			expectedReplaced: []string{"/forks/lib"},
		},
		{
			name: "similar_prefix_is_not_self",
			results: []dependencies.RootModules{{
				Root:    "/work/app",
				Modules: []gotool.Module{listedModule("example.com/applied", "", "/work/applied", true)},
			}},
			workspaceRoots:   []string{"/work/app"},
			expectedReplaced: []string{"/work/applied"},
		},
		{
			name: "failed_roots_contribute_nothing",
			results: []dependencies.RootModules{
				{Root: "/work/broken", Modules: []gotool.Module{listedModule("github.com/x/y", "v1.0.0", "/cache/github.com/x/y@v1.0.0", false)}, Err: errors.New("go.mod malformed")},
				{Root: "/work/app", Modules: []gotool.Module{listedModule("github.com/a/b", "v1.0.0", "/cache/github.com/a/b@v1.0.0", false)}},
			},
			workspaceRoots:   []string{"/work/broken", "/work/app"},
			expectedExternal: []string{"/cache/github.com/a/b@v1.0.0"},
		},
		{
			name: "union_deduplicates_directories",
			results: []dependencies.RootModules{
				{Root: "/work/a", Modules: []gotool.Module{listedModule("github.com/z/z", "v1.0.0", "/cache/github.com/z/z@v1.0.0", false)}},
				{Root: "/work/b", Modules: []gotool.Module{
					listedModule("github.com/z/z", "v1.0.0", "/cache/github.com/z/z@v1.0.0", false),
					listedModule("github.com/a/a", "v2.0.0", "/cache/github.com/a/a@v2.0.0", false),
				}},
			},
			workspaceRoots:   []string{"/work/a", "/work/b"},
			expectedExternal: []string{"/cache/github.com/a/a@v2.0.0", "/cache/github.com/z/z@v1.0.0"},
		},
		{
			name: "case_insensitive_volumes_compare_equal",
			results: []dependencies.RootModules{{
				Root: "c:/work/app",
				Modules: []gotool.Module{
					listedModule("example.com/app/sub", "", "C:/work/app/sub", true),
					listedModule("example.com/forked", "v1.0.0", "C:/forks/lib", true),
					listedModule("example.com/forked", "v1.0.0", "c:/forks/lib", true),
				},
			}},
			workspaceRoots:   []string{"c:/work/app"},
			caseInsensitive:  true,
			expectedReplaced: []string{"C:/forks/lib"},
		},
		{
			name: "case_sensitive_volumes_differ",
			results: []dependencies.RootModules{{
				Root:    "c:/work/app",
				Modules: []gotool.Module{listedModule("example.com/app/sub", "", "C:/work/app/sub", true)},
			}},
			workspaceRoots:   []string{"c:/work/app"},
			expectedReplaced: []string{"C:/work/app/sub"},
		},
	}
	for _, testCase := range testCases {
		testingHandle.Run(testCase.name, func(subTest *testing.T) {
			classification := dependencies.Classify(testCase.results, testCase.workspaceRoots, testCase.caseInsensitive)
			assert.Equal(subTest, testCase.expectedExternal, classification.ExternalDirs())
			assert.Equal(subTest, testCase.expectedReplaced, classification.ReplacedDirs())
		})
	}
}

func TestNodeKindText(testingHandle *testing.T) {
	var kind dependencies.NodeKind
	assert.NoError(testingHandle, kind.UnmarshalText([]byte("file")))
	assert.Equal(testingHandle, dependencies.NodeKindFile, kind)
	text, _ := dependencies.NodeKindDirectory.MarshalText()
	assert.Equal(testingHandle, "directory", string(text))
	assert.Error(testingHandle, kind.UnmarshalText([]byte("symlink")))
}
