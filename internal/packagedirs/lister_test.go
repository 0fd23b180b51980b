package packagedirs_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temirov/godeps/internal/packagedirs"
)

const moduleRoot = "/cache/github.com/example/lib@v1.2.3"

func writeFiles(testingHandle *testing.T, fileSystem afero.Fs, relativePaths ...string) {
	testingHandle.Helper()
	for _, relativePath := range relativePaths {
		fullPath := filepath.Join(moduleRoot, relativePath)
		require.NoError(testingHandle, fileSystem.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoError(testingHandle, afero.WriteFile(fileSystem, fullPath, []byte("package x\n"), 0o644))
	}
}

func TestListPackageDirectories(testingHandle *testing.T) {
	fileSystem := afero.NewMemMapFs()
	writeFiles(testingHandle, fileSystem,
		"lib.go",
		"README.md",
		"internal/parse/parse.go",
		"docs/guide.md",
		"testdata/fixture/main.go",
		"cmd/tool/main.go",
	)
	require.NoError(testingHandle, fileSystem.MkdirAll(filepath.Join(moduleRoot, "empty"), 0o755))

	lister := packagedirs.NewLister(fileSystem, nil)
	directories, listError := lister.ListPackageDirectories(context.Background(), moduleRoot)
	require.NoError(testingHandle, listError)

	assert.ElementsMatch(testingHandle, []string{
		moduleRoot,
		filepath.Join(moduleRoot, "internal/parse"),
		filepath.Join(moduleRoot, "testdata/fixture"),
		filepath.Join(moduleRoot, "cmd/tool"),
	}, directories)
	assert.Equal(testingHandle, moduleRoot, directories[0])
}

func TestListPackageDirectoriesMissingRoot(testingHandle *testing.T) {
	lister := packagedirs.NewLister(afero.NewMemMapFs(), nil)
	_, listError := lister.ListPackageDirectories(context.Background(), "/does/not/exist")
	assert.Error(testingHandle, listError)
}

func TestListPackageDirectoriesHonorsCancellation(testingHandle *testing.T) {
	fileSystem := afero.NewMemMapFs()
	writeFiles(testingHandle, fileSystem, "lib.go")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, listError := packagedirs.NewLister(fileSystem, nil).ListPackageDirectories(ctx, moduleRoot)
	assert.ErrorIs(testingHandle, listError, context.Canceled)
}

func TestReadDirectoryEntries(testingHandle *testing.T) {
	fileSystem := afero.NewMemMapFs()
	writeFiles(testingHandle, fileSystem, "b.go", "a.go", "sub/c.go")

	entries, readError := packagedirs.NewLister(fileSystem, nil).ReadDirectoryEntries(moduleRoot)
	require.NoError(testingHandle, readError)
	assert.Equal(testingHandle, []packagedirs.Entry{
		{Name: "a.go"},
		{Name: "b.go"},
		{Name: "sub", IsDirectory: true},
	}, entries)
}
