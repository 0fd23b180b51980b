package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/mod/module"

	"github.com/temirov/godeps/internal/gotool"
	"github.com/temirov/godeps/internal/utils"
)

type stubGoTool struct{}

func (stubGoTool) Environment(context.Context) (map[string]string, error) {
	return map[string]string{"GOROOT": "/go", "GOMODCACHE": "/cache"}, nil
}

func (stubGoTool) ListModules(context.Context, string, string) ([]gotool.Module, error) {
	return []gotool.Module{
		{Dir: "/work/app", IsMain: true},
		{Version: module.Version{Path: "github.com/pkg/errors", Version: "v0.9.1"}, Dir: "/cache/github.com/pkg/errors@v0.9.1"},
		{Version: module.Version{Path: "example.com/forked", Version: "v1.0.0"}, Dir: "/forks/lib", IsReplaced: true},
	}, nil
}

func (stubGoTool) ListDependencyPackageDirs(context.Context, string) ([]gotool.PackageDirectory, error) {
	return nil, nil
}

type recordingCopier struct {
	copied []string
}

func (copier *recordingCopier) Copy(text string) error {
	copier.copied = append(copier.copied, text)
	return nil
}

type commandFixture struct {
	fileSystem       afero.Fs
	copier           *recordingCopier
	workingDirectory string
}

func newCommandFixture(t *testing.T) commandFixture {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("USERPROFILE", t.TempDir())
	fileSystem := afero.NewMemMapFs()
	for filePath, content := range map[string]string{
		"/go/src/fmt/print.go":                          "package fmt\n",
		"/go/src/fmt/table.bin":                         "\x00\x01",
		"/go/src/net/http/server.go":                    "package http\n",
		"/cache/github.com/pkg/errors@v0.9.1/errors.go": "package errors\n",
		"/forks/lib/lib.go":                             "package lib\n",
		"/work/app/go.mod":                              "module example.com/app\n",
		"/work/app/main.go":                             "package main\n",
	} {
		require.NoError(t, fileSystem.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, afero.WriteFile(fileSystem, filePath, []byte(content), 0o644))
	}
	return commandFixture{fileSystem: fileSystem, copier: &recordingCopier{}, workingDirectory: t.TempDir()}
}

func (fixture commandFixture) run(arguments ...string) (string, error) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	app := &application{
		stdout:           &stdout,
		stderr:           &stderr,
		fileSystem:       fixture.fileSystem,
		goTool:           stubGoTool{},
		copier:           fixture.copier,
		logger:           zap.NewNop(),
		workingDirectory: fixture.workingDirectory,
	}
	rootCommand := createRootCommand(app)
	allArguments := append([]string{"--workspace", "/work/app"}, arguments...)
	rootCommand.SetArgs(normalizeBooleanFlagArguments(rootCommand, allArguments))
	executeErr := rootCommand.ExecuteContext(context.Background())
	return stdout.String(), executeErr
}

func TestTreeCommand(t *testing.T) {
	fixture := newCommandFixture(t)

	rawOutput, err := fixture.run("tree", "std")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rawOutput, "Standard library (/StdLib)\n"), rawOutput)
	assert.Contains(t, rawOutput, "[Package] fmt\n")
	assert.Contains(t, rawOutput, "[Package] net/http\n")
	assert.NotContains(t, rawOutput, "External packages")

	allOutput, err := fixture.run("tree")
	require.NoError(t, err)
	assert.Contains(t, allOutput, "External packages (/ExtPack)")
	assert.Contains(t, allOutput, "[Package] github.com/pkg/errors@v0.9.1")
	assert.Contains(t, allOutput, "External packages (replaced) (/ExtPackReplaced)")

	expandedOutput, err := fixture.run("tree", "std", "--format", "json", "--collapse", "no")
	require.NoError(t, err)
	assert.Contains(t, expandedOutput, `"label": "net"`)
	assert.Contains(t, expandedOutput, `"path": "/StdLib/net/http"`)

	_, err = fixture.run("tree", "vendor")
	assert.Error(t, err)

	_, err = fixture.run("tree", "--format", "yaml")
	assert.Error(t, err)
}

func TestTreeCommandUsesConfigurationFile(t *testing.T) {
	fixture := newCommandFixture(t)
	configuration := "tree:\n  format: xml\n  collapse_singletons: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(fixture.workingDirectory, utils.LocalConfigFileName), []byte(configuration), 0o600))

	configuredOutput, err := fixture.run("tree", "std")
	require.NoError(t, err)
	assert.Contains(t, configuredOutput, `<directory label="net" path="/StdLib/net"`)

	overriddenOutput, err := fixture.run("tree", "std", "--format", "raw", "--collapse")
	require.NoError(t, err)
	assert.Contains(t, overriddenOutput, "[Package] net/http")
}

func TestModulesCommand(t *testing.T) {
	fixture := newCommandFixture(t)
	modulesOutput, err := fixture.run("modules")
	require.NoError(t, err)
	assert.Equal(t, "External modules:\n"+
		"  github.com/pkg/errors v0.9.1 => /cache/github.com/pkg/errors@v0.9.1\n"+
		"Replaced modules:\n"+
		"  example.com/forked v1.0.0 => /forks/lib\n", modulesOutput)
}

func TestLookupAndListCommands(t *testing.T) {
	fixture := newCommandFixture(t)

	lookupOutput, err := fixture.run("lookup", "/go/src/fmt/print.go")
	require.NoError(t, err)
	assert.Equal(t, "[Package] fmt\n", lookupOutput)

	_, err = fixture.run("lookup", "/elsewhere")
	assert.Error(t, err)

	listOutput, err := fixture.run("ls", "go-dep-file:///StdLib/fmt")
	require.NoError(t, err)
	assert.Equal(t, "[File] /StdLib/fmt/print.go\n[File] /StdLib/fmt/table.bin\n", listOutput)

	_, err = fixture.run("ls", "/StdLib/os")
	assert.Error(t, err)
}

func TestCatCommand(t *testing.T) {
	fixture := newCommandFixture(t)

	textOutput, err := fixture.run("cat", "/StdLib/fmt/print.go")
	require.NoError(t, err)
	assert.Equal(t, "File: /StdLib/fmt/print.go\npackage fmt\nEnd of file: /StdLib/fmt/print.go\n----------------------------------------\n", textOutput)

	realPathOutput, err := fixture.run("cat", "/go/src/fmt/print.go", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, realPathOutput, `"path": "/StdLib/fmt/print.go"`)

	binaryOutput, err := fixture.run("cat", "/StdLib/fmt/table.bin")
	require.NoError(t, err)
	assert.Contains(t, binaryOutput, "(binary content, 2b)")

	_, err = fixture.run("cat", "/StdLib/fmt/missing.go")
	assert.Error(t, err)
}

func TestPathCommand(t *testing.T) {
	fixture := newCommandFixture(t)

	pathOutput, err := fixture.run("path", "/ExtPack/github.com/pkg/errors@v0.9.1")
	require.NoError(t, err)
	assert.Equal(t, "/cache/github.com/pkg/errors@v0.9.1\n", pathOutput)
	assert.Empty(t, fixture.copier.copied)

	copiedOutput, err := fixture.run("path", "--copy", "/StdLib/fmt")
	require.NoError(t, err)
	assert.Equal(t, "/go/src/fmt\n", copiedOutput)
	assert.Equal(t, []string{"/go/src/fmt"}, fixture.copier.copied)

	replacedOutput, err := fixture.run("path", "/forks/lib")
	require.NoError(t, err)
	assert.Equal(t, "/forks/lib\n", replacedOutput)

	_, err = fixture.run("path", "/elsewhere/file.go")
	assert.Error(t, err)
}

func TestInitCommand(t *testing.T) {
	fixture := newCommandFixture(t)
	initOutput, err := fixture.run("init")
	require.NoError(t, err)
	expectedPath := filepath.Join(fixture.workingDirectory, utils.LocalConfigFileName)
	assert.Equal(t, "configuration written to "+expectedPath+"\n", initOutput)
	assert.FileExists(t, expectedPath)

	_, err = fixture.run("init")
	assert.Error(t, err)
	_, err = fixture.run("init", "--force")
	assert.NoError(t, err)
}

func TestUnknownModeIsRejected(t *testing.T) {
	fixture := newCommandFixture(t)
	_, err := fixture.run("tree", "--mode", "vendored")
	assert.ErrorContains(t, err, "unknown dependency mode")
}

func TestVersionFlag(t *testing.T) {
	fixture := newCommandFixture(t)
	versionOutput, err := fixture.run("--version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(versionOutput, "godeps version: "))

	subcommandOutput, err := fixture.run("tree", "--version")
	assert.ErrorIs(t, err, errVersionShown)
	assert.True(t, strings.HasPrefix(subcommandOutput, "godeps version: "))
}
