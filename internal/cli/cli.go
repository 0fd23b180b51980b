// Package cli provides the command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/godeps/internal/config"
	"github.com/temirov/godeps/internal/dependencies"
	"github.com/temirov/godeps/internal/gotool"
	"github.com/temirov/godeps/internal/output"
	"github.com/temirov/godeps/internal/packagedirs"
	"github.com/temirov/godeps/internal/services/clipboard"
	"github.com/temirov/godeps/internal/utils"
	"github.com/temirov/godeps/internal/workspace"
)

const (
	versionFlagName         = "version"
	configFlagName          = "config"
	workspaceFlagName       = "workspace"
	modeFlagName            = "mode"
	debugFlagName           = "debug"
	formatFlagName          = "format"
	collapseFlagName        = "collapse"
	collapseRootFlagName    = "collapse-root"
	caseInsensitiveFlagName = "case-insensitive"
	colorFlagName           = "color"
	versionTemplate         = "godeps version: %s\n"
	rootUse                 = "godeps"
	rootShortDescription    = "godeps command line interface"
	rootLongDescription     = `godeps shows the packages a Go workspace depends on as three directory trees:
the standard library, external modules from the module cache, and replaced modules.
Paths inside the trees are virtual (/StdLib, /ExtPack, /ExtPackReplaced) and map back to real directories.
Use --format to select raw, json, or xml output and --workspace to choose the workspace folders.`
	versionFlagDescription         = "display application version"
	configFlagDescription          = "configuration file used instead of ./" + utils.LocalConfigFileName
	workspaceFlagDescription       = "workspace folder (repeatable, defaults to the working directory)"
	modeFlagDescription            = "dependency discovery mode: modules or imports"
	debugFlagDescription           = "log discovery progress"
	formatFlagDescription          = "output format: raw, json or xml"
	collapseFlagDescription        = "merge chains of single-child directories"
	collapseRootFlagDescription    = "allow the tree root to merge with a single child"
	caseInsensitiveFlagDescription = "compare paths case-insensitively"
	colorFlagDescription           = "color raw output"
	workingDirectoryErrorFormat    = "unable to determine working directory: %w"
	errorLoggerFormat              = "initialize logger: %w"
)

// errVersionShown stops command execution after --version printed the version.
var errVersionShown = errors.New("version shown")

// application carries the collaborators and resolved settings shared by every command.
type application struct {
	stdout           io.Writer
	stderr           io.Writer
	fileSystem       afero.Fs
	goTool           dependencies.GoTool
	copier           clipboard.Copier
	logger           *zap.Logger
	workingDirectory string

	configPath      string
	workspaceRoots  []string
	mode            string
	debug           bool
	showVersion     bool
	format          string
	collapse        bool
	collapseRoot    bool
	caseInsensitive bool
	color           bool

	settings config.Settings
}

func newApplication() *application {
	return &application{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		fileSystem: afero.NewOsFs(),
		copier:     clipboard.NewService(),
	}
}

// Execute runs the godeps application.
func Execute(ctx context.Context) error {
	app := newApplication()
	rootCommand := createRootCommand(app)
	rootCommand.SetArgs(normalizeBooleanFlagArguments(rootCommand, os.Args[1:]))
	executeErr := rootCommand.ExecuteContext(ctx)
	if app.logger != nil {
		_ = app.logger.Sync()
	}
	if errors.Is(executeErr, errVersionShown) {
		return nil
	}
	return executeErr
}

// createRootCommand builds the root Cobra command.
func createRootCommand(app *application) *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           rootUse,
		Short:         rootShortDescription,
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			if app.showVersion {
				fmt.Fprintf(app.stdout, versionTemplate, utils.GetApplicationVersion())
				return nil
			}
			return command.Help()
		},
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			if app.showVersion {
				if command.HasParent() {
					fmt.Fprintf(app.stdout, versionTemplate, utils.GetApplicationVersion())
					return errVersionShown
				}
				return nil
			}
			return app.prepare(command)
		},
	}
	rootCommand.SetOut(app.stdout)
	rootCommand.SetErr(app.stderr)

	flags := rootCommand.PersistentFlags()
	flags.BoolVar(&app.showVersion, versionFlagName, false, versionFlagDescription)
	flags.StringVar(&app.configPath, configFlagName, "", configFlagDescription)
	flags.StringArrayVar(&app.workspaceRoots, workspaceFlagName, nil, workspaceFlagDescription)
	flags.StringVar(&app.mode, modeFlagName, config.DefaultMode, modeFlagDescription)
	registerBooleanFlag(flags, &app.debug, debugFlagName, false, debugFlagDescription)
	registerFormatFlag(flags, &app.format, formatFlagName, formatFlagDescription)
	registerBooleanFlag(flags, &app.collapse, collapseFlagName, true, collapseFlagDescription)
	registerBooleanFlag(flags, &app.collapseRoot, collapseRootFlagName, false, collapseRootFlagDescription)
	registerBooleanFlag(flags, &app.caseInsensitive, caseInsensitiveFlagName, false, caseInsensitiveFlagDescription)
	registerBooleanFlag(flags, &app.color, colorFlagName, false, colorFlagDescription)

	rootCommand.AddCommand(
		createTreeCommand(app),
		createModulesCommand(app),
		createLookupCommand(app),
		createListCommand(app),
		createCatCommand(app),
		createPathCommand(app),
		createServeCommand(app),
		createWatchCommand(app),
		createInitCommand(app),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// prepare loads configuration and lets explicitly set flags override it.
func (app *application) prepare(command *cobra.Command) error {
	if app.logger == nil {
		logger, loggerErr := utils.NewApplicationLogger(app.debug)
		if loggerErr != nil {
			return fmt.Errorf(errorLoggerFormat, loggerErr)
		}
		app.logger = logger
	}
	workingDirectory := app.workingDirectory
	if workingDirectory == "" {
		current, workingDirectoryErr := os.Getwd()
		if workingDirectoryErr != nil {
			return fmt.Errorf(workingDirectoryErrorFormat, workingDirectoryErr)
		}
		workingDirectory = current
	}

	loaded, loadErr := config.LoadApplicationConfiguration(config.LoadOptions{
		WorkingDirectory: workingDirectory,
		ExplicitFilePath: app.configPath,
	})
	if loadErr != nil {
		return loadErr
	}
	settings := loaded.Resolve()

	flags := command.Flags()
	if len(app.workspaceRoots) > 0 {
		settings.WorkspaceRoots = app.workspaceRoots
	}
	if len(settings.WorkspaceRoots) == 0 {
		settings.WorkspaceRoots = []string{workingDirectory}
	}
	roots := make([]string, 0, len(settings.WorkspaceRoots))
	for _, root := range settings.WorkspaceRoots {
		if !filepath.IsAbs(root) {
			root = filepath.Join(workingDirectory, root)
		}
		roots = append(roots, filepath.Clean(root))
	}
	settings.WorkspaceRoots = lo.Uniq(roots)

	if flags.Changed(modeFlagName) {
		settings.Mode = app.mode
	}
	if flags.Changed(formatFlagName) {
		settings.Format = app.format
	}
	settings.CollapseSingletons = booleanOverride(flags, collapseFlagName, app.collapse, settings.CollapseSingletons)
	settings.CollapseRoot = booleanOverride(flags, collapseRootFlagName, app.collapseRoot, settings.CollapseRoot)
	settings.CaseInsensitive = booleanOverride(flags, caseInsensitiveFlagName, app.caseInsensitive, settings.CaseInsensitive)
	settings.Color = booleanOverride(flags, colorFlagName, app.color, settings.Color)
	if formatErr := output.ValidateFormat(settings.Format); formatErr != nil {
		return formatErr
	}

	app.workingDirectory = workingDirectory
	app.settings = settings
	return nil
}

func (app *application) outputOptions() output.Options {
	return output.Options{Color: app.settings.Color}
}

// excludePatterns are the directories skipped by module discovery and watching.
func (app *application) excludePatterns() []string {
	return append(append([]string{}, workspace.DefaultExcludePatterns...), app.settings.WorkspaceExclude...)
}

func (app *application) discoverer() *workspace.Discoverer {
	return workspace.NewDiscoverer(app.fileSystem, app.excludePatterns(), app.logger)
}

// newExplorer wires the go tool, the package lister and the module
// discoverer into an Explorer shaped by the resolved settings.
func (app *application) newExplorer() (*dependencies.Explorer, error) {
	goTool := app.goTool
	if goTool == nil {
		goTool = gotool.NewClient(app.logger, gotool.WithBinary(app.settings.Binary))
	}
	return dependencies.NewExplorer(dependencies.ExplorerOptions{
		Folders:     app.settings.WorkspaceRoots,
		Mode:        dependencies.Mode(app.settings.Mode),
		Concurrency: app.settings.Concurrency,
		Tree: dependencies.TreeOptions{
			CollapseRoot:       app.settings.CollapseRoot,
			CollapseSingletons: app.settings.CollapseSingletons,
			CaseInsensitive:    app.settings.CaseInsensitive,
		},
		GoTool:     goTool,
		Lister:     packagedirs.NewLister(app.fileSystem, app.logger),
		Discoverer: app.discoverer(),
		Logger:     app.logger,
	})
}

// snapshot builds the dependency trees once.
func (app *application) snapshot(ctx context.Context) (*dependencies.Snapshot, error) {
	explorer, explorerErr := app.newExplorer()
	if explorerErr != nil {
		return nil, explorerErr
	}
	return explorer.Refresh(ctx)
}
