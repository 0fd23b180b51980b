package cli

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/godeps/internal/config"
	"github.com/temirov/godeps/internal/dependencies"
	"github.com/temirov/godeps/internal/hierarchy"
	"github.com/temirov/godeps/internal/services/server"
	"github.com/temirov/godeps/internal/utils"
	"github.com/temirov/godeps/internal/watch"
)

const (
	serveUse              = "serve"
	watchUse              = "watch"
	initUse               = "init"
	serveShortDescription = "serve the dependency trees over HTTP"
	serveLongDescription  = `Build the dependency trees and serve them read-only over HTTP.
With --watch the trees are rebuilt whenever a go.mod or go.sum file of the workspace changes.`
	watchShortDescription  = "rebuild the dependency trees when go.mod or go.sum change"
	initShortDescription   = "write the default configuration file"
	addressFlagName        = "address"
	addressFlagDescription = "listen address"
	watchFlagName          = "watch"
	watchFlagDescription   = "rebuild on go.mod and go.sum changes"
	globalFlagName         = "global"
	globalFlagDescription  = "write ~/" + utils.GlobalConfigDirectoryName + "/" + utils.ConfigFileName + " instead of ./" + utils.LocalConfigFileName
	forceFlagName          = "force"
	forceFlagDescription   = "overwrite an existing configuration file"
	listeningFormat        = "listening on http://%s\n"
	refreshedFormat        = "%s refreshed: %d nodes\n"
	initializedFormat      = "configuration written to %s\n"
	logRefreshFailed       = "refresh failed, previous trees kept"
	logWatching            = "watching module files"
)

// createServeCommand returns the serve subcommand.
func createServeCommand(app *application) *cobra.Command {
	var address string
	var watchEnabled bool
	serveCommand := &cobra.Command{
		Use:   serveUse,
		Short: serveShortDescription,
		Long:  serveLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			if command.Flags().Changed(addressFlagName) {
				app.settings.ServeAddress = address
			}
			app.settings.WatchEnabled = booleanOverride(command.Flags(), watchFlagName, watchEnabled, app.settings.WatchEnabled)
			return app.serve(command.Context())
		},
	}
	serveCommand.Flags().StringVar(&address, addressFlagName, config.DefaultServeAddress, addressFlagDescription)
	registerBooleanFlag(serveCommand.Flags(), &watchEnabled, watchFlagName, false, watchFlagDescription)
	return serveCommand
}

func (app *application) serve(ctx context.Context) error {
	explorer, explorerErr := app.newExplorer()
	if explorerErr != nil {
		return explorerErr
	}
	if _, refreshErr := explorer.Refresh(ctx); refreshErr != nil {
		return refreshErr
	}

	group, groupCtx := errgroup.WithContext(ctx)
	httpServer := server.NewServer(server.Config{
		Address:    app.settings.ServeAddress,
		Explorer:   explorer,
		FileSystem: app.fileSystem,
		Output:     app.outputOptions(),
		Logger:     app.logger,
	})
	group.Go(func() error {
		return httpServer.Run(groupCtx, func(address string) {
			fmt.Fprintf(app.stderr, listeningFormat, address)
		})
	})
	if app.settings.WatchEnabled {
		group.Go(func() error {
			return app.watch(groupCtx, explorer, nil)
		})
	}
	return group.Wait()
}

// createWatchCommand returns the watch subcommand.
func createWatchCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   watchUse,
		Short: watchShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			explorer, explorerErr := app.newExplorer()
			if explorerErr != nil {
				return explorerErr
			}
			report := func(snapshot *dependencies.Snapshot) {
				fmt.Fprintf(app.stdout, refreshedFormat, utils.FormatTimestamp(snapshot.BuiltAt), snapshot.Index().Len())
			}
			snapshot, refreshErr := explorer.Refresh(command.Context())
			if refreshErr != nil {
				return refreshErr
			}
			report(snapshot)
			return app.watch(command.Context(), explorer, report)
		},
	}
}

// watch refreshes explorer whenever a module file below a workspace folder
// changes. Modules outside the folders, such as go.work uses, are watched as
// well. A failed refresh keeps the published trees.
func (app *application) watch(ctx context.Context, explorer *dependencies.Explorer, report func(*dependencies.Snapshot)) error {
	modules, discoverErr := app.discoverer().Discover(ctx, app.settings.WorkspaceRoots)
	if discoverErr != nil {
		return discoverErr
	}
	directories := append([]string{}, app.settings.WorkspaceRoots...)
	for _, module := range modules {
		if !lo.ContainsBy(directories, func(directory string) bool { return hierarchy.IsUnder(module.Dir, directory) }) {
			directories = append(directories, module.Dir)
		}
	}
	app.logger.Debug(logWatching, zap.Strings("directories", directories))
	watcher := watch.NewWatcher(directories, app.excludePatterns(), watch.DefaultDebounce, app.logger)
	return watcher.Run(ctx, func(refreshCtx context.Context) {
		snapshot, refreshErr := explorer.Refresh(refreshCtx)
		if refreshErr != nil {
			app.logger.Warn(logRefreshFailed, zap.Error(refreshErr))
			return
		}
		if report != nil {
			report(snapshot)
		}
	})
}

// createInitCommand returns the init subcommand.
func createInitCommand(app *application) *cobra.Command {
	var globalTarget bool
	var force bool
	initCommand := &cobra.Command{
		Use:   initUse,
		Short: initShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			target := config.InitTargetLocal
			if globalTarget {
				target = config.InitTargetGlobal
			}
			destination, initErr := config.InitializeConfiguration(config.InitOptions{
				Target:           target,
				Force:            force,
				WorkingDirectory: app.workingDirectory,
			})
			if initErr != nil {
				return initErr
			}
			fmt.Fprintf(app.stdout, initializedFormat, destination)
			return nil
		},
	}
	registerBooleanFlag(initCommand.Flags(), &globalTarget, globalFlagName, false, globalFlagDescription)
	registerBooleanFlag(initCommand.Flags(), &force, forceFlagName, false, forceFlagDescription)
	return initCommand
}
