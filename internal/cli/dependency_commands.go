package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/godeps/internal/dependencies"
	"github.com/temirov/godeps/internal/output"
	"github.com/temirov/godeps/internal/utils"
	"github.com/temirov/godeps/internal/vfs"
)

const (
	treeUse              = "tree [std|ext|replaced|all]"
	modulesUse           = "modules"
	lookupUse            = "lookup <path>"
	listUse              = "ls <path>"
	catUse               = "cat <path>"
	pathUse              = "path <path>"
	treeAlias            = "t"
	listAlias            = "children"
	treeShortDescription = "display dependency trees (" + treeAlias + ")"
	treeLongDescription  = `Render the standard library, external and replaced module trees.
Package directories are marked; chains of single-child directories are merged unless --collapse=false.`
	treeUsageExample = `  # Render every tree
  godeps tree

  # Standard library only, as JSON, without merging directories
  godeps tree std --format json --collapse=false`
	modulesShortDescription = "list external and replaced modules"
	lookupShortDescription  = "find the tree node nearest to a real or virtual path"
	lookupLongDescription   = `Find the tree node at a path or at its closest ancestor in the trees.
Paths may be real directories, virtual paths such as /StdLib/net/http, or go-dep-file URIs.`
	listShortDescription = "list subdirectories and files of a tree node"
	catShortDescription  = "print a file through the read-only dependency filesystem"
	pathShortDescription = "resolve a virtual path to its real location"
	copyFlagName         = "copy"
	copyFlagDescription  = "copy the resolved path to the clipboard"
	binaryContentFormat  = "(binary content, %s)"
	errorNoNodeFormat    = "no dependency node at or above %s"
	errorUnresolvedPath  = "%s is not inside a dependency tree"
	logPathCopied        = "path copied to clipboard"
)

// createTreeCommand returns the tree subcommand.
func createTreeCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:       treeUse,
		Aliases:   []string{treeAlias},
		Short:     treeShortDescription,
		Long:      treeLongDescription,
		Example:   treeUsageExample,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{dependencies.TreeStandardLibrary, dependencies.TreeExternal, dependencies.TreeReplaced, dependencies.TreeAll},
		RunE: func(command *cobra.Command, arguments []string) error {
			treeName := dependencies.TreeAll
			if len(arguments) == 1 {
				treeName = arguments[0]
			}
			snapshot, snapshotErr := app.snapshot(command.Context())
			if snapshotErr != nil {
				return snapshotErr
			}
			roots, selectErr := snapshot.Select(treeName)
			if selectErr != nil {
				return selectErr
			}
			return output.RenderTrees(app.stdout, app.settings.Format, roots, app.outputOptions())
		},
	}
}

// createModulesCommand returns the modules subcommand.
func createModulesCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   modulesUse,
		Short: modulesShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			snapshot, snapshotErr := app.snapshot(command.Context())
			if snapshotErr != nil {
				return snapshotErr
			}
			return output.RenderModules(app.stdout, app.settings.Format, snapshot.Classification, app.outputOptions())
		},
	}
}

// createLookupCommand returns the lookup subcommand.
func createLookupCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   lookupUse,
		Short: lookupShortDescription,
		Long:  lookupLongDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			snapshot, snapshotErr := app.snapshot(command.Context())
			if snapshotErr != nil {
				return snapshotErr
			}
			directory, found := snapshot.NearestAncestor(arguments[0])
			if !found {
				return fmt.Errorf(errorNoNodeFormat, arguments[0])
			}
			return output.RenderDirectory(app.stdout, app.settings.Format, directory, app.outputOptions())
		},
	}
}

// createListCommand returns the ls subcommand.
func createListCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:     listUse,
		Aliases: []string{listAlias},
		Short:   listShortDescription,
		Args:    cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			snapshot, snapshotErr := app.snapshot(command.Context())
			if snapshotErr != nil {
				return snapshotErr
			}
			children, childrenErr := snapshot.Children(arguments[0])
			if childrenErr != nil {
				return childrenErr
			}
			return output.RenderNodes(app.stdout, app.settings.Format, children, app.outputOptions())
		},
	}
}

// createCatCommand returns the cat subcommand.
func createCatCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   catUse,
		Short: catShortDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			snapshot, snapshotErr := app.snapshot(command.Context())
			if snapshotErr != nil {
				return snapshotErr
			}
			virtualPath, resolved := snapshot.Converter().Normalize(vfs.StripScheme(arguments[0]))
			if !resolved {
				return fmt.Errorf(errorUnresolvedPath, arguments[0])
			}
			fileSystem := vfs.NewFileSystem(snapshot.Converter(), app.fileSystem)
			content, readErr := fileSystem.ReadFile(virtualPath)
			if readErr != nil {
				return readErr
			}
			text := string(content)
			if utils.IsBinary(content) {
				text = fmt.Sprintf(binaryContentFormat, utils.FormatFileSize(int64(len(content))))
			}
			return output.RenderFile(app.stdout, app.settings.Format, output.FileView{Path: virtualPath, Content: text})
		},
	}
}

// createPathCommand returns the path subcommand.
func createPathCommand(app *application) *cobra.Command {
	var copyEnabled bool
	pathCommand := &cobra.Command{
		Use:   pathUse,
		Short: pathShortDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			snapshot, snapshotErr := app.snapshot(command.Context())
			if snapshotErr != nil {
				return snapshotErr
			}
			converter := snapshot.Converter()
			virtualPath, resolved := converter.Normalize(vfs.StripScheme(arguments[0]))
			if !resolved {
				return fmt.Errorf(errorUnresolvedPath, arguments[0])
			}
			realPath, isReal := converter.ToReal(virtualPath)
			if !isReal {
				return fmt.Errorf(errorUnresolvedPath, arguments[0])
			}
			fmt.Fprintln(app.stdout, realPath)
			if !copyEnabled {
				return nil
			}
			if copyErr := app.copier.Copy(realPath); copyErr != nil {
				return copyErr
			}
			app.logger.Debug(logPathCopied, zap.String("path", realPath))
			return nil
		},
	}
	registerBooleanFlag(pathCommand.Flags(), &copyEnabled, copyFlagName, false, copyFlagDescription)
	return pathCommand
}
