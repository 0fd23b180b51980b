package hierarchy

import (
	"path/filepath"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	warningPathOutsideRoot = "path is not under the expected root, skipping"
	logFieldPath           = "path"
	logFieldRoot           = "root"
)

// BuildOptions describes the root of a tree and how it is compressed.
type BuildOptions struct {
	// RootPath is the expected common root of every input path. Inputs outside
	// it are logged and skipped. When empty the common ancestor is used.
	RootPath string
	// RootPathRewrite rebases every output path under a virtual prefix.
	RootPathRewrite string
	// RootLabel names the root node. Defaults to the root path.
	RootLabel string
	// CollapseRoot merges the root with its only child.
	CollapseRoot bool
	// CollapseSingletons merges every synthetic directory that has exactly one
	// child with that child, producing labels such as "a/b/c".
	CollapseSingletons bool
	// CaseInsensitive lower-cases volume roots before comparing paths.
	CaseInsensitive bool
	Logger          *zap.Logger
}

func (options BuildOptions) logger() *zap.Logger {
	if options.Logger == nil {
		return zap.NewNop()
	}
	return options.Logger
}

// builderNode is the mutable node used while a tree is assembled. Every node
// belongs to exactly one tree; merging moves nodes, it never shares them.
type builderNode struct {
	name               string
	path               string
	isRoot             bool
	isPackageDirectory bool
	children           map[string]*builderNode
	ordered            []*builderNode
}

func newBuilderNode(name string, nodePath string, isRoot bool, isPackageDirectory bool) *builderNode {
	return &builderNode{
		name:               name,
		path:               nodePath,
		isRoot:             isRoot,
		isPackageDirectory: isPackageDirectory,
		children:           make(map[string]*builderNode),
	}
}

func (node *builderNode) adopt(child *builderNode) {
	node.children[child.name] = child
	node.ordered = append(node.ordered, child)
}

// mergeChild inserts child, merging it into an existing child of the same name.
func (node *builderNode) mergeChild(child *builderNode) {
	existing, found := node.children[child.name]
	if !found {
		node.adopt(child)
		return
	}
	existing.merge(child)
}

func (node *builderNode) merge(other *builderNode) {
	node.isPackageDirectory = node.isPackageDirectory || other.isPackageDirectory
	for _, otherChild := range other.ordered {
		node.mergeChild(otherChild)
	}
}

// collapseChain absorbs single children into a synthetic node until it either
// branches or becomes a package directory.
func (node *builderNode) collapseChain() {
	for !node.isPackageDirectory && len(node.ordered) == 1 {
		onlyChild := node.ordered[0]
		node.name = filepath.Join(node.name, onlyChild.name)
		node.path = onlyChild.path
		node.isPackageDirectory = onlyChild.isPackageDirectory
		node.children = onlyChild.children
		node.ordered = onlyChild.ordered
	}
}

func (node *builderNode) collapse(collapseRoot bool, collapseSingletons bool) {
	if (node.isRoot && collapseRoot) || (!node.isRoot && collapseSingletons) {
		node.collapseChain()
	}
	for _, child := range node.ordered {
		child.collapse(collapseRoot, collapseSingletons)
	}
}

func (node *builderNode) toDirectory() *Directory {
	directory := &Directory{
		Label:              node.name,
		Path:               node.path,
		IsPackageDirectory: node.isPackageDirectory,
	}
	if len(node.ordered) > 0 {
		directory.Subdirectories = make([]*Directory, 0, len(node.ordered))
		for _, child := range node.ordered {
			directory.Subdirectories = append(directory.Subdirectories, child.toDirectory())
		}
	}
	return directory
}

// newChain builds the single-child chain for one input path, deepest segment
// first. Only the deepest node is a package directory.
func newChain(segments []string, basePath string) *builderNode {
	var chain *builderNode
	for segmentIndex := len(segments) - 1; segmentIndex >= 0; segmentIndex-- {
		nodePath := joinSegments(basePath, segments[:segmentIndex+1]...)
		node := newBuilderNode(segments[segmentIndex], nodePath, false, chain == nil)
		if chain != nil {
			node.adopt(chain)
		}
		chain = node
	}
	return chain
}

// Build folds absolute package directory paths into a directory tree.
func Build(directoryPaths []string, options BuildOptions) *Directory {
	logger := options.logger()

	normalizedPaths := make([]string, 0, len(directoryPaths))
	for _, directoryPath := range directoryPaths {
		if directoryPath == "" {
			continue
		}
		normalizedPaths = append(normalizedPaths, NormalizePath(directoryPath, options.CaseInsensitive))
	}
	normalizedPaths = lo.Uniq(normalizedPaths)

	rootPath := NormalizePath(options.RootPath, options.CaseInsensitive)
	if rootPath == "" {
		rootPath = CommonAncestor(normalizedPaths)
	}

	rootNodePath := rootPath
	if options.RootPathRewrite != "" {
		rootNodePath = asVirtualRoot(options.RootPathRewrite)
	}
	rootLabel := options.RootLabel
	if rootLabel == "" {
		rootLabel = rootPath
	}

	root := newBuilderNode(rootLabel, rootNodePath, true, false)
	for _, directoryPath := range normalizedPaths {
		segments, underRoot := relativeSegments(directoryPath, rootPath)
		if !underRoot {
			logger.Warn(warningPathOutsideRoot, zap.String(logFieldPath, directoryPath), zap.String(logFieldRoot, rootPath))
			continue
		}
		if len(segments) == 0 {
			continue
		}
		root.mergeChild(newChain(segments, rootNodePath))
	}

	root.collapse(options.CollapseRoot, options.CollapseSingletons)
	return root.toDirectory()
}
