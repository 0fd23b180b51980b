package hierarchy

import (
	"path/filepath"
	"sort"
)

// Index maps every node path of one or more trees to its node.
type Index struct {
	directories map[string]*Directory
}

// Flatten indexes every node of the given trees, roots included, by path.
// When two trees share a path the node seen last wins.
func Flatten(roots ...*Directory) Index {
	directories := make(map[string]*Directory)
	for _, root := range roots {
		root.Walk(func(directory *Directory) bool {
			directories[directory.Path] = directory
			return true
		})
	}
	return Index{directories: directories}
}

// Lookup returns the node stored at exactly directoryPath.
func (index Index) Lookup(directoryPath string) (*Directory, bool) {
	directory, found := index.directories[directoryPath]
	return directory, found
}

// NearestAncestor returns the node at directoryPath or at its closest indexed
// ancestor, walking up until the filesystem root.
func (index Index) NearestAncestor(directoryPath string) (*Directory, bool) {
	if directoryPath == "" {
		return nil, false
	}
	currentPath := filepath.Clean(directoryPath)
	for {
		if directory, found := index.directories[currentPath]; found {
			return directory, true
		}
		parentPath := filepath.Dir(currentPath)
		if parentPath == currentPath {
			return nil, false
		}
		currentPath = parentPath
	}
}

// IsPackageDirectory reports whether directoryPath is an indexed package directory.
func (index Index) IsPackageDirectory(directoryPath string) bool {
	directory, found := index.directories[directoryPath]
	return found && directory.IsPackageDirectory
}

// Len returns the number of indexed nodes.
func (index Index) Len() int {
	return len(index.directories)
}

// Paths returns the indexed paths in lexical order.
func (index Index) Paths() []string {
	paths := make([]string, 0, len(index.directories))
	for directoryPath := range index.directories {
		paths = append(paths, directoryPath)
	}
	sort.Strings(paths)
	return paths
}
