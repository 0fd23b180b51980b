package dependencies

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/temirov/godeps/internal/hierarchy"
	"github.com/temirov/godeps/internal/packagedirs"
	"github.com/temirov/godeps/internal/vfs"
)

const (
	// LabelStandardLibrary labels the standard library tree.
	LabelStandardLibrary = "Standard library"
	// LabelExternal labels the module cache tree.
	LabelExternal = "External packages"
	// LabelReplaced labels the replaced modules tree.
	LabelReplaced = "External packages (replaced)"

	// TreeStandardLibrary selects the standard library tree.
	TreeStandardLibrary = "std"
	// TreeExternal selects the module cache tree.
	TreeExternal = "ext"
	// TreeReplaced selects the replaced modules tree.
	TreeReplaced = "replaced"
	// TreeAll selects every non-empty tree.
	TreeAll = "all"

	errorNodeNotFoundFormat = "%w: %s"
	errorListFilesFormat    = "list files of %s: %w"
	errorUnknownTreeFormat  = "unknown tree %q, expected one of std, ext, replaced, all"
)

// ErrNotFound is returned for paths that are not tree nodes.
var ErrNotFound = errors.New("dependency node not found")

// EntryReader lists directory entries for lazy file listing.
type EntryReader interface {
	ReadDirectoryEntries(directoryPath string) ([]packagedirs.Entry, error)
}

// Snapshot is one immutable view of the dependency trees. Only the lazily
// filled file listings change after construction.
type Snapshot struct {
	StandardLibrary    *hierarchy.Directory
	External           *hierarchy.Directory
	Replaced           *hierarchy.Directory
	Classification     Classification
	StandardLibraryDir string
	ModuleCacheDir     string
	BuiltAt            time.Time

	index       hierarchy.Index
	converter   vfs.Converter
	entryReader EntryReader

	filesMutex sync.Mutex
	files      map[string][]Node
}

func newSnapshot(standardLibrary *hierarchy.Directory, external *hierarchy.Directory, replaced *hierarchy.Directory, classification Classification, standardLibraryDir string, moduleCacheDir string, caseInsensitive bool, entryReader EntryReader) *Snapshot {
	snapshot := &Snapshot{
		StandardLibrary:    standardLibrary,
		External:           external,
		Replaced:           replaced,
		Classification:     classification,
		StandardLibraryDir: standardLibraryDir,
		ModuleCacheDir:     moduleCacheDir,
		BuiltAt:            time.Now(),
		converter:          vfs.NewConverter(standardLibraryDir, moduleCacheDir, classification.ReplacedDirs(), caseInsensitive),
		entryReader:        entryReader,
		files:              make(map[string][]Node),
	}
	snapshot.index = hierarchy.Flatten(snapshot.Roots()...)
	return snapshot
}

// Roots returns the non-empty trees: standard library, external, replaced.
func (snapshot *Snapshot) Roots() []*hierarchy.Directory {
	var roots []*hierarchy.Directory
	for _, root := range []*hierarchy.Directory{snapshot.StandardLibrary, snapshot.External, snapshot.Replaced} {
		if root != nil {
			roots = append(roots, root)
		}
	}
	return roots
}

// Select returns the trees named by treeName. A tree that was not built
// selects nothing.
func (snapshot *Snapshot) Select(treeName string) ([]*hierarchy.Directory, error) {
	switch treeName {
	case TreeAll, "":
		return snapshot.Roots(), nil
	case TreeStandardLibrary:
		return nonNil(snapshot.StandardLibrary), nil
	case TreeExternal:
		return nonNil(snapshot.External), nil
	case TreeReplaced:
		return nonNil(snapshot.Replaced), nil
	}
	return nil, fmt.Errorf(errorUnknownTreeFormat, treeName)
}

func nonNil(root *hierarchy.Directory) []*hierarchy.Directory {
	if root == nil {
		return nil
	}
	return []*hierarchy.Directory{root}
}

// Index returns the flat index over every tree.
func (snapshot *Snapshot) Index() hierarchy.Index {
	return snapshot.index
}

// Converter returns the virtual path converter of this snapshot.
func (snapshot *Snapshot) Converter() vfs.Converter {
	return snapshot.converter
}

// virtualPath maps anyPath into the namespace the index is keyed by. Indexed
// paths, such as synthetic replaced group nodes, are taken as they are.
func (snapshot *Snapshot) virtualPath(anyPath string) (string, bool) {
	strippedPath := snapshot.converter.Canonical(anyPath)
	if strippedPath == "" {
		return "", false
	}
	if _, indexed := snapshot.index.Lookup(strippedPath); indexed {
		return strippedPath, true
	}
	return snapshot.converter.Normalize(strippedPath)
}

// Lookup returns the node at a real or virtual path.
func (snapshot *Snapshot) Lookup(anyPath string) (*hierarchy.Directory, bool) {
	virtualPath, normalized := snapshot.virtualPath(anyPath)
	if !normalized {
		return nil, false
	}
	return snapshot.index.Lookup(virtualPath)
}

// NearestAncestor returns the node at a real or virtual path or at its
// closest indexed ancestor.
func (snapshot *Snapshot) NearestAncestor(anyPath string) (*hierarchy.Directory, bool) {
	strippedPath := snapshot.converter.Canonical(anyPath)
	if strippedPath == "" {
		return nil, false
	}
	if virtualPath, normalized := snapshot.converter.Normalize(strippedPath); normalized {
		strippedPath = virtualPath
	}
	return snapshot.index.NearestAncestor(strippedPath)
}

// Reveal returns the package directory node holding filePath. Files in
// synthetic directories, or outside every tree, are not revealed.
func (snapshot *Snapshot) Reveal(filePath string) (*hierarchy.Directory, bool) {
	virtualPath, normalized := snapshot.virtualPath(filePath)
	if !normalized {
		return nil, false
	}
	directory, found := snapshot.index.Lookup(filepath.Dir(virtualPath))
	if !found || !directory.IsPackageDirectory {
		return nil, false
	}
	return directory, true
}

// Children lists the subdirectories of the node at anyPath followed, for a
// package directory, by its files. File listings are read on first request
// and cached for the lifetime of the snapshot.
func (snapshot *Snapshot) Children(anyPath string) ([]Node, error) {
	directory, found := snapshot.Lookup(anyPath)
	if !found {
		return nil, fmt.Errorf(errorNodeNotFoundFormat, ErrNotFound, anyPath)
	}
	children := make([]Node, 0, len(directory.Subdirectories))
	for _, subdirectory := range directory.Subdirectories {
		children = append(children, DirectoryNode(subdirectory))
	}
	if !directory.IsPackageDirectory {
		return children, nil
	}
	files, filesError := snapshot.packageFiles(directory)
	if filesError != nil {
		return nil, filesError
	}
	return append(children, files...), nil
}

func (snapshot *Snapshot) packageFiles(directory *hierarchy.Directory) ([]Node, error) {
	snapshot.filesMutex.Lock()
	defer snapshot.filesMutex.Unlock()
	if cached, present := snapshot.files[directory.Path]; present {
		return cached, nil
	}
	realPath, resolved := snapshot.converter.ToReal(directory.Path)
	if !resolved {
		return nil, fmt.Errorf(errorNodeNotFoundFormat, ErrNotFound, directory.Path)
	}
	entries, readError := snapshot.entryReader.ReadDirectoryEntries(realPath)
	if readError != nil {
		return nil, fmt.Errorf(errorListFilesFormat, directory.Path, readError)
	}
	files := make([]Node, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDirectory {
			continue
		}
		files = append(files, Node{
			Kind:  NodeKindFile,
			Label: entry.Name,
			Path:  filepath.Join(directory.Path, entry.Name),
		})
	}
	snapshot.files[directory.Path] = files
	return files, nil
}
