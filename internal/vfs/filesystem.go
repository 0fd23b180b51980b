package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/spf13/afero"
)

const (
	errorStatFormat      = "stat %s: %w"
	errorReadDirFormat   = "read directory %s: %w"
	errorReadFileFormat  = "read file %s: %w"
	errorMutationFormat  = "%s %s: %w"
	errorResolveFormat   = "%w: %s"
	operationWrite       = "write"
	operationRename      = "rename"
	operationDelete      = "delete"
	operationCreateDir   = "create directory"
	operationCopy        = "copy"
	readOnlyPermissions  = fs.FileMode(0o444)
	readOnlyDirectoryBit = fs.ModeDir | fs.FileMode(0o555)
)

var (
	// ErrReadOnly is returned by every mutating operation.
	ErrReadOnly = fmt.Errorf("dependency filesystem is read-only: %w", fs.ErrPermission)
	// ErrUnknownRoot is returned for paths outside every virtual root.
	ErrUnknownRoot = fmt.Errorf("path is not in a dependency root: %w", fs.ErrNotExist)
)

// FileInfo describes a virtual file. Permissions are always read-only.
type FileInfo struct {
	Name        string      `json:"name"`
	IsDirectory bool        `json:"directory"`
	Size        int64       `json:"size"`
	ModTime     time.Time   `json:"modTime"`
	Mode        fs.FileMode `json:"mode"`
}

// Entry is one element of a directory listing.
type Entry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"directory"`
}

// FileSystem serves the virtual namespace from a read-only view of a real filesystem.
type FileSystem struct {
	converter Converter
	base      afero.Fs
}

// NewFileSystem wraps base, which is made read-only. A nil base means the
// operating system filesystem.
func NewFileSystem(converter Converter, base afero.Fs) *FileSystem {
	if base == nil {
		base = afero.NewOsFs()
	}
	return &FileSystem{converter: converter, base: afero.NewReadOnlyFs(base)}
}

// Converter returns the path converter backing the filesystem.
func (fileSystem *FileSystem) Converter() Converter {
	return fileSystem.converter
}

func (fileSystem *FileSystem) resolve(virtualPath string) (string, error) {
	realPath, resolved := fileSystem.converter.ToReal(virtualPath)
	if !resolved {
		return "", fmt.Errorf(errorResolveFormat, ErrUnknownRoot, virtualPath)
	}
	return realPath, nil
}

// Stat describes the file at virtualPath.
func (fileSystem *FileSystem) Stat(virtualPath string) (FileInfo, error) {
	realPath, resolveError := fileSystem.resolve(virtualPath)
	if resolveError != nil {
		return FileInfo{}, resolveError
	}
	info, statError := fileSystem.base.Stat(realPath)
	if statError != nil {
		return FileInfo{}, fmt.Errorf(errorStatFormat, virtualPath, statError)
	}
	mode := readOnlyPermissions
	if info.IsDir() {
		mode = readOnlyDirectoryBit
	}
	return FileInfo{
		Name:        info.Name(),
		IsDirectory: info.IsDir(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Mode:        mode,
	}, nil
}

// ReadDirectory lists the entries of virtualPath sorted by name.
func (fileSystem *FileSystem) ReadDirectory(virtualPath string) ([]Entry, error) {
	realPath, resolveError := fileSystem.resolve(virtualPath)
	if resolveError != nil {
		return nil, resolveError
	}
	infos, readError := afero.ReadDir(fileSystem.base, realPath)
	if readError != nil {
		return nil, fmt.Errorf(errorReadDirFormat, virtualPath, readError)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{Name: info.Name(), IsDirectory: info.IsDir()})
	}
	sort.SliceStable(entries, func(left, right int) bool {
		return entries[left].Name < entries[right].Name
	})
	return entries, nil
}

// ReadFile returns the content of the file at virtualPath.
func (fileSystem *FileSystem) ReadFile(virtualPath string) ([]byte, error) {
	realPath, resolveError := fileSystem.resolve(virtualPath)
	if resolveError != nil {
		return nil, resolveError
	}
	content, readError := afero.ReadFile(fileSystem.base, realPath)
	if readError != nil {
		return nil, fmt.Errorf(errorReadFileFormat, virtualPath, readError)
	}
	return content, nil
}

// WriteFile always fails.
func (fileSystem *FileSystem) WriteFile(virtualPath string, _ []byte) error {
	return readOnlyError(operationWrite, virtualPath)
}

// Rename always fails.
func (fileSystem *FileSystem) Rename(oldVirtualPath string, _ string) error {
	return readOnlyError(operationRename, oldVirtualPath)
}

// Delete always fails.
func (fileSystem *FileSystem) Delete(virtualPath string) error {
	return readOnlyError(operationDelete, virtualPath)
}

// CreateDirectory always fails.
func (fileSystem *FileSystem) CreateDirectory(virtualPath string) error {
	return readOnlyError(operationCreateDir, virtualPath)
}

// Copy always fails.
func (fileSystem *FileSystem) Copy(sourceVirtualPath string, _ string) error {
	return readOnlyError(operationCopy, sourceVirtualPath)
}

func readOnlyError(operation string, virtualPath string) error {
	return fmt.Errorf(errorMutationFormat, operation, virtualPath, ErrReadOnly)
}

// IsNotExist reports whether err means the virtual path does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
