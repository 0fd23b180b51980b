// Package packagedirs discovers Go package directories and lists directory
// entries on behalf of the dependency explorer.
package packagedirs

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	goSourceExtension = ".go"

	errorReadDirectoryFormat = "reading directory %s: %w"
	warningSkipSubdirectory  = "skipping unreadable subdirectory"
)

// Entry is one directory entry as presented to tree consumers.
type Entry struct {
	Name        string `json:"name" xml:"name,attr"`
	IsDirectory bool   `json:"directory" xml:"directory,attr"`
}

// Lister walks a filesystem looking for directories holding Go sources.
type Lister struct {
	fileSystem afero.Fs
	logger     *zap.Logger
}

// NewLister constructs a Lister over fileSystem. A nil fileSystem means the
// operating system filesystem.
func NewLister(fileSystem afero.Fs, logger *zap.Logger) *Lister {
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{fileSystem: fileSystem, logger: logger}
}

// ListPackageDirectories returns rootPath and every directory below it that
// directly contains at least one .go file, parents before children. The
// descent is unrestricted: testdata and vendor directories are included.
func (lister *Lister) ListPackageDirectories(ctx context.Context, rootPath string) ([]string, error) {
	cleanRoot := filepath.Clean(rootPath)
	var packageDirectories []string
	if err := lister.collect(ctx, cleanRoot, true, &packageDirectories); err != nil {
		return nil, err
	}
	return packageDirectories, nil
}

func (lister *Lister) collect(ctx context.Context, directoryPath string, isRoot bool, packageDirectories *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fileInfos, readError := afero.ReadDir(lister.fileSystem, directoryPath)
	if readError != nil {
		if isRoot {
			return fmt.Errorf(errorReadDirectoryFormat, directoryPath, readError)
		}
		lister.logger.Warn(warningSkipSubdirectory, zap.String("path", directoryPath), zap.Error(readError))
		return nil
	}

	isPackage := false
	var subdirectories []string
	for _, fileInfo := range fileInfos {
		if fileInfo.IsDir() {
			subdirectories = append(subdirectories, filepath.Join(directoryPath, fileInfo.Name()))
			continue
		}
		if strings.HasSuffix(fileInfo.Name(), goSourceExtension) {
			isPackage = true
		}
	}
	if isPackage {
		*packageDirectories = append(*packageDirectories, directoryPath)
	}
	for _, subdirectory := range subdirectories {
		if err := lister.collect(ctx, subdirectory, false, packageDirectories); err != nil {
			return err
		}
	}
	return nil
}

// ReadDirectoryEntries lists the entries of directoryPath sorted by name.
func (lister *Lister) ReadDirectoryEntries(directoryPath string) ([]Entry, error) {
	fileInfos, readError := afero.ReadDir(lister.fileSystem, directoryPath)
	if readError != nil {
		return nil, fmt.Errorf(errorReadDirectoryFormat, directoryPath, readError)
	}
	entries := make([]Entry, 0, len(fileInfos))
	for _, fileInfo := range fileInfos {
		entries = append(entries, Entry{Name: fileInfo.Name(), IsDirectory: fileInfo.IsDir()})
	}
	sort.SliceStable(entries, func(left, right int) bool {
		return entries[left].Name < entries[right].Name
	})
	return entries, nil
}

// FileSystem exposes the filesystem the lister reads from.
func (lister *Lister) FileSystem() afero.Fs {
	return lister.fileSystem
}
