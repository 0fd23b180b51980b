// Package watch triggers dependency refreshes when go.mod or go.sum files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	// DefaultDebounce coalesces bursts such as go mod tidy rewriting both files.
	DefaultDebounce = 300 * time.Millisecond

	moduleFilesPattern = "go.{mod,sum}"
	probeFileName      = "go.mod"
	parentPrefix       = ".."

	errorCreateWatcherFormat = "create file watcher: %w"
	errorWatchFormat         = "watch %s: %w"
	debugModuleFileChanged   = "module file changed"
	debugDirectoryAdded      = "watching new directory"
	warningWatcherError      = "file watcher error"
	warningSkipDirectory     = "cannot watch directory"
)

// Watcher observes directory trees for module file changes.
type Watcher struct {
	roots           []string
	excludePatterns []string
	debounce        time.Duration
	logger          *zap.Logger
}

// NewWatcher constructs a Watcher over the trees below roots. Directories whose
// go.mod would match one of excludePatterns, relative to its root, are not
// watched. A non-positive debounce means DefaultDebounce.
func NewWatcher(roots []string, excludePatterns []string, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cleanRoots := make([]string, 0, len(roots))
	for _, root := range roots {
		cleanRoots = append(cleanRoots, filepath.Clean(root))
	}
	return &Watcher{roots: cleanRoots, excludePatterns: excludePatterns, debounce: debounce, logger: logger}
}

// IsModuleFile reports whether filePath names a go.mod or go.sum file.
func IsModuleFile(filePath string) bool {
	matched, _ := doublestar.Match(moduleFilesPattern, filepath.Base(filePath))
	return matched
}

// excluded reports whether directoryPath lies outside every root or matches
// an exclude pattern.
func (watcher *Watcher) excluded(directoryPath string) bool {
	for _, root := range watcher.roots {
		relativePath, relError := filepath.Rel(root, directoryPath)
		if relError != nil || relativePath == parentPrefix || strings.HasPrefix(relativePath, parentPrefix+string(filepath.Separator)) {
			continue
		}
		candidate := path.Join(filepath.ToSlash(relativePath), probeFileName)
		for _, pattern := range watcher.excludePatterns {
			if matched, _ := doublestar.Match(pattern, candidate); matched {
				return true
			}
		}
		return false
	}
	return true
}

// addTree watches directoryPath and every directory below it. It reports
// whether a module file already exists in the added tree, which happens when
// files are written before the watch on a new directory is in place.
func (watcher *Watcher) addTree(fileWatcher *fsnotify.Watcher, directoryPath string) (bool, error) {
	foundModuleFile := false
	walkError := filepath.WalkDir(directoryPath, func(entryPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			if entryPath == directoryPath {
				return err
			}
			watcher.logger.Warn(warningSkipDirectory, zap.String("path", entryPath), zap.Error(err))
			return filepath.SkipDir
		}
		if !entry.IsDir() {
			if IsModuleFile(entryPath) {
				foundModuleFile = true
			}
			return nil
		}
		if entryPath != directoryPath && watcher.excluded(entryPath) {
			return filepath.SkipDir
		}
		if addError := fileWatcher.Add(entryPath); addError != nil {
			if entryPath == directoryPath {
				return addError
			}
			watcher.logger.Warn(warningSkipDirectory, zap.String("path", entryPath), zap.Error(addError))
			return filepath.SkipDir
		}
		return nil
	})
	return foundModuleFile, walkError
}

// Run blocks until ctx is done, invoking onChange once per burst of module
// file creations, writes, renames or removals anywhere below the roots,
// including directories created while running.
func (watcher *Watcher) Run(ctx context.Context, onChange func(context.Context)) error {
	fileWatcher, createError := fsnotify.NewWatcher()
	if createError != nil {
		return fmt.Errorf(errorCreateWatcherFormat, createError)
	}
	defer fileWatcher.Close()

	for _, root := range watcher.roots {
		if _, addError := watcher.addTree(fileWatcher, root); addError != nil {
			return fmt.Errorf(errorWatchFormat, root, addError)
		}
	}

	var (
		timerMutex sync.Mutex
		timer      *time.Timer
		waitGroup  sync.WaitGroup
	)
	defer func() {
		timerMutex.Lock()
		if timer != nil && timer.Stop() {
			waitGroup.Done()
		}
		timerMutex.Unlock()
		waitGroup.Wait()
	}()

	schedule := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()
		if timer != nil && timer.Stop() {
			waitGroup.Done()
		}
		waitGroup.Add(1)
		timer = time.AfterFunc(watcher.debounce, func() {
			defer waitGroup.Done()
			onChange(ctx)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, open := <-fileWatcher.Events:
			if !open {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, statError := os.Stat(event.Name); statError == nil && info.IsDir() {
					if watcher.excluded(event.Name) {
						continue
					}
					watcher.logger.Debug(debugDirectoryAdded, zap.String("path", event.Name))
					holdsModuleFile, addError := watcher.addTree(fileWatcher, event.Name)
					if addError != nil {
						watcher.logger.Warn(warningSkipDirectory, zap.String("path", event.Name), zap.Error(addError))
						continue
					}
					if holdsModuleFile {
						schedule()
					}
					continue
				}
			}
			if !IsModuleFile(event.Name) || watcher.excluded(filepath.Dir(event.Name)) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			watcher.logger.Debug(debugModuleFileChanged, zap.String("path", event.Name), zap.String("op", event.Op.String()))
			schedule()
		case watchError, open := <-fileWatcher.Errors:
			if !open {
				return nil
			}
			watcher.logger.Warn(warningWatcherError, zap.Error(watchError))
		}
	}
}
