// Package dependencies classifies the modules of a workspace and maintains the
// dependency trees built from them.
package dependencies

import (
	"sort"

	"github.com/hashicorp/go-set/v2"
	"github.com/samber/lo"

	"github.com/temirov/godeps/internal/gotool"
	"github.com/temirov/godeps/internal/hierarchy"
)

// RootModules is the module listing obtained for one workspace module root.
// A non-nil Err marks a failed listing.
type RootModules struct {
	Root    string
	Modules []gotool.Module
	Err     error
}

// Classification splits dependency modules into downloaded and replaced ones.
type Classification struct {
	External []gotool.Module `json:"external"`
	Replaced []gotool.Module `json:"replaced"`
}

// Classify unions the module listings of every root. Modules whose directory
// is equal to or under a workspace root are the workspace itself and are
// excluded, failed listings contribute nothing, and each directory appears
// once. With caseInsensitive set, directories differing only in volume casing
// are the same directory.
func Classify(results []RootModules, workspaceRoots []string, caseInsensitive bool) Classification {
	seenDirectories := set.New[string](0)
	var classification Classification
	for _, result := range results {
		if result.Err != nil {
			continue
		}
		for _, module := range result.Modules {
			if module.Dir == "" {
				continue
			}
			normalizedDir := hierarchy.NormalizePath(module.Dir, caseInsensitive)
			if seenDirectories.Contains(normalizedDir) || underAny(normalizedDir, workspaceRoots, caseInsensitive) {
				continue
			}
			seenDirectories.Insert(normalizedDir)
			if module.IsReplaced {
				classification.Replaced = append(classification.Replaced, module)
			} else {
				classification.External = append(classification.External, module)
			}
		}
	}
	sortModules(classification.External)
	sortModules(classification.Replaced)
	return classification
}

// ExternalDirs returns the directories of the external modules.
func (classification Classification) ExternalDirs() []string {
	return moduleDirs(classification.External)
}

// ReplacedDirs returns the directories of the replaced modules.
func (classification Classification) ReplacedDirs() []string {
	return moduleDirs(classification.Replaced)
}

func moduleDirs(modules []gotool.Module) []string {
	if len(modules) == 0 {
		return nil
	}
	return lo.Map(modules, func(module gotool.Module, _ int) string {
		return module.Dir
	})
}

func underAny(directory string, roots []string, caseInsensitive bool) bool {
	normalizedDir := hierarchy.NormalizePath(directory, caseInsensitive)
	return lo.ContainsBy(roots, func(root string) bool {
		return hierarchy.IsUnder(normalizedDir, hierarchy.NormalizePath(root, caseInsensitive))
	})
}

func sortModules(modules []gotool.Module) {
	sort.SliceStable(modules, func(left, right int) bool {
		if modules[left].Path != modules[right].Path {
			return modules[left].Path < modules[right].Path
		}
		return modules[left].Dir < modules[right].Dir
	})
}
