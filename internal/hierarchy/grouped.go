package hierarchy

import (
	"path/filepath"

	"github.com/samber/lo"
)

// Group is a set of package directories sharing a first path segment,
// anchored at their deepest common directory.
type Group struct {
	Root    string
	Members []string
}

// GroupByRoot partitions directories by their first path segment. Each group
// is rooted at the deepest directory its members share, which keeps unrelated
// directories from hanging under one deep accidental ancestor.
func GroupByRoot(directoryPaths []string, caseInsensitive bool) []Group {
	var groupKeys []string
	membersByKey := make(map[string][]string)
	for _, directoryPath := range directoryPaths {
		if directoryPath == "" {
			continue
		}
		normalizedPath := NormalizePath(directoryPath, caseInsensitive)
		key := volumeRoot(normalizedPath)
		if segments := splitSegments(normalizedPath); len(segments) > 0 {
			key = joinSegments(key+string(filepath.Separator), segments[0])
		}
		if _, known := membersByKey[key]; !known {
			groupKeys = append(groupKeys, key)
		}
		membersByKey[key] = append(membersByKey[key], normalizedPath)
	}

	groups := make([]Group, 0, len(groupKeys))
	for _, key := range groupKeys {
		members := lo.Uniq(membersByKey[key])
		groups = append(groups, Group{Root: commonPrefix(members), Members: members})
	}
	return groups
}

// BuildGrouped builds a shallow tree: a synthetic root, one node per group
// holding the group's real root path, and one package node per member
// labeled with its path relative to the group root. It reports false when
// there is nothing to show.
func BuildGrouped(groups []Group, options BuildOptions) (*Directory, bool) {
	if len(groups) == 0 {
		return nil, false
	}
	rootPath := ""
	if options.RootPathRewrite != "" {
		rootPath = asVirtualRoot(options.RootPathRewrite)
	}
	root := newBuilderNode(options.RootLabel, rootPath, true, false)
	for _, group := range groups {
		groupNode := newBuilderNode(group.Root, group.Root, false, false)
		for _, member := range group.Members {
			if member == group.Root {
				groupNode.isPackageDirectory = true
				continue
			}
			relativePath, relativeError := filepath.Rel(group.Root, member)
			if relativeError != nil {
				continue
			}
			groupNode.mergeChild(newBuilderNode(relativePath, member, false, true))
		}
		if !groupNode.isPackageDirectory && len(groupNode.ordered) == 0 {
			continue
		}
		root.mergeChild(groupNode)
	}
	if len(root.ordered) == 0 {
		return nil, false
	}
	root.collapse(options.CollapseRoot, false)
	return root.toDirectory(), true
}
