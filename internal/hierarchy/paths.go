package hierarchy

import (
	"path/filepath"
	"strings"
)

const (
	slashSeparator = "/"
	driveSeparator = ':'
)

// NormalizePath cleans a directory path and, on case-insensitive filesystems,
// lower-cases its volume root so the same physical directory reported with
// different casing compares equal.
func NormalizePath(directoryPath string, caseInsensitive bool) string {
	if directoryPath == "" {
		return ""
	}
	cleanPath := filepath.Clean(directoryPath)
	if !caseInsensitive {
		return cleanPath
	}
	volume := volumeRoot(cleanPath)
	if volume == "" {
		return cleanPath
	}
	lowerVolume := strings.ToLower(volume)
	if lowerVolume == volume {
		return cleanPath
	}
	return lowerVolume + cleanPath[len(volume):]
}

// volumeRoot returns the drive or UNC volume prefix of a path, if any. Drive
// letters are recognised on every platform so paths produced on Windows hosts
// normalize identically everywhere.
func volumeRoot(directoryPath string) string {
	if volume := filepath.VolumeName(directoryPath); volume != "" {
		return volume
	}
	if len(directoryPath) >= 2 && directoryPath[1] == driveSeparator && isASCIILetter(directoryPath[0]) {
		return directoryPath[:2]
	}
	return ""
}

func isASCIILetter(character byte) bool {
	return (character >= 'a' && character <= 'z') || (character >= 'A' && character <= 'Z')
}

// splitSegments splits a path into its non-empty segments, ignoring the volume.
func splitSegments(directoryPath string) []string {
	withoutVolume := directoryPath[len(volumeRoot(directoryPath)):]
	rawSegments := strings.Split(filepath.ToSlash(withoutVolume), slashSeparator)
	segments := make([]string, 0, len(rawSegments))
	for _, segment := range rawSegments {
		if segment == "" {
			continue
		}
		segments = append(segments, segment)
	}
	return segments
}

// IsUnder reports whether directoryPath equals rootPath or lies beneath it.
// The comparison is segment aware: /root does not contain /rootless.
func IsUnder(directoryPath string, rootPath string) bool {
	if rootPath == "" {
		return false
	}
	if directoryPath == rootPath {
		return true
	}
	if strings.HasSuffix(rootPath, string(filepath.Separator)) || strings.HasSuffix(rootPath, slashSeparator) {
		return strings.HasPrefix(directoryPath, rootPath)
	}
	return strings.HasPrefix(directoryPath, rootPath+string(filepath.Separator))
}

// relativeSegments returns the segments of directoryPath below rootPath.
func relativeSegments(directoryPath string, rootPath string) ([]string, bool) {
	if !IsUnder(directoryPath, rootPath) {
		return nil, false
	}
	return splitSegments(strings.TrimPrefix(directoryPath, rootPath)), true
}

// joinSegments appends segments to base using the platform separator.
func joinSegments(base string, segments ...string) string {
	return filepath.Join(append([]string{base}, segments...)...)
}

// asVirtualRoot anchors a rewrite prefix at the filesystem root so "StdLib"
// and "/StdLib" describe the same virtual directory.
func asVirtualRoot(rewrite string) string {
	if strings.HasPrefix(rewrite, string(filepath.Separator)) || strings.HasPrefix(rewrite, slashSeparator) {
		return filepath.Clean(rewrite)
	}
	return filepath.Join(string(filepath.Separator), rewrite)
}

// commonPrefix returns the deepest directory shared by every path.
func commonPrefix(directoryPaths []string) string {
	if len(directoryPaths) == 0 {
		return ""
	}
	volume := volumeRoot(directoryPaths[0])
	shared := splitSegments(directoryPaths[0])
	for _, directoryPath := range directoryPaths[1:] {
		if volumeRoot(directoryPath) != volume {
			return ""
		}
		segments := splitSegments(directoryPath)
		limit := len(shared)
		if len(segments) < limit {
			limit = len(segments)
		}
		matched := 0
		for matched < limit && shared[matched] == segments[matched] {
			matched++
		}
		shared = shared[:matched]
	}
	return joinSegments(volume+string(filepath.Separator), shared...)
}

// CommonAncestor returns the deepest directory strictly containing every
// path. When the shared prefix is itself one of the inputs its parent is
// returned, so every input keeps at least one segment below the ancestor.
func CommonAncestor(directoryPaths []string) string {
	ancestor := commonPrefix(directoryPaths)
	if ancestor == "" {
		return ""
	}
	for _, directoryPath := range directoryPaths {
		if filepath.Clean(directoryPath) == ancestor {
			return filepath.Dir(ancestor)
		}
	}
	return ancestor
}

// PrefixMapping translates paths between a real filesystem root and the
// virtual root it is presented under.
type PrefixMapping struct {
	RealRoot    string
	VirtualRoot string
}

// NewPrefixMapping builds a mapping, anchoring the virtual root like Build does.
func NewPrefixMapping(realRoot string, virtualRoot string) PrefixMapping {
	return PrefixMapping{
		RealRoot:    filepath.Clean(realRoot),
		VirtualRoot: asVirtualRoot(virtualRoot),
	}
}

// ToVirtual rewrites a real path below RealRoot into the virtual namespace.
func (mapping PrefixMapping) ToVirtual(realPath string) (string, bool) {
	return substitutePrefix(filepath.Clean(realPath), mapping.RealRoot, mapping.VirtualRoot)
}

// ToReal rewrites a virtual path below VirtualRoot back to the real filesystem.
func (mapping PrefixMapping) ToReal(virtualPath string) (string, bool) {
	return substitutePrefix(filepath.Clean(virtualPath), mapping.VirtualRoot, mapping.RealRoot)
}

func substitutePrefix(directoryPath string, fromRoot string, toRoot string) (string, bool) {
	segments, ok := relativeSegments(directoryPath, fromRoot)
	if !ok {
		return "", false
	}
	return joinSegments(toRoot, segments...), true
}
