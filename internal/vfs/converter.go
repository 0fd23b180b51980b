// Package vfs maps the virtual dependency namespace (StdLib, ExtPack,
// ExtPackReplaced) onto real directories and serves it read-only.
package vfs

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/temirov/godeps/internal/hierarchy"
)

const (
	// Scheme identifies virtual dependency paths in URI form.
	Scheme = "go-dep-file"

	// RootStandardLibrary is the virtual root of GOROOT/src.
	RootStandardLibrary = "StdLib"
	// RootExternal is the virtual root of GOMODCACHE.
	RootExternal = "ExtPack"
	// RootReplaced groups replaced modules, which keep their real paths.
	RootReplaced = "ExtPackReplaced"

	schemePrefix = Scheme + "://"
)

// Converter translates between virtual and real paths.
type Converter struct {
	mappings        []rootMapping
	replacedDirs    []replacedDir
	caseInsensitive bool
}

// rootMapping matches real paths against the normalized root and resolves
// virtual paths to the root as it was reported.
type rootMapping struct {
	normalized hierarchy.PrefixMapping
	reported   hierarchy.PrefixMapping
}

type replacedDir struct {
	normalized string
	reported   string
}

// NewConverter builds a Converter for the standard library source directory,
// the module cache and the directories of replaced modules. Empty directories
// disable the corresponding root. With caseInsensitive set, roots and queried
// paths are compared in the form hierarchy.Build gives tree paths.
func NewConverter(standardLibraryDir string, moduleCacheDir string, replacedDirs []string, caseInsensitive bool) Converter {
	converter := Converter{caseInsensitive: caseInsensitive}
	for _, root := range []struct{ realRoot, virtualRoot string }{
		{realRoot: standardLibraryDir, virtualRoot: RootStandardLibrary},
		{realRoot: moduleCacheDir, virtualRoot: RootExternal},
	} {
		if root.realRoot == "" {
			continue
		}
		converter.mappings = append(converter.mappings, rootMapping{
			normalized: hierarchy.NewPrefixMapping(hierarchy.NormalizePath(root.realRoot, caseInsensitive), root.virtualRoot),
			reported:   hierarchy.NewPrefixMapping(root.realRoot, root.virtualRoot),
		})
	}
	for _, directory := range replacedDirs {
		if directory == "" {
			continue
		}
		converter.replacedDirs = append(converter.replacedDirs, replacedDir{
			normalized: hierarchy.NormalizePath(directory, caseInsensitive),
			reported:   filepath.Clean(directory),
		})
	}
	return converter
}

// Canonical strips the scheme from anyPath and cleans it. A case-insensitive
// converter also lower-cases the volume root.
func (converter Converter) Canonical(anyPath string) string {
	return hierarchy.NormalizePath(StripScheme(anyPath), converter.caseInsensitive)
}

// VirtualRoot returns the anchored virtual path of a root name.
func VirtualRoot(rootName string) string {
	return string(filepath.Separator) + rootName
}

// ToReal resolves a virtual path or go-dep-file URI to a real path. Paths in
// replaced module directories keep their location; only the volume casing
// is restored to the reported form.
func (converter Converter) ToReal(virtualPath string) (string, bool) {
	cleanPath := converter.Canonical(virtualPath)
	if cleanPath == "" {
		return "", false
	}
	if directory, replaced := converter.replacedDir(cleanPath); replaced {
		return directory.reported + cleanPath[len(directory.normalized):], true
	}
	for _, mapping := range converter.mappings {
		if realPath, mapped := mapping.reported.ToReal(cleanPath); mapped {
			return realPath, true
		}
	}
	return "", false
}

// ToVirtual maps a real path into the virtual namespace. Paths in replaced
// module directories are returned in normalized form.
func (converter Converter) ToVirtual(realPath string) (string, bool) {
	if realPath == "" {
		return "", false
	}
	cleanPath := hierarchy.NormalizePath(realPath, converter.caseInsensitive)
	if _, replaced := converter.replacedDir(cleanPath); replaced {
		return cleanPath, true
	}
	for _, mapping := range converter.mappings {
		if virtualPath, mapped := mapping.normalized.ToVirtual(cleanPath); mapped {
			return virtualPath, true
		}
	}
	return "", false
}

// Normalize accepts either a real or a virtual path and returns its virtual
// form. Paths already in the virtual namespace are returned cleaned.
func (converter Converter) Normalize(anyPath string) (string, bool) {
	cleanPath := converter.Canonical(anyPath)
	if cleanPath == "" {
		return "", false
	}
	if virtualPath, mapped := converter.ToVirtual(cleanPath); mapped {
		return virtualPath, true
	}
	if _, resolvable := converter.ToReal(cleanPath); resolvable || IsVirtualRoot(cleanPath, RootReplaced) {
		return cleanPath, true
	}
	return "", false
}

// URI renders a virtual path as a go-dep-file URI.
func URI(virtualPath string) string {
	return schemePrefix + filepath.ToSlash(virtualPath)
}

// StripScheme removes a go-dep-file scheme prefix and cleans the remainder.
func StripScheme(anyPath string) string {
	if anyPath == "" {
		return ""
	}
	if strings.HasPrefix(anyPath, schemePrefix) {
		parsed, parseError := url.Parse(anyPath)
		if parseError != nil {
			return ""
		}
		return filepath.Clean(filepath.FromSlash(parsed.Path))
	}
	return filepath.Clean(anyPath)
}

// IsVirtualRoot reports whether cleanPath is the anchored virtual root named rootName.
func IsVirtualRoot(cleanPath string, rootName string) bool {
	return cleanPath == VirtualRoot(rootName)
}

func (converter Converter) replacedDir(cleanPath string) (replacedDir, bool) {
	for _, directory := range converter.replacedDirs {
		if hierarchy.IsUnder(cleanPath, directory.normalized) {
			return directory, true
		}
	}
	return replacedDir{}, false
}
