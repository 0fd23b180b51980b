// Package hierarchy folds flat lists of package directories into compressed,
// labeled directory trees and indexes them for path lookups.
package hierarchy

// Directory is one node of a built tree. Values are never modified after
// Build returns; a refresh produces a new tree instead.
type Directory struct {
	Label              string       `json:"label" xml:"label,attr"`
	Path               string       `json:"path" xml:"path,attr"`
	IsPackageDirectory bool         `json:"packageDirectory" xml:"packageDirectory,attr"`
	Subdirectories     []*Directory `json:"subdirectories,omitempty" xml:"directory,omitempty"`
}

// Walk visits the directory and its descendants depth first, parents before
// children. Returning false from visit skips the node's descendants.
func (directory *Directory) Walk(visit func(*Directory) bool) {
	if directory == nil {
		return
	}
	if !visit(directory) {
		return
	}
	for _, subdirectory := range directory.Subdirectories {
		subdirectory.Walk(visit)
	}
}

// Count returns the number of nodes in the tree rooted at directory.
func (directory *Directory) Count() int {
	total := 0
	directory.Walk(func(*Directory) bool {
		total++
		return true
	})
	return total
}

// IsLeaf reports whether the directory has no subdirectories.
func (directory *Directory) IsLeaf() bool {
	return len(directory.Subdirectories) == 0
}
