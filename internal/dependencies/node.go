package dependencies

import (
	"fmt"

	"github.com/temirov/godeps/internal/hierarchy"
)

// NodeKind distinguishes tree directories from files.
type NodeKind int

const (
	// NodeKindDirectory is a tree directory.
	NodeKindDirectory NodeKind = iota
	// NodeKindFile is a file inside a package directory.
	NodeKindFile
)

const (
	nodeKindDirectoryText = "directory"
	nodeKindFileText      = "file"
)

// String returns the textual kind.
func (kind NodeKind) String() string {
	if kind == NodeKindFile {
		return nodeKindFileText
	}
	return nodeKindDirectoryText
}

// MarshalText renders the kind for JSON and XML encoders.
func (kind NodeKind) MarshalText() ([]byte, error) {
	return []byte(kind.String()), nil
}

// UnmarshalText parses a textual kind.
func (kind *NodeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case nodeKindDirectoryText:
		*kind = NodeKindDirectory
	case nodeKindFileText:
		*kind = NodeKindFile
	default:
		return fmt.Errorf("unknown node kind %q", string(text))
	}
	return nil
}

// Node is one child shown beneath a tree directory.
type Node struct {
	Kind               NodeKind `json:"kind" xml:"kind,attr"`
	Label              string   `json:"label" xml:"label,attr"`
	Path               string   `json:"path" xml:"path,attr"`
	IsPackageDirectory bool     `json:"packageDirectory,omitempty" xml:"packageDirectory,attr,omitempty"`
}

// DirectoryNode describes a tree directory as a Node.
func DirectoryNode(directory *hierarchy.Directory) Node {
	return Node{
		Kind:               NodeKindDirectory,
		Label:              directory.Label,
		Path:               directory.Path,
		IsPackageDirectory: directory.IsPackageDirectory,
	}
}
