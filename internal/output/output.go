package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/temirov/godeps/internal/dependencies"
	"github.com/temirov/godeps/internal/gotool"
	"github.com/temirov/godeps/internal/hierarchy"
)

const (
	// FormatRaw renders human readable text.
	FormatRaw = "raw"
	// FormatJSON renders indented JSON.
	FormatJSON = "json"
	// FormatXML renders indented XML.
	FormatXML = "xml"

	indentPrefix = ""
	indentSpacer = "  "

	separatorLine = "----------------------------------------"

	xmlHeader          = xml.Header
	xmlResultsElement  = "results"
	xmlDirectoryName   = "directory"
	xmlNodesElement    = "nodes"
	xmlModulesElement  = "modules"
	xmlFileElement     = "file"
	packageMarker      = "[Package] "
	fileMarker         = "[File] "
	rootPathFormat     = "%s (%s)"
	externalHeading    = "External modules:"
	replacedHeading    = "Replaced modules:"
	noModulesLine      = "  (none)"
	moduleLineFormat   = "  %s %s => %s\n"
	errorUnknownFormat = "unknown output format %q"

	treeBranchConnector = "├── "
	treeLastConnector   = "└── "
	treeBranchPadding   = "│   "
	treeLastPadding     = "    "
)

var (
	rootStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan")).Bold(true)
	packageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	syntheticStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	fileStyle      = lipgloss.NewStyle()
)

// Options controls raw rendering.
type Options struct {
	Color bool
}

func (options Options) paint(style lipgloss.Style, text string) string {
	if !options.Color {
		return text
	}
	return style.Render(text)
}

// ValidateFormat reports an error for unknown format names.
func ValidateFormat(format string) error {
	switch format {
	case FormatRaw, FormatJSON, FormatXML:
		return nil
	}
	return fmt.Errorf(errorUnknownFormat, format)
}

// RenderTrees writes the given trees in format.
func RenderTrees(writer io.Writer, format string, roots []*hierarchy.Directory, options Options) error {
	switch format {
	case FormatJSON:
		if len(roots) == 1 {
			return writeJSON(writer, roots[0])
		}
		return writeJSON(writer, roots)
	case FormatXML:
		if len(roots) == 1 {
			return writeXML(writer, roots[0], xmlDirectoryName)
		}
		wrapper := struct {
			XMLName     xml.Name               `xml:"results"`
			Directories []*hierarchy.Directory `xml:"directory"`
		}{Directories: roots}
		return writeXML(writer, wrapper, xmlResultsElement)
	case FormatRaw:
		for index, root := range roots {
			if index > 0 {
				fmt.Fprintln(writer)
			}
			WriteTreeRaw(writer, root, options)
		}
		return nil
	}
	return fmt.Errorf(errorUnknownFormat, format)
}

// WriteTreeRaw renders a directory tree with box drawing connectors.
func WriteTreeRaw(writer io.Writer, root *hierarchy.Directory, options Options) {
	if root == nil {
		return
	}
	renderTreeNode(writer, root, "", options, true, true)
}

func treeNodeLinePrefix(prefix string, isRoot bool, isLast bool) (string, string) {
	if isRoot {
		return "", ""
	}
	connector := treeBranchConnector
	childPrefix := prefix + treeBranchPadding
	if isLast {
		connector = treeLastConnector
		childPrefix = prefix + treeLastPadding
	}
	return prefix + connector, childPrefix
}

func renderTreeNode(writer io.Writer, node *hierarchy.Directory, prefix string, options Options, isRoot bool, isLast bool) {
	linePrefix, childPrefix := treeNodeLinePrefix(prefix, isRoot, isLast)
	fmt.Fprintf(writer, "%s%s\n", linePrefix, directoryLine(node, options, isRoot))
	for index, child := range node.Subdirectories {
		if child == nil {
			continue
		}
		renderTreeNode(writer, child, childPrefix, options, false, index == len(node.Subdirectories)-1)
	}
}

func directoryLine(node *hierarchy.Directory, options Options, isRoot bool) string {
	switch {
	case isRoot:
		return options.paint(rootStyle, fmt.Sprintf(rootPathFormat, node.Label, node.Path))
	case node.IsPackageDirectory:
		return packageMarker + options.paint(packageStyle, node.Label)
	default:
		return options.paint(syntheticStyle, node.Label)
	}
}

// RenderNodes writes a directory listing.
func RenderNodes(writer io.Writer, format string, nodes []dependencies.Node, options Options) error {
	switch format {
	case FormatJSON:
		if nodes == nil {
			nodes = []dependencies.Node{}
		}
		return writeJSON(writer, nodes)
	case FormatXML:
		wrapper := struct {
			XMLName xml.Name            `xml:"nodes"`
			Nodes   []dependencies.Node `xml:"node"`
		}{Nodes: nodes}
		return writeXML(writer, wrapper, xmlNodesElement)
	case FormatRaw:
		for _, node := range nodes {
			fmt.Fprintln(writer, nodeLine(node, options))
		}
		return nil
	}
	return fmt.Errorf(errorUnknownFormat, format)
}

func nodeLine(node dependencies.Node, options Options) string {
	switch {
	case node.Kind == dependencies.NodeKindFile:
		return fileMarker + options.paint(fileStyle, node.Path)
	case node.IsPackageDirectory:
		return packageMarker + options.paint(packageStyle, node.Path)
	default:
		return options.paint(syntheticStyle, node.Path)
	}
}

// RenderDirectory writes a single node without its descendants.
func RenderDirectory(writer io.Writer, format string, directory *hierarchy.Directory, options Options) error {
	node := hierarchy.Directory{Label: directory.Label, Path: directory.Path, IsPackageDirectory: directory.IsPackageDirectory}
	if format == FormatRaw {
		fmt.Fprintln(writer, directoryLine(&node, options, false))
		return nil
	}
	return RenderTrees(writer, format, []*hierarchy.Directory{&node}, options)
}

// ModuleView is the rendered form of a classified module.
type ModuleView struct {
	Path     string `json:"path" xml:"path,attr"`
	Version  string `json:"version,omitempty" xml:"version,attr,omitempty"`
	Dir      string `json:"dir" xml:"dir,attr"`
	Replaced bool   `json:"replaced" xml:"replaced,attr"`
}

func moduleViews(modules []gotool.Module) []ModuleView {
	return lo.Map(modules, func(module gotool.Module, _ int) ModuleView {
		return ModuleView{Path: module.Path, Version: module.Version.Version, Dir: module.Dir, Replaced: module.IsReplaced}
	})
}

// RenderModules writes the external and replaced module lists.
func RenderModules(writer io.Writer, format string, classification dependencies.Classification, options Options) error {
	external := moduleViews(classification.External)
	replaced := moduleViews(classification.Replaced)
	switch format {
	case FormatJSON:
		return writeJSON(writer, struct {
			External []ModuleView `json:"external"`
			Replaced []ModuleView `json:"replaced"`
		}{External: external, Replaced: replaced})
	case FormatXML:
		wrapper := struct {
			XMLName  xml.Name     `xml:"modules"`
			External []ModuleView `xml:"external>module"`
			Replaced []ModuleView `xml:"replaced>module"`
		}{External: external, Replaced: replaced}
		return writeXML(writer, wrapper, xmlModulesElement)
	case FormatRaw:
		writeModuleSection(writer, externalHeading, external, options)
		writeModuleSection(writer, replacedHeading, replaced, options)
		return nil
	}
	return fmt.Errorf(errorUnknownFormat, format)
}

func writeModuleSection(writer io.Writer, heading string, modules []ModuleView, options Options) {
	fmt.Fprintln(writer, options.paint(rootStyle, heading))
	if len(modules) == 0 {
		fmt.Fprintln(writer, noModulesLine)
		return
	}
	for _, module := range modules {
		fmt.Fprintf(writer, moduleLineFormat, options.paint(packageStyle, module.Path), module.Version, module.Dir)
	}
}

// FileView is the rendered form of a file read through the dependency filesystem.
type FileView struct {
	Path    string `json:"path" xml:"path,attr"`
	Content string `json:"content" xml:",chardata"`
}

// RenderFile writes a file's content.
func RenderFile(writer io.Writer, format string, file FileView) error {
	switch format {
	case FormatJSON:
		return writeJSON(writer, file)
	case FormatXML:
		return writeXML(writer, file, xmlFileElement)
	case FormatRaw:
		WriteFileRaw(writer, file)
		return nil
	}
	return fmt.Errorf(errorUnknownFormat, format)
}

// WriteFileRaw renders a single file between header and footer lines.
func WriteFileRaw(writer io.Writer, file FileView) {
	fmt.Fprintf(writer, "File: %s\n", file.Path)
	fmt.Fprintln(writer, strings.TrimSuffix(file.Content, "\n"))
	fmt.Fprintf(writer, "End of file: %s\n", file.Path)
	fmt.Fprintln(writer, separatorLine)
}

func writeJSON(writer io.Writer, value interface{}) error {
	encoded, jsonEncodeError := json.MarshalIndent(value, indentPrefix, indentSpacer)
	if jsonEncodeError != nil {
		return jsonEncodeError
	}
	_, writeError := fmt.Fprintln(writer, string(encoded))
	return writeError
}

func writeXML(writer io.Writer, value interface{}, elementName string) error {
	if _, headerError := io.WriteString(writer, xmlHeader); headerError != nil {
		return headerError
	}
	encoder := xml.NewEncoder(writer)
	encoder.Indent(indentPrefix, indentSpacer)
	if encodeError := encoder.EncodeElement(value, xml.StartElement{Name: xml.Name{Local: elementName}}); encodeError != nil {
		return encodeError
	}
	if flushError := encoder.Flush(); flushError != nil {
		return flushError
	}
	_, writeError := io.WriteString(writer, "\n")
	return writeError
}
