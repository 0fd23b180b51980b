// Package server exposes the dependency trees over a read-only HTTP API.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/godeps/internal/dependencies"
	"github.com/temirov/godeps/internal/hierarchy"
	"github.com/temirov/godeps/internal/output"
	"github.com/temirov/godeps/internal/utils"
	"github.com/temirov/godeps/internal/vfs"
)

const (
	defaultListenAddress    = "127.0.0.1:0"
	defaultShutdownDuration = 5 * time.Second
	headerContentType       = "Content-Type"
	mimeTypeJSON            = "application/json"
	mimeTypeXML             = "application/xml"
	mimeTypeText            = "text/plain; charset=utf-8"
	capabilitiesPath        = "/capabilities"
	treePath                = "/tree"
	modulesPath             = "/modules"
	lookupPath              = "/lookup"
	childrenPath            = "/children"
	filesPrefix             = "/files/"
	refreshPath             = "/refresh"
	rootPath                = "/"
	queryTree               = "tree"
	queryFormat             = "format"
	queryPath               = "path"
	errorFieldName          = "error"
	errorMissingPath        = "missing path query parameter"
	errorNoNodeFormat       = "no dependency node at or above %s"
	logRequestFailed        = "request failed"
	logRefreshFailed        = "refresh failed"
)

// Capability describes an endpoint exposed by the server.
type Capability struct {
	Name        string `json:"name"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Capabilities lists every endpoint in registration order.
var Capabilities = []Capability{
	{Name: "capabilities", Method: http.MethodGet, Path: capabilitiesPath, Description: "List endpoints"},
	{Name: "tree", Method: http.MethodGet, Path: treePath, Description: "Render dependency trees (?tree=std|ext|replaced|all&format=json|xml|raw)"},
	{Name: "modules", Method: http.MethodGet, Path: modulesPath, Description: "List external and replaced modules"},
	{Name: "lookup", Method: http.MethodGet, Path: lookupPath, Description: "Find the nearest tree node for a real or virtual path (?path=)"},
	{Name: "children", Method: http.MethodGet, Path: childrenPath, Description: "List subdirectories and files of a node (?path=)"},
	{Name: "files", Method: http.MethodGet, Path: filesPrefix, Description: "Read a file or directory through the read-only dependency filesystem"},
	{Name: "refresh", Method: http.MethodPost, Path: refreshPath, Description: "Rebuild the dependency trees"},
}

// Explorer provides dependency snapshots.
type Explorer interface {
	Current() (*dependencies.Snapshot, error)
	Refresh(ctx context.Context) (*dependencies.Snapshot, error)
}

// StatusError represents a failure accompanied by an HTTP status code.
type StatusError struct {
	statusCode int
	err        error
}

// Error returns the error string.
func (statusError StatusError) Error() string {
	return statusError.err.Error()
}

// Unwrap exposes the wrapped error.
func (statusError StatusError) Unwrap() error {
	return statusError.err
}

// StatusCode reports the associated HTTP status code.
func (statusError StatusError) StatusCode() int {
	return statusError.statusCode
}

// NewStatusError creates a new StatusError.
func NewStatusError(statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return StatusError{statusCode: statusCode, err: err}
}

// Config defines runtime options for the server.
type Config struct {
	Address         string
	Explorer        Explorer
	FileSystem      afero.Fs
	Output          output.Options
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// Server serves dependency trees over HTTP.
type Server struct {
	config Config
}

// NewServer creates a new Server with defaults applied.
func NewServer(config Config) Server {
	normalized := config
	if normalized.Address == "" {
		normalized.Address = defaultListenAddress
	}
	if normalized.ShutdownTimeout <= 0 {
		normalized.ShutdownTimeout = defaultShutdownDuration
	}
	if normalized.FileSystem == nil {
		normalized.FileSystem = afero.NewOsFs()
	}
	if normalized.Logger == nil {
		normalized.Logger = zap.NewNop()
	}
	return Server{config: normalized}
}

// Handler returns the request router.
func (server Server) Handler() http.Handler {
	router := http.NewServeMux()
	router.HandleFunc(capabilitiesPath, server.handleCapabilities)
	router.HandleFunc(treePath, server.get(server.handleTree))
	router.HandleFunc(modulesPath, server.get(server.handleModules))
	router.HandleFunc(lookupPath, server.get(server.handleLookup))
	router.HandleFunc(childrenPath, server.get(server.handleChildren))
	router.HandleFunc(filesPrefix, server.get(server.handleFiles))
	router.HandleFunc(refreshPath, server.handleRefresh)
	router.HandleFunc(rootPath, server.handleRoot)
	return router
}

// Run starts the server and blocks until the provided context is canceled.
// The notify callback receives the bound address once the listener is active.
func (server Server) Run(ctx context.Context, notify func(string)) error {
	listener, listenErr := net.Listen("tcp", server.config.Address)
	if listenErr != nil {
		return fmt.Errorf("listen on %s: %w", server.config.Address, listenErr)
	}
	actualAddress := listener.Addr().String()

	httpServer := &http.Server{Handler: server.Handler(), ReadHeaderTimeout: server.config.ShutdownTimeout}
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		serveErr := httpServer.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve dependencies: %w", serveErr)
		}
		return nil
	})

	if notify != nil {
		notify(actualAddress)
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) && !errors.Is(shutdownErr, http.ErrServerClosed) {
			return fmt.Errorf("shutdown dependencies server: %w", shutdownErr)
		}
		return nil
	})

	return group.Wait()
}

type snapshotHandler func(http.ResponseWriter, *http.Request, *dependencies.Snapshot) error

// get restricts a handler to GET and supplies it with the current snapshot.
func (server Server) get(handler snapshotHandler) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodGet {
			writer.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		snapshot, currentErr := server.config.Explorer.Current()
		if currentErr == nil {
			currentErr = handler(writer, request, snapshot)
		}
		if currentErr != nil {
			server.writeError(writer, request, currentErr)
		}
	}
}

func (server Server) handleCapabilities(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	payload := struct {
		Capabilities []Capability `json:"capabilities"`
	}{Capabilities: Capabilities}
	server.writeJSON(writer, http.StatusOK, payload)
}

func (server Server) handleRoot(writer http.ResponseWriter, request *http.Request) {
	if request.URL.Path != rootPath {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writer.WriteHeader(http.StatusOK)
}

func (server Server) handleTree(writer http.ResponseWriter, request *http.Request, snapshot *dependencies.Snapshot) error {
	format, formatErr := requestFormat(request)
	if formatErr != nil {
		return formatErr
	}
	roots, selectErr := snapshot.Select(request.URL.Query().Get(queryTree))
	if selectErr != nil {
		return NewStatusError(http.StatusBadRequest, selectErr)
	}
	return server.render(writer, format, func(buffer *bytes.Buffer) error {
		if format == output.FormatJSON && roots == nil {
			roots = []*hierarchy.Directory{}
		}
		return output.RenderTrees(buffer, format, roots, server.config.Output)
	})
}

func (server Server) handleModules(writer http.ResponseWriter, request *http.Request, snapshot *dependencies.Snapshot) error {
	format, formatErr := requestFormat(request)
	if formatErr != nil {
		return formatErr
	}
	return server.render(writer, format, func(buffer *bytes.Buffer) error {
		return output.RenderModules(buffer, format, snapshot.Classification, server.config.Output)
	})
}

type lookupResponse struct {
	Query string            `json:"query"`
	Exact bool              `json:"exact"`
	Node  dependencies.Node `json:"node"`
	URI   string            `json:"uri"`
	Real  string            `json:"real,omitempty"`
}

func (server Server) handleLookup(writer http.ResponseWriter, request *http.Request, snapshot *dependencies.Snapshot) error {
	query := request.URL.Query().Get(queryPath)
	if query == "" {
		return NewStatusError(http.StatusBadRequest, errors.New(errorMissingPath))
	}
	directory, found := snapshot.NearestAncestor(query)
	if !found {
		return NewStatusError(http.StatusNotFound, fmt.Errorf(errorNoNodeFormat, query))
	}
	_, exact := snapshot.Lookup(query)
	realPath, _ := snapshot.Converter().ToReal(directory.Path)
	server.writeJSON(writer, http.StatusOK, lookupResponse{
		Query: query,
		Exact: exact,
		Node:  dependencies.DirectoryNode(directory),
		URI:   vfs.URI(directory.Path),
		Real:  realPath,
	})
	return nil
}

func (server Server) handleChildren(writer http.ResponseWriter, request *http.Request, snapshot *dependencies.Snapshot) error {
	query := request.URL.Query().Get(queryPath)
	if query == "" {
		return NewStatusError(http.StatusBadRequest, errors.New(errorMissingPath))
	}
	children, childrenErr := snapshot.Children(query)
	if childrenErr != nil {
		return childrenErr
	}
	if children == nil {
		children = []dependencies.Node{}
	}
	server.writeJSON(writer, http.StatusOK, children)
	return nil
}

func (server Server) handleFiles(writer http.ResponseWriter, request *http.Request, snapshot *dependencies.Snapshot) error {
	virtualPath := rootPath + strings.TrimPrefix(request.URL.Path, filesPrefix)
	fileSystem := vfs.NewFileSystem(snapshot.Converter(), server.config.FileSystem)
	info, statErr := fileSystem.Stat(virtualPath)
	if statErr != nil {
		return statErr
	}
	if info.IsDirectory {
		entries, readErr := fileSystem.ReadDirectory(virtualPath)
		if readErr != nil {
			return readErr
		}
		server.writeJSON(writer, http.StatusOK, entries)
		return nil
	}
	content, readErr := fileSystem.ReadFile(virtualPath)
	if readErr != nil {
		return readErr
	}
	writer.Header().Set(headerContentType, utils.DetectMimeType(content))
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write(content)
	return nil
}

type refreshResponse struct {
	BuiltAt time.Time `json:"builtAt"`
	Nodes   int       `json:"nodes"`
}

func (server Server) handleRefresh(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snapshot, refreshErr := server.config.Explorer.Refresh(request.Context())
	if refreshErr != nil {
		server.config.Logger.Warn(logRefreshFailed, zap.Error(refreshErr))
		server.writeError(writer, request, NewStatusError(http.StatusServiceUnavailable, refreshErr))
		return
	}
	server.writeJSON(writer, http.StatusOK, refreshResponse{BuiltAt: snapshot.BuiltAt, Nodes: snapshot.Index().Len()})
}

func requestFormat(request *http.Request) (string, error) {
	format := request.URL.Query().Get(queryFormat)
	if format == "" {
		return output.FormatJSON, nil
	}
	if formatErr := output.ValidateFormat(format); formatErr != nil {
		return "", NewStatusError(http.StatusBadRequest, formatErr)
	}
	return format, nil
}

func (server Server) render(writer http.ResponseWriter, format string, renderer func(*bytes.Buffer) error) error {
	var buffer bytes.Buffer
	if renderErr := renderer(&buffer); renderErr != nil {
		return renderErr
	}
	contentType := mimeTypeJSON
	switch format {
	case output.FormatXML:
		contentType = mimeTypeXML
	case output.FormatRaw:
		contentType = mimeTypeText
	}
	writer.Header().Set(headerContentType, contentType)
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write(buffer.Bytes())
	return nil
}

func (server Server) writeError(writer http.ResponseWriter, request *http.Request, err error) {
	statusCode := statusCodeFromError(err)
	if statusCode >= http.StatusInternalServerError {
		server.config.Logger.Warn(logRequestFailed, zap.String("path", request.URL.Path), zap.Error(err))
	}
	server.writeJSON(writer, statusCode, map[string]string{errorFieldName: err.Error()})
}

func (server Server) writeJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	var buffer bytes.Buffer
	if encodeErr := json.NewEncoder(&buffer).Encode(payload); encodeErr != nil {
		fallback := map[string]string{errorFieldName: fmt.Sprintf("encode response: %v", encodeErr)}
		writer.Header().Set(headerContentType, mimeTypeJSON)
		writer.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(writer).Encode(fallback)
		return
	}
	writer.Header().Set(headerContentType, mimeTypeJSON)
	writer.WriteHeader(statusCode)
	_, _ = writer.Write(buffer.Bytes())
}

func statusCodeFromError(err error) int {
	var statusError StatusError
	switch {
	case errors.As(err, &statusError):
		return statusError.StatusCode()
	case errors.Is(err, dependencies.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, dependencies.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
