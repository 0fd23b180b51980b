// Package clipboard copies resolved dependency paths to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
)

// ErrEmptyText is returned when there is nothing to copy.
var ErrEmptyText = errors.New("nothing to copy")

// Copier copies textual data to the system clipboard.
type Copier interface {
	Copy(text string) error
}

// Service implements Copier using github.com/atotto/clipboard.
type Service struct {
	write func(string) error
}

// NewService constructs a Clipboard service implementation.
func NewService() *Service {
	return &Service{write: clipboard.WriteAll}
}

// Copy writes text, without surrounding whitespace, to the system clipboard.
func (service *Service) Copy(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyText
	}
	if clipboard.Unsupported {
		return fmt.Errorf("copy %s: clipboard is not supported on this system", trimmed)
	}
	if writeErr := service.write(trimmed); writeErr != nil {
		return fmt.Errorf("copy %s: %w", trimmed, writeErr)
	}
	return nil
}

var _ Copier = (*Service)(nil)
