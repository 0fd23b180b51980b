package cli

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/temirov/godeps/internal/output"
)

const formatFlagTypeName = "format"

// formatFlagValue validates output format names as they are parsed.
type formatFlagValue struct {
	target *string
}

func (value *formatFlagValue) Set(input string) error {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if validationErr := output.ValidateFormat(normalized); validationErr != nil {
		return validationErr
	}
	*value.target = normalized
	return nil
}

func (value *formatFlagValue) String() string {
	if value == nil || value.target == nil {
		return ""
	}
	return *value.target
}

func (value *formatFlagValue) Type() string {
	return formatFlagTypeName
}

func registerFormatFlag(flagSet *pflag.FlagSet, target *string, name string, usage string) {
	if flagSet == nil || target == nil {
		return
	}
	flagSet.Var(&formatFlagValue{target: target}, name, usage)
}
