package utils

const (
	// ConfigFileName is the name of the configuration file inside GlobalConfigDirectoryName.
	ConfigFileName = "config.yaml"
	// LocalConfigFileName is the per-project configuration file.
	LocalConfigFileName = ".godeps.yaml"
	// GlobalConfigDirectoryName is the configuration directory under the user's home.
	GlobalConfigDirectoryName = ".godeps"
	// GitDirectoryName is the name of the Git repository directory.
	GitDirectoryName = ".git"
)

// LoggerInitializationFailedMessageFormat reports a logger that could not be built.
const LoggerInitializationFailedMessageFormat = "failed to initialize logger: %w"

// ApplicationExecutionFailedMessage prefixes a fatal command error.
const ApplicationExecutionFailedMessage = "godeps failed"
