package layer

// Standard priority levels for configuration layers.
// Higher values override lower values during merging; layers of equal
// priority merge in the order they were added.
const (
	// PriorityBuiltin is the lowest priority for built-in defaults.
	PriorityBuiltin = 0

	// PriorityFile is for configuration files. The base file and the
	// environment-specific file share it and keep their load order.
	PriorityFile = 100

	// PriorityEnv is for prefixed environment variable overrides.
	PriorityEnv = 500

	// PriorityArgs is for command-line overrides.
	PriorityArgs = 600
)

// DefaultPriority returns the default priority for a given source.
func DefaultPriority(source Source) int {
	switch source {
	case SourceBuiltin:
		return PriorityBuiltin
	case SourceFile:
		return PriorityFile
	case SourceEnv:
		return PriorityEnv
	case SourceArgs:
		return PriorityArgs
	default:
		return PriorityBuiltin
	}
}

// StandardLayerNames defines standard names for non-file layers.
var StandardLayerNames = map[Source]string{
	SourceBuiltin: "defaults",
	SourceEnv:     "environment",
	SourceArgs:    "arguments",
}

// StandardLayerName returns the standard name for a source.
func StandardLayerName(source Source) string {
	if name, ok := StandardLayerNames[source]; ok {
		return name
	}
	return "unknown"
}
