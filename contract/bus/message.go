package bus

// Command is a marker interface for commands (intent to change state).
// A command has exactly one handler and never leaves the process.
type Command interface{}
