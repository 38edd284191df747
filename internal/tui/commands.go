package tui

import "strings"

// Command represents a parsed slash command.
type Command struct {
	Name string
	Args []string
}

// CommandError rejects a command line. Its text is shown in the status bar
// as is.
type CommandError struct {
	Msg string
}

func (e *CommandError) Error() string { return e.Msg }

type commandSpec struct {
	name string
	args []string
}

func (c commandSpec) usage() string {
	if len(c.args) == 0 {
		return c.name
	}
	return c.name + " <" + strings.Join(c.args, "> <") + ">"
}

// commands is the command bar vocabulary, in help order.
var commands = []commandSpec{
	{name: "/edit", args: []string{"container", "file"}},
	{name: "/restart", args: []string{"container"}},
	{name: "/quit"},
}

// ParseCommand parses a slash command string into a Command, checking the
// name and argument count. It returns nil, nil if the input is not a
// command at all.
func ParseCommand(input string) (*Command, error) {
	input = strings.TrimSpace(input)
	if input == "" || input[0] != '/' {
		return nil, nil
	}

	parts := strings.Fields(input)
	cmd := &Command{
		Name: parts[0],
		Args: parts[1:],
	}
	for _, spec := range commands {
		if spec.name != cmd.Name {
			continue
		}
		if len(cmd.Args) != len(spec.args) {
			return nil, &CommandError{Msg: "Usage: " + spec.usage()}
		}
		return cmd, nil
	}
	return nil, &CommandError{Msg: "Unknown command: " + cmd.Name}
}
