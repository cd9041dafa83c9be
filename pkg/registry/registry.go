// Package registry collects cobra subcommands so command packages can
// contribute to a parent command without the parent importing each one
// explicitly at construction time.
package registry

import "github.com/spf13/cobra"

// CommandRegistry accumulates functions that attach subcommands.
// The zero value is ready to use.
type CommandRegistry struct {
	fillers []func(*cobra.Command)
}

// Register adds a filler invoked when FillCommands runs.
func (r *CommandRegistry) Register(fn func(*cobra.Command)) {
	r.fillers = append(r.fillers, fn)
}

// FromGetter registers a subcommand produced by get.
func (r *CommandRegistry) FromGetter(get func() *cobra.Command) {
	r.Register(func(c *cobra.Command) {
		c.AddCommand(get())
	})
}

// FillCommands attaches every registered subcommand to cmd.
func (r *CommandRegistry) FillCommands(cmd *cobra.Command) {
	for _, fn := range r.fillers {
		fn(cmd)
	}
}
