package cmd

import (
	"github.com/google/subcommands"
)

// Commands lists every subcommand of the application, in help order.
var Commands = []subcommands.Command{
	&ingestCmd{},
	&batchCmd{},
	&clientsCmd{},
	&clientCmd{},
	&exceptionsCmd{},
	&resolveCmd{},
	&eventsCmd{},
	&reportsCmd{},
	&reportCmd{},
	&reviewCmd{to: "approve"},
	&reviewCmd{to: "reject"},
	&reviewCmd{to: "flag"},
	&resetCmd{},
	&topicCmd{},
}

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")
	c.Register(c.CommandsCommand(), "")
	for _, cmd := range Commands {
		c.Register(cmd, group(cmd.Name()))
	}
}

func group(name string) string {
	switch name {
	case "ingest", "batch", "reset":
		return "ingestion"
	case "clients", "client", "exceptions", "resolve", "events":
		return "operations"
	case "reports", "report", "approve", "reject", "flag":
		return "tax reports"
	}
	return ""
}
