// Command tcs ingests broker P&L statements and manages the tax reports
// derived from them.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/etnz/taxclean/cmd"
	"github.com/etnz/taxclean/docs"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

func main() {
	// Complete exits when the shell asks for a completion.
	completion().Complete("tcs")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	cmd.Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// args predicts the positional arguments of the subcommands.
var args = map[string]complete.Predictor{
	"ingest": predict.Files("*.json"),
	"batch":  predict.Dirs("*"),
}

// flagPredictors predicts the value of flags by name.
var flagPredictors = map[string]complete.Predictor{
	"config":     predict.Files("*.yaml"),
	"state":      predict.Files("*.jsonl"),
	"status":     predict.Set{"OPEN", "RESOLVED", "DRAFT", "APPROVED", "REJECTED", "NEEDS_REVIEW"},
	"severity":   predict.Set{"LOW", "MEDIUM", "HIGH"},
	"resolution": predict.Set{"ACCEPT", "REJECT"},
}

// completion builds the completion tree from the flags of every subcommand.
func completion() *complete.Command {
	root := &complete.Command{
		Sub:   make(map[string]*complete.Command),
		Flags: flags(flag.CommandLine),
	}
	topics, _ := docs.GetAllTopics()
	for _, c := range cmd.Commands {
		fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(fs)
		sub := &complete.Command{Flags: flags(fs), Args: args[c.Name()]}
		if c.Name() == "topic" {
			sub.Args = predict.Set(topics)
		}
		root.Sub[c.Name()] = sub
	}
	return root
}

func flags(fs *flag.FlagSet) map[string]complete.Predictor {
	m := make(map[string]complete.Predictor)
	fs.VisitAll(func(f *flag.Flag) {
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			m[f.Name] = nil
			return
		}
		if p, ok := flagPredictors[f.Name]; ok {
			m[f.Name] = p
			return
		}
		m[f.Name] = predict.Something
	})
	return m
}
