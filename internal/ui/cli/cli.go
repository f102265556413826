package cli

import (
	"flag"
	"io"
)

type cliOptions struct {
	configPath  string
	once        bool
	watch       bool
	format      string
	output      string
	color       bool
	trace       bool
	impact      string
	lookup      string
	query       string
	limit       int
	history     bool
	since       string
	historyTSV  string
	historyJSON string
	verbose     bool
	version     bool
	args        []string
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("crossmod", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default: ./crossmod.toml when present)")
	fs.BoolVar(&opts.once, "once", false, "Analyze once and exit (default)")
	fs.BoolVar(&opts.watch, "watch", false, "Keep running and re-analyze on file changes")
	fs.StringVar(&opts.format, "format", "", "Report format: text, json or sarif (default from config)")
	fs.StringVar(&opts.output, "output", "", "Write the report to this path instead of stdout")
	fs.BoolVar(&opts.color, "color", false, "Colour the text report")
	fs.BoolVar(&opts.trace, "trace", false, "Trace the shortest import chain between two modules")
	fs.StringVar(&opts.impact, "impact", "", "List the modules affected by a change to this module")
	fs.StringVar(&opts.lookup, "lookup", "", "Resolve a symbol as seen from a module, e.g. Proto.Id")
	fs.StringVar(&opts.query, "query", "", "Run a module query, e.g. 'SELECT modules WHERE fan_in > 2'")
	fs.IntVar(&opts.limit, "limit", 0, "Cap the number of query results (0 means no cap)")
	fs.BoolVar(&opts.history, "history", false, "Print stored cycle history per project")
	fs.StringVar(&opts.since, "since", "", "Only include history at/after this time (RFC3339 or YYYY-MM-DD)")
	fs.StringVar(&opts.historyTSV, "history-tsv", "", "Write cycle history TSV to this path (requires --history)")
	fs.StringVar(&opts.historyJSON, "history-json", "", "Write cycle history JSON to this path (requires --history)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts.args = fs.Args()
	return opts, nil
}
