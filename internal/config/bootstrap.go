package config

import (
	"fmt"

	"github.com/ruilisi/golicator/internal/logsink"
	"github.com/ruilisi/golicator/internal/rule"
	"github.com/ruilisi/golicator/internal/transmit"
)

// Bootstrap is everything cmd/golicator needs to start the dispatcher: the
// parsed settings, the built rule table, the opened log sink, and any
// non-fatal warnings collected along the way (default ports used, log
// paths falling back).
type Bootstrap struct {
	Settings Settings
	Table    *rule.Table
	Sink     *logsink.Sink
	Warnings []string
}

// Run loads the configuration document at confPath and wires up the rule
// table, log sink, and (if spoof_src is set) probes raw-socket support.
// generated mirrors Load: true means a default configuration was just
// written and the caller should exit 0 without starting the dispatcher.
func Run(confPath string) (bs *Bootstrap, generated bool, err error) {
	doc, generated, err := Load(confPath)
	if generated || err != nil {
		return nil, generated, err
	}

	table, ruleWarnings, err := rule.NewTable(doc.Rules)
	if err != nil {
		return nil, false, fmt.Errorf("bootstrap: forwarding rules: %w", err)
	}

	logPath, logWarning := ResolveLogPath(doc.Settings.LogPath, DefaultLogFilename)
	dataLogPath, dataLogWarning := ResolveLogPath(doc.Settings.DataLogPath, DefaultDataLogFilename)

	sink, err := logsink.NewSink(logPath, dataLogPath)
	if err != nil {
		return nil, false, fmt.Errorf("bootstrap: log sink: %w", err)
	}

	if doc.Settings.SpoofSrc {
		if err := transmit.ProbeSpoofing(); err != nil {
			return nil, false, fmt.Errorf("bootstrap: spoof_src enabled but unusable: %w", err)
		}
	}

	warnings := append([]string{}, ruleWarnings...)
	if logWarning != "" {
		warnings = append(warnings, logWarning)
	}
	if dataLogWarning != "" {
		warnings = append(warnings, dataLogWarning)
	}

	return &Bootstrap{
		Settings: doc.Settings,
		Table:    table,
		Sink:     sink,
		Warnings: warnings,
	}, false, nil
}
