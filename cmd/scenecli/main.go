// Command scenecli plays a scripted key timeline against the chase scene at a
// fixed frame delta and writes a JSON summary to stdout.
//
// The script is read from the -script file ("-" for stdin); without one the
// chase proceeds at the red light and lets the junction time out.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"chasescene/internal/config"
	"chasescene/internal/recorder"
	"chasescene/internal/shared/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHASE_CONFIG"), "path to a JSON, YAML or TOML config file")
	scriptPath := flag.String("script", "", "JSON key timeline, - for stdin")
	recordPath := flag.String("record", "", "SQLite file to record the run into (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithWriter(os.Stderr, "scenecli", cfg.LogLevel)

	script := DefaultScript()
	if *scriptPath != "" {
		var data []byte
		if *scriptPath == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(*scriptPath)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading script: %v\n", err)
			os.Exit(1)
		}
		if script, err = ParseScript(data); err != nil {
			fmt.Fprintf(os.Stderr, "error parsing script: %v\n", err)
			os.Exit(1)
		}
	}

	path := *recordPath
	if path == "" && cfg.Recorder.Enabled {
		path = cfg.Recorder.Path
	}
	var rec *recorder.Recorder
	if path != "" {
		rec, err = recorder.Open(path, log, recorder.Options{Every: cfg.Recorder.Every})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening recorder: %v\n", err)
			os.Exit(1)
		}
		defer rec.Close()
	}

	sum, err := run(cfg, script, rec, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scene error: %v\n", err)
		if rec != nil {
			_ = rec.Close()
		}
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		fmt.Fprintf(os.Stderr, "error writing summary: %v\n", err)
		os.Exit(1)
	}
}
