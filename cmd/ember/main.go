// The ember command line: a REPL when invoked with no script, otherwise
// a one-shot interpreter for the given file. Exit codes follow the
// sysexits.h convention the spec mandates: 0 success, 64 usage error,
// 65 a failed compile, 70 a failed run, 74 the script couldn't be read.
//
// Grounded on kristofer-smog/cmd/smog/main.go for the REPL loop shape
// (bufio.Scanner, persistent interpreter state across lines, a ">"
// prompt) and argv dispatch; logging setup follows zerolog's own
// ConsoleWriter pattern for a human-readable stderr stream in dev use.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"ember/pkg/vm"
)

const (
	exitOK        = 0
	exitUsage     = 64
	exitCompile   = 65
	exitRuntime   = 70
	exitNoInput   = 74
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		os.Exit(exitUsage)
	}

	logger := newLogger(cfg.quiet)

	if cfg.file == "" {
		runREPL(cfg, logger)
		return
	}

	os.Exit(runFile(cfg, logger, cfg.file))
}

func newLogger(quiet bool) zerolog.Logger {
	if quiet {
		return zerolog.Nop()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

func runFile(cfg *config, logger zerolog.Logger, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Can't read file '%s': %v\n", path, err)
		return exitNoInput
	}

	interp := vm.New(os.Stdout, os.Stderr, logger, cfg.trace)
	interp.SetStressGC(cfg.stressGC)

	if err := interp.Interpret(string(data)); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		switch err.(type) {
		case *vm.CompileError:
			return exitCompile
		case *vm.RuntimeError:
			return exitRuntime
		default:
			return exitRuntime
		}
	}
	return exitOK
}

func runREPL(cfg *config, logger zerolog.Logger) {
	fmt.Println("ember - a bytecode scripting REPL")
	fmt.Println("Type an expression or statement; Ctrl-D to exit.")

	logger.Info().Msg("repl session start")

	interp := vm.New(os.Stdout, os.Stderr, logger, cfg.trace)
	interp.SetStressGC(cfg.stressGC)

	lines := 0
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			logger.Info().Int("lines", lines).Msg("repl session stop")
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines++
		if err := interp.Interpret(line); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
		}
	}
}
