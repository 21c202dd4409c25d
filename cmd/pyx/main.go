package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/pyxlang/pyx/pkg/compiler/diag"
	"github.com/pyxlang/pyx/pkg/compiler/pyxc"
)

const historyFile = ".pyx_history"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: pyx [run|tokens|repl] ...")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "tokens":
		os.Exit(cmdTokens(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl())
	default:
		fmt.Println("Unknown command:", os.Args[1])
		os.Exit(1)
	}
}

func cmdRun(args []string) int {
	if len(args) < 1 {
		fmt.Println("Usage: pyx run <source.pyx>")
		return 1
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return 1
	}

	mod, errs := pyxc.Compile(src)
	for _, e := range errs {
		printDiagnostic(e, src)
	}
	if len(errs) > 0 {
		return 1
	}
	fmt.Print(mod)
	return 0
}

func cmdTokens(args []string) int {
	if len(args) < 1 {
		fmt.Println("Usage: pyx tokens <source.pyx>")
		return 1
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return 1
	}
	pyxc.DumpTokens(src, os.Stdout)
	return 0
}

func cmdRepl() int {
	fmt.Println("pyx repl - one declaration per entry, :quit to exit")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	session := pyxc.NewSession()

	for {
		code, ok := readDeclaration(ln)
		if !ok {
			fmt.Println()
			return 0
		}
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if trimmed == ":quit" {
			return 0
		}

		src := []byte(code + "\n")
		res := session.CompileUnit(src)
		for _, e := range res.Errors {
			printDiagnostic(e, src)
		}
		for _, fn := range res.Funcs {
			fmt.Print(fn)
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
	}
}

// readDeclaration collects one declaration. A first line opening a suite
// (ending in ':') or a decorator line switches to continuation prompts
// until a blank line closes the block, the way Python's REPL reads blocks.
func readDeclaration(ln *liner.State) (string, bool) {
	line, err := ln.Prompt(">>> ")
	if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
		return "", false
	}
	if err != nil {
		return "", true
	}

	trimmed := strings.TrimSpace(line)
	if !strings.HasSuffix(trimmed, ":") && !strings.HasPrefix(trimmed, "@") {
		return line, true
	}

	var b strings.Builder
	b.WriteString(line)
	for {
		cont, err := ln.Prompt("... ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return b.String(), true
		}
		if err != nil || strings.TrimSpace(cont) == "" {
			return b.String(), true
		}
		b.WriteByte('\n')
		b.WriteString(cont)
	}
}

func printDiagnostic(err error, src []byte) {
	var de *diag.Error
	if errors.As(err, &de) {
		fmt.Fprintln(os.Stderr, de.Render(src))
		return
	}
	fmt.Fprintln(os.Stderr, err)
}
