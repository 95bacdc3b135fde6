// Command judge-worker-cli is an operator REPL for dry-running the script
// parser and inspecting on-disk workspaces without starting the full
// poll loop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"

	"fuzoj/internal/worker/sandbox/engine"
	"fuzoj/internal/worker/script"
	"fuzoj/internal/worker/workspace"
)

func main() {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "judge-worker> ",
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init readline failed: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	ctx := context.Background()
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on Ctrl-D, readline.ErrInterrupt on Ctrl-C
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := dispatch(ctx, rl.Stdout(), line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func dispatch(ctx context.Context, out io.Writer, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	switch tokens[0] {
	case "exit", "quit":
		os.Exit(0)
	case "help":
		printHelp(out)
	case "parse":
		if len(tokens) != 2 {
			return fmt.Errorf("usage: parse <script-file>")
		}
		return cmdParse(ctx, out, tokens[1])
	case "inspect":
		if len(tokens) != 2 {
			return fmt.Errorf("usage: inspect <workspace-path>")
		}
		return cmdInspect(out, tokens[1])
	case "kill":
		if len(tokens) != 3 {
			return fmt.Errorf("usage: kill <docker-socket> <submission-id>")
		}
		return cmdKill(ctx, tokens[1], tokens[2])
	default:
		return fmt.Errorf("unknown command %q, try 'help'", tokens[0])
	}
	return nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  parse <script-file>              dry-run the problem script parser")
	fmt.Fprintln(out, "  inspect <workspace-path>          print a workspace's subdirectory sizes")
	fmt.Fprintln(out, "  kill <docker-socket> <sub-id>      force-kill a submission's running container")
	fmt.Fprintln(out, "  exit | quit                       leave the REPL")
}

// cmdParse reads scriptPath, runs it through the same parser the worker
// uses, and prints the resulting ProblemSpec as JSON.
func cmdParse(ctx context.Context, out io.Writer, scriptPath string) error {
	raw, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read script file: %w", err)
	}
	problemID := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	spec, err := script.Parse(ctx, string(raw), problemID)
	if err != nil {
		return fmt.Errorf("parse script: %w", err)
	}
	encoded, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode problem spec: %w", err)
	}
	fmt.Fprintln(out, string(encoded))
	return nil
}

// cmdInspect prints the byte size of each fixed subdirectory under a
// workspace path, without requiring a live worker process.
func cmdInspect(out io.Writer, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat workspace: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", root)
	}
	for _, sub := range workspace.Subdirs {
		size, fileCount, err := dirStats(filepath.Join(root, sub))
		if err != nil {
			fmt.Fprintf(out, "%-12s <missing>\n", sub)
			continue
		}
		fmt.Fprintf(out, "%-12s %10d bytes  %5d files\n", sub, size, fileCount)
	}
	return nil
}

func dirStats(dir string) (int64, int, error) {
	var size int64
	var count int
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
			count++
		}
		return nil
	})
	return size, count, err
}

// cmdKill dials the container engine directly and force-kills whatever
// container is tracked for submissionID. Only useful against a live
// engine daemon; it does not talk to a running worker process.
func cmdKill(ctx context.Context, socketPath, submissionID string) error {
	eng, err := engine.NewEngine(engine.Config{SocketPath: socketPath}.Normalized())
	if err != nil {
		return fmt.Errorf("connect to container engine: %w", err)
	}
	return eng.KillSubmission(ctx, submissionID)
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".judge-worker-cli-history"
	}
	return filepath.Join(home, ".judge-worker-cli-history")
}
