package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Checksum(ctx context.Context, path string) error
	Plan(ctx context.Context, path string) error
	Upload(ctx context.Context, path string) error
	Resume(ctx context.Context, id string) error
	Status(ctx context.Context, id string) error
	List(ctx context.Context) error
}

const helpText = "Available commands: checksum <path>, plan <path>, upload <path>, resume <id>, status <id>, (l)ist, exit"

// runREPL starts a simple read–eval–print loop for the contentup CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command and the rest of the line as its argument, and dispatches to methods
// on 'a'. The loop exits on scanner EOF or when the user types "exit" or
// "quit".
//
// Commands
//
//	help              show available commands
//	checksum <path>   print the SHA-256 of a file
//	plan <path>       print the chunk plan of a file
//	upload <path>     upload a file
//	resume <id>       continue an interrupted upload
//	status <id>       show a journaled upload
//	list              list journaled uploads
//	exit | quit       leave the program
//
// Errors returned by command handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("cu %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		if cmd == "" {
			continue
		}
		arg = strings.TrimSpace(arg)

		var err error
		switch cmd {
		case "help":
			printlnFn(helpText)

		case "checksum", "plan", "upload", "resume", "status":
			if arg == "" {
				printlnFn(fmt.Sprintf("Usage: %s <%s>", cmd, argName(cmd)))
				continue
			}
			err = dispatch(ctx, a, cmd, arg)

		case "l", "list":
			err = a.List(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}

func argName(cmd string) string {
	if cmd == "resume" || cmd == "status" {
		return "id"
	}
	return "path"
}

func dispatch(ctx context.Context, a execIface, cmd, arg string) error {
	switch cmd {
	case "checksum":
		return a.Checksum(ctx, arg)
	case "plan":
		return a.Plan(ctx, arg)
	case "upload":
		return a.Upload(ctx, arg)
	case "resume":
		return a.Resume(ctx, arg)
	default:
		return a.Status(ctx, arg)
	}
}
