package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
)

// command is one REPL verb. Commands marked session are refused while
// signed out.
type command struct {
	help    string
	session bool
	run     func(ctx context.Context, args []string) error
}

// errQuit ends the loop.
var errQuit = errors.New("quit")

// shell is the surface runREPL needs. The real App satisfies it; tests use
// a stub.
type shell interface {
	isLoggedIn() bool
	prompt() string
	commands() map[string]command
	println(a ...any)
	errorln(msg string)
}

// runREPL reads commands from reader until EOF or "exit".
//
// The first token of each line picks the command, the rest are its
// arguments. Unknown commands and commands that need a session while signed
// out are reported; command errors are printed and the loop goes on.
func runREPL(ctx context.Context, sh shell, reader *bufio.Reader, w io.Writer) {
	cmds := sh.commands()
	for {
		if ctx.Err() != nil {
			return
		}
		_, _ = io.WriteString(w, sh.prompt())

		line, err := reader.ReadString('\n')
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				return
			}
			continue
		}

		name, args := strings.ToLower(parts[0]), parts[1:]
		cmd, ok := cmds[name]
		switch {
		case name == "help":
			printHelp(sh, cmds)
		case !ok:
			sh.println("Unknown command:", name)
		case cmd.session && !sh.isLoggedIn():
			sh.println("Sign in first. Type 'help' for commands.")
		default:
			if err := cmd.run(ctx, args); err != nil {
				if errors.Is(err, errQuit) {
					return
				}
				sh.errorln(err.Error())
			}
		}

		if err != nil {
			return
		}
	}
}

func printHelp(sh shell, cmds map[string]command) {
	names := make([]string, 0, len(cmds))
	for name, c := range cmds {
		if c.session && !sh.isLoggedIn() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sh.println("Available commands:")
	for _, name := range names {
		sh.println("  " + padRight(name, 10) + cmds[name].help)
	}
	sh.println("  " + padRight("help", 10) + "show this list")
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
