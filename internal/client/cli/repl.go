package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Profile(ctx context.Context) error
	Avatar(ctx context.Context, path string) error
	ForgotPassword(ctx context.Context) error
	ResetPassword(ctx context.Context) error
	VerifyEmail(ctx context.Context, token string) error
	Status(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. The loop exits on EOF, when ctx is done,
// or when the user types "exit" or "quit".
//
//	Not logged in:
//	  - help           - show available commands
//	  - register       - create an account
//	  - login          - authenticate
//	  - forgot         - request a password reset token
//	  - reset          - set a new password with a reset token
//	  - status         - show session state
//	  - exit | quit    - leave the program
//
//	Logged in:
//	  - help           - show available commands
//	  - profile        - show the current user
//	  - avatar <path>  - upload an avatar image
//	  - verify <token> - confirm the email address
//	  - status         - show session state
//	  - logout         - log out
//	  - exit | quit    - leave the program
//
// Errors returned by command handlers are ignored here; handlers report
// them to the user themselves.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}

		printlnFn(fmt.Sprintf("api %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: profile, avatar <path>, verify <token>, status, logout, exit")
			} else {
				printlnFn("Available commands: register, login, forgot, reset, status, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "forgot":
			_ = a.ForgotPassword(ctx)

		case "reset":
			_ = a.ResetPassword(ctx)

		case "status":
			_ = a.Status(ctx)

		case "profile", "logout", "avatar", "verify":
			if !a.isLoggedIn() {
				printlnFn("Please log in first.")
				continue
			}
			switch cmd {
			case "profile":
				_ = a.Profile(ctx)
			case "logout":
				_ = a.Logout(ctx)
			case "avatar":
				if len(args) == 0 {
					printlnFn("Usage: avatar <path>")
					continue
				}
				_ = a.Avatar(ctx, strings.Join(args, " "))
			case "verify":
				if len(args) != 1 {
					printlnFn("Usage: verify <token>")
					continue
				}
				_ = a.VerifyEmail(ctx, args[0])
			}

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
