package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"uangku/internal/auth"
	"uangku/internal/logging"
	"uangku/internal/upstream"

	"golang.org/x/term"
)

const defaultAPIBaseURL = "http://localhost:3001/api"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	apiURL := fs.String("api", "", "Account API base URL (default $API_BASE_URL or "+defaultAPIBaseURL+")")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		fmt.Fprintln(stdout, "Usage: register -user <username> [-password <password>] [-api <base_url>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	password, confirm := *passwordFlag, *passwordFlag
	if password == "" {
		pr := newPasswordReader(stdin)
		var err error
		fmt.Fprint(stdout, "Password: ")
		if password, err = pr.read(); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)

		fmt.Fprint(stdout, "Confirm password: ")
		if confirm, err = pr.read(); err != nil {
			return fmt.Errorf("failed to read password confirmation: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	baseURL := *apiURL
	if baseURL == "" {
		baseURL = os.Getenv("API_BASE_URL")
	}
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}

	// Keep gateway logs off the terminal unless something goes wrong.
	logging.Init(logging.Config{Level: "error", Format: "console", Output: stderr})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gw := auth.NewGateway(upstream.NewClient(upstream.Options{BaseURL: baseURL}), nil, nil)
	err := gw.Register(ctx, auth.RegisterForm{
		Username:        *username,
		Password:        password,
		ConfirmPassword: confirm,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", auth.Message(err), err)
	}

	fmt.Fprintf(stdout, "Account %s registered\n", *username)
	return nil
}

// passwordReader reads passwords without echo from a terminal, or one line
// at a time from anything else. The scanner is shared so buffered input
// survives between prompts.
type passwordReader struct {
	stdin   io.Reader
	scanner *bufio.Scanner
}

func newPasswordReader(stdin io.Reader) *passwordReader {
	return &passwordReader{stdin: stdin, scanner: bufio.NewScanner(stdin)}
}

func (p *passwordReader) read() (string, error) {
	// Check if stdin is a terminal
	if f, ok := p.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	if p.scanner.Scan() {
		return p.scanner.Text(), nil
	}
	if err := p.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
