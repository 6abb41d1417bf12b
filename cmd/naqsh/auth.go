package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/kingrea/naqsh/internal/session"
	"github.com/kingrea/naqsh/internal/shop"
)

func handleLoginCommand() bool {
	if len(os.Args) < 2 || os.Args[1] != "login" {
		return false
	}
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	projectDir := fs.String("project", "", "directory holding .naqsh/ (defaults to cwd)")
	username := fs.String("username", "", "username or email")
	password := fs.String("password", "", "password (defaults to $NAQSH_PASSWORD, then a prompt)")
	_ = fs.Parse(os.Args[2:])

	user := strings.TrimSpace(*username)
	if user == "" && fs.NArg() > 0 {
		user = fs.Arg(0)
	}
	if user == "" {
		fmt.Fprintln(os.Stderr, "Usage: naqsh login [--project dir] [--password pw] <username|email>")
		os.Exit(2)
	}
	pass := *password
	if pass == "" {
		pass = os.Getenv("NAQSH_PASSWORD")
	}
	if pass == "" {
		var err error
		if pass, err = readPassword("Password: ", os.Stdin); err != nil {
			die("read password: %v", err)
		}
	}

	rt, err := openRuntime(*projectDir)
	if err != nil {
		die("%v", err)
	}
	defer rt.Close()
	ctx, cancel := rt.requestContext()
	defer cancel()
	profile, err := rt.svc.Login(ctx, user, pass)
	if err != nil {
		rt.Close()
		die("Login failed: %s", shop.UserMessage(err, err.Error()))
	}
	fmt.Printf("Signed in as %s (%s)\n", profile.DisplayName(), profile.Email)
	return true
}

func handleLogoutCommand() bool {
	if len(os.Args) < 2 || os.Args[1] != "logout" {
		return false
	}
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	projectDir := fs.String("project", "", "directory holding .naqsh/ (defaults to cwd)")
	_ = fs.Parse(os.Args[2:])

	rt, err := openRuntime(*projectDir)
	if err != nil {
		die("%v", err)
	}
	defer rt.Close()
	ctx, cancel := rt.requestContext()
	defer cancel()
	if err := rt.svc.Logout(ctx); err != nil {
		rt.Close()
		die("Logout failed: %v", err)
	}
	fmt.Println("Signed out")
	return true
}

func handleWhoamiCommand() bool {
	if len(os.Args) < 2 || os.Args[1] != "whoami" {
		return false
	}
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	projectDir := fs.String("project", "", "directory holding .naqsh/ (defaults to cwd)")
	offline := fs.Bool("offline", false, "only describe the stored tokens, do not call the API")
	_ = fs.Parse(os.Args[2:])

	rt, err := openRuntime(*projectDir)
	if err != nil {
		die("%v", err)
	}
	defer rt.Close()

	creds := rt.store.Snapshot()
	if creds.AccessToken == "" {
		fmt.Println("Not signed in")
		return true
	}
	now := time.Now()
	fmt.Printf("Session:       %s\n", rt.store.Path())
	if creds.Username != "" {
		fmt.Printf("Username:      %s\n", creds.Username)
	}
	fmt.Printf("Access token:  %s\n", describeToken(creds.AccessToken, now))
	fmt.Printf("Refresh token: %s\n", describeToken(creds.RefreshToken, now))
	if *offline {
		return true
	}

	ctx, cancel := rt.requestContext()
	defer cancel()
	profile, err := rt.svc.Me(ctx)
	if err != nil {
		rt.Close()
		die("API rejected the session: %s", shop.UserMessage(err, err.Error()))
	}
	fmt.Printf("Signed in as:  %s <%s> (%s)\n", profile.DisplayName(), profile.Email, profile.Role)
	return true
}

func describeToken(token string, now time.Time) string {
	if token == "" {
		return "none"
	}
	info, ok := session.Inspect(token)
	if !ok {
		return "opaque"
	}
	left, ok := info.Remaining(now)
	if !ok {
		return "no expiry"
	}
	if left <= 0 {
		return fmt.Sprintf("expired %s ago", (-left).Round(time.Second))
	}
	return fmt.Sprintf("valid for %s", left.Round(time.Second))
}

// readPassword reads without echo when in is a terminal and falls back to
// a plain line read for pipes and redirected input.
func readPassword(prompt string, in *os.File) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}
	return readLine(in)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
