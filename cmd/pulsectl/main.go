// Command pulsectl is a terminal client for Pulse notifications.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"pulse/cmd/client/apiclient"
	"pulse/cmd/client/sessionstore"
	"pulse/cmd/internal/app"
)

const usage = `usage: pulsectl [global flags] <command> [flags] [args]

commands:
  register   create an account (-u, -email, -name, password as for login)
  login      sign in (-u user; password prompted, or from $PULSE_PASSWORD, -p or piped stdin)
  logout     sign out here (-all signs out everywhere)
  whoami     show the signed-in account
  list       list notifications (-n limit, -unread, -oldest)
  unread     print the unread count
  read ID    mark one notification read
  read-all   mark every notification read
  rm ID      delete one notification
  clear      delete every notification
  test       send yourself a TEST notification
  watch      stream notifications as they arrive
  post TEXT  publish a post
  like ID    toggle a like on a post

global flags:
`

type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e := env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv}
	os.Exit(run(ctx, os.Args[1:], e))
}

type command func(ctx context.Context, s *cli, args []string) error

var commands = map[string]command{
	"register": cmdRegister,
	"login":    cmdLogin,
	"logout":   cmdLogout,
	"whoami":   cmdWhoami,
	"list":     cmdList,
	"unread":   cmdUnread,
	"read":     cmdRead,
	"read-all": cmdReadAll,
	"rm":       cmdRemove,
	"clear":    cmdClear,
	"test":     cmdTest,
	"watch":    cmdWatch,
	"post":     cmdPost,
	"like":     cmdLike,
}

// cli is the per-invocation state shared by commands.
type cli struct {
	env
	cfg     config
	log     *slog.Logger
	store   *sessionstore.Store
	backend *sessionstore.SQLiteBackend
	api     *apiclient.Client
}

func run(ctx context.Context, args []string, e env) int {
	fs := flag.NewFlagSet("pulsectl", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprint(e.stderr, usage)
		fs.PrintDefaults()
	}

	var (
		configPath = fs.String("config", "", "config file (default "+defaultConfigPath()+")")
		server     = fs.String("server", "", "server base URL")
		sessionDB  = fs.String("session-db", "", "session database path")
		timeout    = fs.Duration("timeout", 0, "per-request timeout")
		verbose    = fs.Bool("v", false, "debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path, explicit := *configPath, *configPath != ""
	if !explicit {
		path = defaultConfigPath()
	}
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		fmt.Fprintf(e.stderr, "pulsectl: %v\n", err)
		return 1
	}

	// Flags win over the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Server = *server
		case "session-db":
			cfg.SessionDB = *sessionDB
		case "timeout":
			cfg.RequestTimeout = *timeout
		case "v":
			if *verbose {
				cfg.LogLevel = "debug"
			}
		}
	})

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(e.stderr, "pulsectl: unknown command %q (known: %s)\n", rest[0], strings.Join(commandNames(), ", "))
		return 2
	}

	s, err := newCLI(ctx, cfg, e)
	if err != nil {
		fmt.Fprintf(e.stderr, "pulsectl: %v\n", err)
		return 1
	}
	defer s.close()

	if err := cmd(ctx, s, rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(e.stderr, "pulsectl %s: %v\n", rest[0], err)
		return 1
	}
	return 0
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newCLI(ctx context.Context, cfg config, e env) (*cli, error) {
	log := app.NewLogger(cfg.LogLevel, cfg.LogFormat, e.stderr)

	if err := os.MkdirAll(filepath.Dir(cfg.SessionDB), 0o700); err != nil {
		return nil, fmt.Errorf("session dir: %w", err)
	}
	backend, err := sessionstore.OpenSQLite(ctx, cfg.SessionDB)
	if err != nil {
		return nil, err
	}
	store := sessionstore.New(backend)
	if _, err := store.Restore(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}

	api, err := apiclient.New(cfg.Server, store,
		apiclient.WithLogger(log),
		apiclient.WithRequestTimeout(cfg.RequestTimeout),
		apiclient.WithRefreshTimeout(cfg.RefreshTimeout),
	)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return &cli{env: e, cfg: cfg, log: log, store: store, backend: backend, api: api}, nil
}

func (s *cli) close() { _ = s.backend.Close() }

func (s *cli) requireLogin() error {
	if _, ok := s.store.CurrentIdentity(); !ok {
		return errors.New("not signed in; run pulsectl login")
	}
	return nil
}

func (s *cli) printf(format string, args ...any) {
	fmt.Fprintf(s.stdout, format, args...)
}

func formatAge(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return t.Local().Format("2006-01-02")
	}
}
