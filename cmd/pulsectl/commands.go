package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"pulse/cmd/client/apiclient"
	"pulse/cmd/client/refresh"
	v1 "pulse/shared/contracts/realtime/v1"

	"golang.org/x/term"
)

// Terminal seams, swapped in tests.
var (
	isTerminal = term.IsTerminal
	readSecret = term.ReadPassword
)

const (
	watchBackoffMin = time.Second
	watchBackoffMax = 30 * time.Second
)

func subFlags(s *cli, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("pulsectl "+name, flag.ContinueOnError)
	fs.SetOutput(s.stderr)
	return fs
}

// oneArg parses fs and returns its single positional argument.
func oneArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return "", fmt.Errorf("want exactly one %s", what)
	}
	return strings.TrimSpace(fs.Arg(0)), nil
}

func noArgs(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

// readPassword takes the password from the flag, then $PULSE_PASSWORD, then stdin. A terminal
// is prompted without echo; piped input supplies its first line.
func (s *cli) readPassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := s.getenv("PULSE_PASSWORD"); v != "" {
		return v, nil
	}
	if f, ok := s.stdin.(*os.File); ok && isTerminal(int(f.Fd())) {
		fmt.Fprint(s.stderr, "Password: ")
		pw, err := readSecret(int(f.Fd()))
		fmt.Fprintln(s.stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if len(pw) == 0 {
			return "", errors.New("password required")
		}
		return string(pw), nil
	}
	line, err := bufio.NewReader(s.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required (-p, $PULSE_PASSWORD or stdin)")
	}
	return line, nil
}

func cmdLogin(ctx context.Context, s *cli, args []string) error {
	fs := subFlags(s, "login")
	user := fs.String("u", "", "username or email")
	pass := fs.String("p", "", "password (visible in the process list; prefer the prompt)")
	sessionOnly := fs.Bool("session-only", false, "do not keep the session after this command")
	if err := noArgs(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*user) == "" {
		return errors.New("-u is required")
	}
	password, err := s.readPassword(*pass)
	if err != nil {
		return err
	}

	id, err := s.api.Login(ctx, strings.TrimSpace(*user), password, !*sessionOnly)
	if err != nil {
		return err
	}
	s.printf("signed in as %s (%s)\n", id.Name(), id.UserID)
	return nil
}

func cmdRegister(ctx context.Context, s *cli, args []string) error {
	fs := subFlags(s, "register")
	user := fs.String("u", "", "username")
	email := fs.String("email", "", "email")
	name := fs.String("name", "", "display name")
	pass := fs.String("p", "", "password (visible in the process list; prefer the prompt)")
	sessionOnly := fs.Bool("session-only", false, "do not keep the session after this command")
	if err := noArgs(fs, args); err != nil {
		return err
	}
	password, err := s.readPassword(*pass)
	if err != nil {
		return err
	}

	id, err := s.api.Register(ctx, apiclient.RegisterInput{
		Username:    strings.TrimSpace(*user),
		Email:       strings.TrimSpace(*email),
		DisplayName: strings.TrimSpace(*name),
		Password:    password,
	}, !*sessionOnly)
	if err != nil {
		return err
	}
	s.printf("registered %s (%s)\n", id.Name(), id.UserID)
	return nil
}

func cmdLogout(ctx context.Context, s *cli, args []string) error {
	fs := subFlags(s, "logout")
	all := fs.Bool("all", false, "revoke every session of this account")
	if err := noArgs(fs, args); err != nil {
		return err
	}
	if _, ok := s.store.CurrentIdentity(); !ok {
		s.printf("not signed in\n")
		return nil
	}
	if *all {
		if err := s.api.LogoutAll(ctx); err != nil {
			return err
		}
	} else if err := s.api.Logout(ctx); err != nil {
		return err
	}
	s.printf("signed out\n")
	return nil
}

func cmdWhoami(ctx context.Context, s *cli, args []string) error {
	if err := noArgs(subFlags(s, "whoami"), args); err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	me, err := s.api.Me(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", me.ID)
	if me.Username != nil {
		fmt.Fprintf(tw, "username\t%s\n", *me.Username)
	}
	if me.DisplayName != nil {
		fmt.Fprintf(tw, "name\t%s\n", *me.DisplayName)
	}
	if me.Email != nil {
		fmt.Fprintf(tw, "email\t%s\n", *me.Email)
	}
	mode := "session-only"
	if s.store.Persistent() {
		mode = "remembered"
	}
	fmt.Fprintf(tw, "session\t%s\n", mode)
	return tw.Flush()
}

func cmdList(ctx context.Context, s *cli, args []string) error {
	fs := subFlags(s, "list")
	limit := fs.Int("n", 20, "maximum notifications to show")
	unread := fs.Bool("unread", false, "only unread notifications")
	oldest := fs.Bool("oldest", false, "oldest first")
	if err := noArgs(fs, args); err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}

	items, err := s.api.Notifications(ctx, apiclient.ListOptions{Limit: *limit, UnreadOnly: *unread, OldestFirst: *oldest})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		s.printf("no notifications\n")
		return nil
	}

	now := time.Now()
	tw := tabwriter.NewWriter(s.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\t\tWHEN\tMESSAGE")
	for _, n := range items {
		mark := ""
		if !n.Read {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, n.Type, mark, formatAge(now, n.CreatedAt), n.Message)
	}
	return tw.Flush()
}

func cmdUnread(ctx context.Context, s *cli, args []string) error {
	if err := noArgs(subFlags(s, "unread"), args); err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	n, err := s.api.UnreadCount(ctx)
	if err != nil {
		return err
	}
	s.printf("%d\n", n)
	return nil
}

func cmdRead(ctx context.Context, s *cli, args []string) error {
	id, err := oneArg(subFlags(s, "read"), args, "notification id")
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	if _, err := s.api.MarkRead(ctx, id); err != nil {
		return notFound(err, id)
	}
	s.printf("marked %s read\n", id)
	return nil
}

func cmdReadAll(ctx context.Context, s *cli, args []string) error {
	if err := noArgs(subFlags(s, "read-all"), args); err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	n, err := s.api.MarkAllRead(ctx)
	if err != nil {
		return err
	}
	s.printf("marked %d read\n", n)
	return nil
}

func cmdRemove(ctx context.Context, s *cli, args []string) error {
	id, err := oneArg(subFlags(s, "rm"), args, "notification id")
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	if err := s.api.DeleteNotification(ctx, id); err != nil {
		return notFound(err, id)
	}
	s.printf("deleted %s\n", id)
	return nil
}

func cmdClear(ctx context.Context, s *cli, args []string) error {
	if err := noArgs(subFlags(s, "clear"), args); err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	n, err := s.api.ClearNotifications(ctx)
	if err != nil {
		return err
	}
	s.printf("deleted %d\n", n)
	return nil
}

func cmdTest(ctx context.Context, s *cli, args []string) error {
	if err := noArgs(subFlags(s, "test"), args); err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	n, err := s.api.SendTest(ctx)
	if err != nil {
		return err
	}
	s.printf("sent %s\n", n.ID)
	return nil
}

func cmdPost(ctx context.Context, s *cli, args []string) error {
	fs := subFlags(s, "post")
	if err := fs.Parse(args); err != nil {
		return err
	}
	body := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if body == "" {
		return errors.New("post text required")
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	p, err := s.api.CreatePost(ctx, body)
	if err != nil {
		return err
	}
	s.printf("%s\n", p.ID)
	return nil
}

func cmdLike(ctx context.Context, s *cli, args []string) error {
	id, err := oneArg(subFlags(s, "like"), args, "post id")
	if err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}
	res, err := s.api.ToggleLike(ctx, id)
	if err != nil {
		return notFound(err, id)
	}
	verb := "unliked"
	if res.Liked {
		verb = "liked"
	}
	s.printf("%s %s (%d likes)\n", verb, res.PostID, res.Likes)
	return nil
}

// cmdWatch streams notifications until interrupted, reconnecting with backoff when the
// connection drops. A rejected session ends the watch.
func cmdWatch(ctx context.Context, s *cli, args []string) error {
	fs := subFlags(s, "watch")
	once := fs.Bool("once", false, "exit after the first notification")
	if err := noArgs(fs, args); err != nil {
		return err
	}
	if err := s.requireLogin(); err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	backoff := watchBackoffMin
	for {
		connected := false
		err := s.api.Watch(ctx, apiclient.WatchHandler{
			Ready: func(p v1.ReadyPayload) {
				connected = true
				s.log.Debug("watch.ready", "user_id", p.UserID)
			},
			Notification: func(n v1.NotificationPayload) {
				s.printf("%s  %-12s %s\n", n.CreatedAt.Local().Format(time.TimeOnly), n.Type, n.Message)
				if *once {
					stop()
				}
			},
			Error: func(p v1.ErrorPayload) {
				s.log.Warn("watch.server_error", "code", p.Code, "message", p.Message)
			},
		})
		if ctx.Err() != nil || err == nil && *once {
			return nil
		}
		if errors.Is(err, refresh.ErrSessionExpired) || apiclient.IsStatus(err, http.StatusUnauthorized) {
			return fmt.Errorf("session rejected, sign in again: %w", err)
		}
		if connected {
			backoff = watchBackoffMin
		}
		s.log.Warn("watch.disconnected", "err", err, "retry_in", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff = min(backoff*2, watchBackoffMax)
	}
}

func notFound(err error, id string) error {
	if apiclient.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%s not found", id)
	}
	return err
}
