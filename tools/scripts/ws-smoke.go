// Package main provides a CI-friendly end-to-end smoke test for Pulse live notifications.
//
// It validates:
//   - registration of an author and a fan over HTTP
//   - handshake, subprotocol selection and the ready envelope
//   - ping/pong on the author's channel
//   - a like producing a notification pushed to the author
//   - the pushed notification matching the stored list
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "pulse/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20

type smokeUser struct {
	name        string
	userID      string
	accessToken string
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		password = flag.String("password", "Smoke-Test-Password-1!", "Password for the generated accounts")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	base := strings.TrimRight(*baseURL, "/")
	suffix := fmt.Sprintf("%d", time.Now().UnixNano()%1_000_000_000)
	root := context.Background()

	author := mustRegister(root, base, "smoke_author_"+suffix, *password, *timeout)
	fan := mustRegister(root, base, "smoke_fan_"+suffix, *password, *timeout)
	if *verbose {
		fmt.Printf("registered: author=%s fan=%s\n", author.userID, fan.userID)
	}

	conn, channelID := mustConnect(root, base, author, *timeout)
	defer closeWS(conn)
	if *verbose {
		fmt.Printf("connected: channel=%s\n", channelID)
	}

	mustPingPong(root, conn, *timeout)

	var post struct {
		ID string `json:"id"`
	}
	mustPost(root, base+"/posts", author.accessToken, map[string]string{"body": "smoke " + suffix}, http.StatusCreated, &post, *timeout)
	mustPost(root, base+"/posts/"+post.ID+"/like", fan.accessToken, nil, http.StatusOK, nil, *timeout)

	env := mustReadUntilType(root, conn, v1.TypeNotification, *timeout)
	var np v1.NotificationPayload
	if err := json.Unmarshal(env.Payload, &np); err != nil {
		fatalf("unmarshal notification payload: %v", err)
	}
	if np.RecipientID != author.userID || np.SenderID != fan.userID {
		fatalf("notification routing mismatch: recipient=%q sender=%q", np.RecipientID, np.SenderID)
	}
	if np.Type != "LIKE" || !strings.Contains(np.Message, fan.name) {
		fatalf("unexpected notification: type=%q message=%q", np.Type, np.Message)
	}

	mustListContains(root, base, author.accessToken, np.ID, *timeout)

	fmt.Printf("OK: author=%s fan=%s post=%s notification=%s\n", author.userID, fan.userID, post.ID, np.ID)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustRegister(parent context.Context, base, username, password string, stepTimeout time.Duration) smokeUser {
	var out struct {
		Session struct {
			UserID      string `json:"user_id"`
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	mustPost(parent, base+"/auth/register", "", map[string]string{
		"username": username,
		"password": password,
	}, http.StatusCreated, &out, stepTimeout)

	if out.Session.AccessToken == "" || out.Session.UserID == "" {
		fatalf("register %s: response missing session", username)
	}
	return smokeUser{name: username, userID: out.Session.UserID, accessToken: out.Session.AccessToken}
}

func mustPost(parent context.Context, endpoint, bearer string, body any, wantStatus int, dst any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var rdr *bytes.Reader
	if body != nil {
		rdr = bytes.NewReader(mustJSON(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, rdr)
	if err != nil {
		fatalf("build request %s: %v", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	doJSON(req, wantStatus, dst)
}

func mustListContains(parent context.Context, base, bearer, notificationID string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/notifications", nil)
	if err != nil {
		fatalf("build list request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	var out struct {
		Notifications []v1.NotificationPayload `json:"notifications"`
	}
	doJSON(req, http.StatusOK, &out)
	for _, n := range out.Notifications {
		if n.ID == notificationID {
			return
		}
	}
	fatalf("pushed notification %s missing from stored list", notificationID)
}

func doJSON(req *http.Request, wantStatus int, dst any) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != wantStatus {
		fatalf("%s %s: status=%d want=%d", req.Method, req.URL.Path, resp.StatusCode, wantStatus)
	}
	if dst == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		fatalf("%s %s: decode: %v", req.Method, req.URL.Path, err)
	}
}

func mustConnect(parent context.Context, base string, u smokeUser, stepTimeout time.Duration) (*websocket.Conn, string) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   http.Header{"Authorization": []string{"Bearer " + u.accessToken}},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", u.name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	ready := mustReadUntilType(parent, conn, v1.TypeReady, stepTimeout)
	var p v1.ReadyPayload
	if err := json.Unmarshal(ready.Payload, &p); err != nil {
		fatalf("unmarshal ready payload: %v", err)
	}
	if p.UserID != u.userID || strings.TrimSpace(p.ChannelID) == "" {
		fatalf("ready payload mismatch: %+v", p)
	}
	return conn, p.ChannelID
}

func mustPingPong(parent context.Context, conn *websocket.Conn, stepTimeout time.Duration) {
	id := fmt.Sprintf("smoke-ping-%d", time.Now().UnixNano())
	mustWriteWithTimeout(parent, conn, v1.Envelope{V: v1.Version, Type: v1.TypePing, ID: id, TS: time.Now().UTC()}, stepTimeout)

	pong := mustReadUntilType(parent, conn, v1.TypePong, stepTimeout)
	if pong.ID != id {
		fatalf("pong id mismatch: got=%q want=%q", pong.ID, id)
	}
}

func mustReadUntilType(parent context.Context, conn *websocket.Conn, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			fatalf("waiting for %s: %v", wantType, err)
		}
		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			fatalf("bad json: %v", err)
		}
		if err := env.Validate(); err != nil {
			fatalf("bad envelope: %v", err)
		}
		if env.Type == v1.TypeError {
			fatalf("server error envelope while waiting for %s: %s", wantType, env.Payload)
		}
		if env.Type == wantType {
			return env
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, mustJSON(env)); err != nil {
		fatalf("write %s: %v", env.Type, err)
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
