package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"intradaySync/internal/adapters/gdrive"
)

// Runs the OAuth installed-app flow for a Drive user account and prints the
// token JSON to store as the GDRIVE_TOKEN secret.
func main() {
	credsPath := flag.String("credentials", "credentials.json", "OAuth client secrets downloaded from the Cloud console")
	timeout := flag.Duration("timeout", 5*time.Minute, "how long to wait for the browser consent")
	flag.Parse()

	raw, err := os.ReadFile(*credsPath)
	if err != nil {
		log.Fatalf("FATAL: cannot read %s: %v", *credsPath, err)
	}
	conf, err := google.ConfigFromJSON(raw, drive.DriveScope)
	if err != nil {
		log.Fatalf("FATAL: invalid client secrets in %s: %v", *credsPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tok, err := authorize(ctx, conf, func(url string) {
		fmt.Fprintf(os.Stderr, "Open this URL in a browser and grant access:\n\n%s\n\n", url)
	})
	if err != nil {
		log.Fatalf("FATAL: authorization failed: %v", err)
	}

	out, err := json.Marshal(gdrive.NewTokenFile(conf, tok))
	if err != nil {
		log.Fatalf("FATAL: cannot encode token: %v", err)
	}
	fmt.Fprintln(os.Stderr, "Store the following JSON as the GDRIVE_TOKEN secret:")
	fmt.Println(string(out))
}

// authorize serves the OAuth redirect on a loopback port, hands the consent
// URL to show, and exchanges the returned code for a token.
func authorize(ctx context.Context, conf *oauth2.Config, show func(url string)) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("cannot listen for the redirect: %w", err)
	}
	defer ln.Close()

	cfg := *conf
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/"

	state, err := randomState()
	if err != nil {
		return nil, err
	}

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	// Only the first redirect counts; later ones must not block their handler.
	report := func(r result) {
		select {
		case done <- r:
		default:
		}
	}
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			switch {
			case q.Get("state") != state:
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			case q.Get("error") != "":
				fmt.Fprintln(w, "Authorization was denied. You can close this tab.")
				report(result{err: fmt.Errorf("consent denied: %s", q.Get("error"))})
			default:
				fmt.Fprintln(w, "Authorization complete. You can close this tab.")
				report(result{code: q.Get("code")})
			}
		}),
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(result{err: err})
		}
	}()
	defer srv.Close()

	// Prompt consent so a refresh token is issued even on repeat grants.
	show(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var res result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("no redirect received: %w", ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, errors.New("no refresh token issued; revoke the app's access and retry")
	}
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("cannot generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
