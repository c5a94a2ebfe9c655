package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/digitaldrywood/opsboard/internal/apperr"
)

// Credentials parses a service account key or an authorized_user token into
// credentials for the given scopes. Token files written by older tooling
// (token, refresh_token, client_id, client_secret without a type field) are
// accepted as authorized_user.
func Credentials(ctx context.Context, credentialsJSON []byte, scopes ...string) (*google.Credentials, error) {
	if len(strings.TrimSpace(string(credentialsJSON))) == 0 {
		return nil, apperr.Configuration("google credentials are not configured")
	}

	normalized, err := normalizeCredentials(credentialsJSON)
	if err != nil {
		return nil, err
	}

	creds, err := google.CredentialsFromJSON(ctx, normalized, scopes...)
	if err != nil {
		return nil, apperr.Configuration("unable to parse google credentials: %v", err)
	}
	return creds, nil
}

type authorizedUser struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

func normalizeCredentials(b []byte) ([]byte, error) {
	var probe authorizedUser
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, apperr.Configuration("google credentials are not valid JSON: %v", err)
	}
	if probe.Type != "" || probe.RefreshToken == "" {
		return b, nil
	}
	return json.Marshal(authorizedUser{
		Type:         "authorized_user",
		ClientID:     probe.ClientID,
		ClientSecret: probe.ClientSecret,
		RefreshToken: probe.RefreshToken,
	})
}

// Auth runs the installed-app OAuth flow with a loopback callback.
type Auth struct {
	config *oauth2.Config
	out    io.Writer
	logger *slog.Logger
}

func NewAuth(clientSecretJSON []byte, redirectURL string, scopes ...string) (*Auth, error) {
	config, err := google.ConfigFromJSON(clientSecretJSON, scopes...)
	if err != nil {
		return nil, apperr.Configuration("unable to parse client secret file to config: %v", err)
	}

	// Set redirect URL from config
	config.RedirectURL = redirectURL

	return &Auth{
		config: config,
		out:    os.Stdout,
		logger: slog.Default(),
	}, nil
}

// AuthorizedUserJSON runs the browser flow and returns the resulting
// authorized_user credential, ready to be stored as a channel credential.
func (a *Auth) AuthorizedUserJSON(ctx context.Context) ([]byte, error) {
	tok, err := a.getTokenFromWeb(ctx)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		return nil, errors.New("no refresh token returned; revoke the app's access and try again")
	}
	return json.MarshalIndent(authorizedUser{
		Type:         "authorized_user",
		ClientID:     a.config.ClientID,
		ClientSecret: a.config.ClientSecret,
		RefreshToken: tok.RefreshToken,
	}, "", "  ")
}

func (a *Auth) getTokenFromWeb(ctx context.Context) (*oauth2.Token, error) {
	redirect, err := url.Parse(a.config.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, apperr.Configuration("invalid redirect URL %q", a.config.RedirectURL)
	}
	port := redirect.Port()
	if port == "" {
		port = "8080"
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	state := uuid.NewString()
	codes := make(chan string, 1)

	mux := http.NewServeMux()
	mux.Handle(path, callbackHandler(state, codes))
	server := &http.Server{
		Addr:              net.JoinHostPort("localhost", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("oauth callback server", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	// Consent is forced so Google issues a refresh token on every run.
	authURL := a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(a.out, "Opening browser for authentication...\n")
	fmt.Fprintf(a.out, "If browser doesn't open automatically, visit:\n%v\n", authURL)

	if err := openBrowser(authURL); err != nil {
		a.logger.Warn("failed to open browser", "error", err)
	}

	fmt.Fprintln(a.out, "Waiting for authentication...")
	var authCode string
	select {
	case authCode = <-codes:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := a.config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// callbackHandler accepts the first redirect carrying the expected state and
// forwards its code.
func callbackHandler(state string, codes chan<- string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "Error: state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Error: No authorization code received", http.StatusBadRequest)
			return
		}

		fmt.Fprint(w, `
			<html>
				<head><title>Authentication Successful</title></head>
				<body>
					<h1>Authentication Successful!</h1>
					<p>You can close this window and return to the terminal.</p>
				</body>
			</html>
		`)

		select {
		case codes <- code:
		default:
		}
	})
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}
