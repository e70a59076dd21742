package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"intradaySync/internal/domain"
	"intradaySync/internal/ports"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const csvMimeType = "text/csv"

// Client implements ports.BlobStore on Google Drive v3.
type Client struct {
	svc    *drive.Service
	logger ports.Logger
}

// Config holds configuration for the Drive adapter. One of CredentialsJSON,
// TokenJSON or HTTPClient must be provided.
type Config struct {
	CredentialsJSON string       // Service account key JSON
	TokenJSON       string       // OAuth user token JSON as printed by cmd/generate_token
	Endpoint        string       // API base URL override
	HTTPClient      *http.Client // Pre-authenticated client, bypasses credential parsing
	Logger          ports.Logger
}

// TokenFile is the OAuth token layout stored in the GDRIVE_TOKEN secret.
type TokenFile struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// New builds an authenticated Drive service. Credential problems are
// reported as ports.ErrAuthenticationFailed.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Drive client")
	}

	var opts []option.ClientOption
	switch {
	case cfg.HTTPClient != nil:
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	case cfg.TokenJSON != "":
		ts, err := tokenSource(ctx, cfg.TokenJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: GDRIVE_TOKEN: %w", ports.ErrAuthenticationFailed, err)
		}
		opts = append(opts, option.WithTokenSource(ts))
		cfg.Logger.Debug(ctx, "Drive client using OAuth user token")
	case cfg.CredentialsJSON != "":
		creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.CredentialsJSON), drive.DriveScope)
		if err != nil {
			return nil, fmt.Errorf("%w: GDRIVE_CREDENTIALS: %w", ports.ErrAuthenticationFailed, err)
		}
		opts = append(opts, option.WithCredentials(creds))
		cfg.Logger.Debug(ctx, "Drive client using service account credentials")
	default:
		return nil, fmt.Errorf("%w: neither GDRIVE_CREDENTIALS nor GDRIVE_TOKEN is set", ports.ErrAuthenticationFailed)
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Drive service: %w", ports.ErrAuthenticationFailed, err)
	}
	return &Client{svc: svc, logger: cfg.Logger}, nil
}

// NewTokenFile captures an authorized user token together with the client
// settings needed to refresh it.
func NewTokenFile(conf *oauth2.Config, tok *oauth2.Token) TokenFile {
	return TokenFile{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     conf.Endpoint.TokenURL,
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		Scopes:       conf.Scopes,
		Expiry:       tok.Expiry,
	}
}

func tokenSource(ctx context.Context, raw string) (oauth2.TokenSource, error) {
	var tf TokenFile
	if err := json.Unmarshal([]byte(raw), &tf); err != nil {
		return nil, fmt.Errorf("invalid token JSON: %w", err)
	}
	if tf.RefreshToken == "" && tf.Token == "" {
		return nil, errors.New("token JSON has neither token nor refresh_token")
	}
	tokenURL := tf.TokenURI
	if tokenURL == "" {
		tokenURL = google.Endpoint.TokenURL
	}
	scopes := tf.Scopes
	if len(scopes) == 0 {
		scopes = []string{drive.DriveScope}
	}
	conf := &oauth2.Config{
		ClientID:     tf.ClientID,
		ClientSecret: tf.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: google.Endpoint.AuthURL, TokenURL: tokenURL},
		Scopes:       scopes,
	}
	return conf.TokenSource(ctx, &oauth2.Token{
		AccessToken:  tf.Token,
		RefreshToken: tf.RefreshToken,
		Expiry:       tf.Expiry,
	}), nil
}

// Ping lists at most one file in folder, which fails on bad credentials or a
// folder the account cannot see.
func (c *Client) Ping(ctx context.Context, folder string) error {
	op := "Ping"
	res, err := c.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folder))).
		Fields("files(id)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, "Drive folder reachable", map[string]interface{}{"folderID": folder, "visibleFiles": len(res.Files)})
	return nil
}

// Find lists non-trashed files named exactly name inside folder.
func (c *Client) Find(ctx context.Context, folder, name string) ([]domain.BlobRef, error) {
	op := "Find"
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(folder))
	res, err := c.svc.Files.List().
		Q(q).
		Fields("files(id, name)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	refs := make([]domain.BlobRef, 0, len(res.Files))
	for _, f := range res.Files {
		refs = append(refs, domain.BlobRef{ID: f.Id, Name: f.Name})
	}
	return refs, nil
}

// Download streams the media of file id into w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) error {
	op := "Download"
	resp, err := c.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// Create uploads content as a new CSV file in folder and returns its id.
func (c *Client) Create(ctx context.Context, folder, name string, content io.Reader) (string, error) {
	op := "Create"
	meta := &drive.File{Name: name, Parents: []string{folder}, MimeType: csvMimeType}
	f, err := c.svc.Files.Create(meta).
		Media(content, googleapi.ContentType(csvMimeType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}
	return f.Id, nil
}

// Update replaces the content of file id in place.
func (c *Client) Update(ctx context.Context, id string, content io.Reader) error {
	op := "Update"
	_, err := c.svc.Files.Update(id, &drive.File{}).
		Media(content, googleapi.ContentType(csvMimeType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// handleError translates Drive and OAuth errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var mapped error
	var apiErr *googleapi.Error
	var retrieveErr *oauth2.RetrieveError
	var urlErr *url.Error
	switch {
	case errors.As(err, &apiErr):
		fields["status"] = apiErr.Code
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			mapped = ports.ErrAuthenticationFailed
		case apiErr.Code == http.StatusForbidden && isRateLimit(apiErr):
			mapped = ports.ErrRateLimited
		case apiErr.Code == http.StatusForbidden:
			mapped = ports.ErrPermissionDenied
		case apiErr.Code == http.StatusNotFound:
			mapped = ports.ErrNotFound
		case apiErr.Code == http.StatusTooManyRequests:
			mapped = ports.ErrRateLimited
		case apiErr.Code >= 500:
			mapped = ports.ErrRemoteUnavailable
		default:
			mapped = ports.ErrInvalidRequest
		}
	case errors.As(err, &retrieveErr):
		mapped = ports.ErrAuthenticationFailed
	case errors.Is(err, context.DeadlineExceeded):
		mapped = ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		mapped = ports.ErrContextCanceled
	case errors.As(err, &urlErr):
		mapped = ports.ErrRemoteUnavailable
	default:
		mapped = ports.ErrUnknown
	}

	c.logger.Debug(ctx, fmt.Sprintf("Drive %s failed", operation), fields)
	return fmt.Errorf("%s failed: %w: %w", operation, mapped, err)
}

func isRateLimit(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if strings.Contains(item.Reason, "RateLimitExceeded") || item.Reason == "rateLimitExceeded" {
			return true
		}
	}
	return false
}

// escapeQuery escapes a string literal for the Drive search query language.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
