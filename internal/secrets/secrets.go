// Package secrets resolves channel credentials — stream keys, ingest
// auth, bearer tokens for output.auth_token_url destinations — from
// either a local file or a Google Storage bucket named by a
// per-channel environment variable, and mints a refreshable OAuth2
// token source for config.Output.AuthTokenURL. Grounded on
// github.com/ausocean/utils gauth's GetSecrets/ReadGoogleStorageBucket
// and SmartTokenSource.
package secrets

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ausocean/utils/filemap"
)

const gsbScheme = "gs://"

// Lookup returns the secrets for channel from either a file or Google
// Storage bucket named by the <CHANNEL>_SECRETS environment variable
// (upper-cased, spaces/hyphens folded to underscores so "cam one"
// and "cam-one" agree on the same variable). Each line of the
// referenced resource is a colon-separated key:value pair. keys names
// the entries that must be present; a missing one is an error.
func Lookup(ctx context.Context, channel string, keys []string) (map[string]string, error) {
	ev := envName(channel)
	url := os.Getenv(ev)
	if url == "" {
		return nil, fmt.Errorf("secrets: %s environment variable not defined", ev)
	}

	var raw []byte
	var err error
	if strings.HasPrefix(url, gsbScheme) {
		raw, err = readBucket(ctx, url)
	} else {
		raw, err = os.ReadFile(url)
	}
	if err != nil {
		return nil, err
	}

	s := strings.ReplaceAll(string(raw), "\r", "")
	m := filemap.Split(s, "\n", ":")
	for _, k := range keys {
		if m[k] == "" {
			return m, fmt.Errorf("secrets: missing key %s", k)
		}
	}
	return m, nil
}

// One gets a single secret for channel.
func One(ctx context.Context, channel, key string) (string, error) {
	m, err := Lookup(ctx, channel, []string{key})
	if err != nil {
		return "", err
	}
	return m[key], nil
}

// HexSecret gets a single hex-encoded secret and returns the decoded
// bytes, used for e.g. text.bus_jwt_key material.
func HexSecret(ctx context.Context, channel, key string) ([]byte, error) {
	v, err := One(ctx, channel, key)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(v)
}

// envName derives the <CHANNEL>_SECRETS environment variable name
// from a channel identifier.
func envName(channel string) string {
	up := strings.ToUpper(channel)
	up = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, up)
	return up + "_SECRETS"
}

func readBucket(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, gsbScheme) {
		return nil, fmt.Errorf("secrets: invalid bucket URL %s", url)
	}
	rest := url[len(gsbScheme):]
	sep := strings.IndexByte(rest, '/')
	if sep == -1 {
		return nil, fmt.Errorf("secrets: invalid bucket URL %s", url)
	}

	clt, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: cannot create bucket client: %w", err)
	}
	defer clt.Close()

	r, err := clt.Bucket(rest[:sep]).Object(rest[sep+1:]).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: cannot create bucket reader: %w", err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("secrets: cannot read bucket object: %w", err)
	}
	return b, nil
}

// RefreshNotifyFunc is called whenever TokenSource mints a fresh
// access token, so the caller can e.g. log the rotation.
type RefreshNotifyFunc func(*oauth2.Token) error

// TokenSource wraps an oauth2.TokenSource, calling notify whenever the
// underlying token is actually refreshed (not merely reused from
// cache). Nothing in the player loop uses it; the encoder's environment
// carries no bearer token.
type TokenSource struct {
	src    oauth2.TokenSource
	notify RefreshNotifyFunc
	curr   *oauth2.Token
}

// NewTokenSource builds a TokenSource for tokenURL using the client
// credentials grant, with clientID/clientSecret resolved from the
// channel's secret store (keys "oauth_client_id"/"oauth_client_secret").
// notify may be nil.
func NewTokenSource(ctx context.Context, channel, tokenURL string, notify RefreshNotifyFunc) (*TokenSource, error) {
	m, err := Lookup(ctx, channel, []string{"oauth_client_id", "oauth_client_secret"})
	if err != nil {
		return nil, err
	}
	cfg := &clientcredentials.Config{
		ClientID:     m["oauth_client_id"],
		ClientSecret: m["oauth_client_secret"],
		TokenURL:     tokenURL,
	}
	return &TokenSource{src: cfg.TokenSource(ctx), notify: notify}, nil
}

// Token returns a valid access token, invoking notify the first time
// a token is minted and again on every subsequent refresh.
func (s *TokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.curr == nil || s.curr.AccessToken != tok.AccessToken {
		s.curr = tok
		if s.notify != nil {
			if err := s.notify(s.curr); err != nil {
				return s.curr, nil //nolint:nilerr // token is still valid; notify failure doesn't invalidate it
			}
		}
	}
	return s.curr, nil
}
