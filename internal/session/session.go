// Package session persists the bearer token obtained at login. The token is
// stored as an oauth2.Token in a JSON file alongside a little cached account
// metadata, and is written atomically with owner-only permissions.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// FilePerms restricts session files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the session directory.
const DirPerms = 0o700

// Errors returned when no usable session exists.
var (
	ErrNotLoggedIn    = errors.New("session: not logged in")
	ErrSessionExpired = errors.New("session: token expired")
)

// Metadata keys cached with the token.
const (
	MetaEmail  = "email"
	MetaServer = "server_url"
)

// File is the on-disk format for session files.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// NewToken wraps a bearer token returned by the backend. Its expiry comes
// from the JWT "exp" claim when the token is a JWT; signatures are not
// checked because only the backend can verify them.
func NewToken(raw string) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}

	if exp, ok := jwtExpiry(raw); ok {
		tok.Expiry = exp
	}

	return tok
}

// Claims returns the unverified JWT claims of a bearer token, or nil when
// the token is not a JWT.
func Claims(raw string) jwt.MapClaims {
	claims := jwt.MapClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil
	}

	return claims
}

func jwtExpiry(raw string) (time.Time, bool) {
	claims := Claims(raw)
	if claims == nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// Load reads a session file. Returns (nil, nil, nil) if the file does not exist.
func Load(path string) (*oauth2.Token, map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("session: reading %s: %w", path, err)
	}

	var sf File
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, nil, fmt.Errorf("session: decoding %s: %w", path, err)
	}

	if sf.Token == nil || sf.Token.AccessToken == "" {
		return nil, nil, fmt.Errorf("session: %s missing token field (re-login required)", path)
	}

	return sf.Token, sf.Meta, nil
}

// Save writes a session file atomically (write-to-temp + rename) with 0600
// permissions. Never logs token values.
func Save(path string, tok *oauth2.Token, meta map[string]string) error {
	sf := File{Token: tok, Meta: meta}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("session: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("session: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("session: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("session: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the session file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: removing %s: %w", path, err)
	}

	return nil
}

// TokenSource serves a stored token to the API client.
type TokenSource struct {
	tok *oauth2.Token
	now func() time.Time
}

// FromPath loads the session at path. Missing sessions yield ErrNotLoggedIn
// and expired ones ErrSessionExpired.
func FromPath(path string) (*TokenSource, error) {
	tok, _, err := Load(path)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	ts := &TokenSource{tok: tok, now: time.Now}
	if ts.expired() {
		return nil, ErrSessionExpired
	}

	return ts, nil
}

func (ts *TokenSource) expired() bool {
	return !ts.tok.Expiry.IsZero() && !ts.now().Before(ts.tok.Expiry)
}

// Token returns the bearer token, or ErrSessionExpired once it has expired.
func (ts *TokenSource) Token() (string, error) {
	if ts.expired() {
		return "", ErrSessionExpired
	}

	return ts.tok.AccessToken, nil
}

// Expiry returns the token's expiry; zero when unknown.
func (ts *TokenSource) Expiry() time.Time {
	return ts.tok.Expiry
}
