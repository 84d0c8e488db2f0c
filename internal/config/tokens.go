package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrTokenNotFound is returned when the token key is not in the tokens file.
var ErrTokenNotFound = errors.New("token key not found")

// ResolveToken returns the API token. An explicit github.token (for example
// from HARVESTER_GITHUB_TOKEN) wins; otherwise github.token_key is looked up
// in the header-less key,token CSV at github.tokens_file.
func (c Config) ResolveToken() (string, error) {
	if c.GitHub.Token != "" {
		return c.GitHub.Token, nil
	}
	if c.GitHub.TokenKey == "" {
		return "", errors.New("github.token or github.token_key is required")
	}
	return LookupToken(c.GitHub.TokensFile, c.GitHub.TokenKey)
}

// LookupToken finds key in a tokens file.
func LookupToken(path, key string) (string, error) {
	// #nosec G304 -- tokens path comes from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open tokens file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read tokens file: %w", err)
		}
		if len(row) < 2 {
			continue
		}
		if strings.TrimSpace(row[0]) == key {
			return strings.TrimSpace(row[1]), nil
		}
	}
	return "", fmt.Errorf("%w: %q in %s", ErrTokenNotFound, key, path)
}
