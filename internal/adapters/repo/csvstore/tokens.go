package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bnema/mxload/internal/domain"
	"github.com/bnema/mxload/internal/ports"
)

const (
	tokensFileMode  = 0o600
	tokensDirMode   = 0o700
	tempFilePattern = ".tokens-*.csv.tmp"
)

var tokensHeader = []string{"username", "user_id", "access_token", "sync_token"}

// TokenFile persists the credential registry as tokens.csv. Reads tolerate
// a missing file; writes replace the file in full, sorted by username,
// through a temp file plus rename so a crash never leaves a partial
// registry behind.
type TokenFile struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.TokenStore = (*TokenFile)(nil)

func NewTokenFile(path string) (*TokenFile, error) {
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	return &TokenFile{path: path, mu: lockForPath(path)}, nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (t *TokenFile) Load(ctx context.Context) (map[string]domain.TokenUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	file, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]domain.TokenUpdate{}, nil
		}
		return nil, fmt.Errorf("open tokens file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(tokensHeader)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read tokens file: %w", err)
	}

	tokens := make(map[string]domain.TokenUpdate, len(records))
	for i, record := range records {
		if i == 0 && record[0] == tokensHeader[0] {
			continue
		}
		cred := domain.Credential{
			Username:    record[0],
			UserID:      record[1],
			AccessToken: record[2],
			SyncToken:   record[3],
		}
		cred.Normalize()
		if cred.Username == "" {
			continue
		}
		tokens[cred.Username] = domain.TokenUpdate{
			Username:    cred.Username,
			UserID:      cred.UserID,
			AccessToken: cred.AccessToken,
			SyncToken:   cred.SyncToken,
		}
	}

	return tokens, nil
}

func (t *TokenFile) Write(ctx context.Context, tokens map[string]domain.TokenUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	usernames := make([]string, 0, len(tokens))
	for username := range tokens {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	if err := os.MkdirAll(filepath.Dir(t.path), tokensDirMode); err != nil {
		return fmt.Errorf("create tokens directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(t.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp tokens file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	writer := csv.NewWriter(tempFile)
	if err := writer.Write(tokensHeader); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write tokens header: %w", err)
	}
	for _, username := range usernames {
		update := tokens[username]
		record := []string{update.Username, update.UserID, update.AccessToken, update.SyncToken}
		if err := writer.Write(record); err != nil {
			_ = tempFile.Close()
			return fmt.Errorf("write tokens record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("flush tokens file: %w", err)
	}

	if err := tempFile.Chmod(tokensFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp tokens file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp tokens file: %w", err)
	}

	if err := os.Rename(tempName, t.path); err != nil {
		return fmt.Errorf("replace tokens file: %w", err)
	}
	cleanup = false

	if err := os.Chmod(t.path, tokensFileMode); err != nil {
		return fmt.Errorf("chmod tokens file: %w", err)
	}

	return nil
}
