package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bnema/mxload/internal/domain"
	"github.com/bnema/mxload/internal/ports"
)

// RosterFile reads the users.csv roster: a header row followed by
// username,password records, in test order.
type RosterFile struct {
	path string
}

var _ ports.RosterSource = (*RosterFile)(nil)

func NewRosterFile(path string) (*RosterFile, error) {
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	return &RosterFile{path: path}, nil
}

func (r *RosterFile) Load(ctx context.Context) ([]domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open roster file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read roster header: %w", err)
	}
	if header[0] != "username" || header[1] != "password" {
		return nil, fmt.Errorf("unexpected roster header %v", header)
	}

	var roster []domain.Credential
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster record: %w", err)
		}
		roster = append(roster, domain.Credential{
			Username: record[0],
			Password: record[1],
		})
	}

	return roster, nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	return filepath.Clean(absPath), nil
}
