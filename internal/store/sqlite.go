package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"
)

// ErrNoToken is returned by LoadToken when no token is cached for an account.
var ErrNoToken = errors.New("no cached token")

// SQLiteStore caches OAuth tokens in a local SQLite database. It only ever
// holds credentials; scan results are not persisted.
type SQLiteStore struct {
	db *sqlx.DB
}

type tokenRow struct {
	Account      string `db:"account"`
	AccessToken  string `db:"access_token"`
	TokenType    string `db:"token_type"`
	RefreshToken string `db:"refresh_token"`
	Expiry       string `db:"expiry_rfc3339"`
	UpdatedAt    string `db:"updated_at"`
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sqlx.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	account        TEXT PRIMARY KEY,
	access_token   TEXT NOT NULL,
	token_type     TEXT NOT NULL DEFAULT '',
	refresh_token  TEXT NOT NULL DEFAULT '',
	expiry_rfc3339 TEXT NOT NULL DEFAULT '',
	updated_at     TEXT NOT NULL DEFAULT ''
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadToken returns the cached token for account, or ErrNoToken.
func (s *SQLiteStore) LoadToken(ctx context.Context, account string) (*oauth2.Token, error) {
	var row tokenRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM tokens WHERE account = ?", account)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  row.AccessToken,
		TokenType:    row.TokenType,
		RefreshToken: row.RefreshToken,
	}
	if row.Expiry != "" {
		exp, err := time.Parse(time.RFC3339Nano, row.Expiry)
		if err != nil {
			return nil, fmt.Errorf("parse token expiry %q: %w", row.Expiry, err)
		}
		tok.Expiry = exp
	}
	return tok, nil
}

// SaveToken inserts or replaces the token for account. A refreshed token
// without a refresh token keeps the stored one.
func (s *SQLiteStore) SaveToken(ctx context.Context, account string, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("save token: nil token")
	}
	row := tokenRow{
		Account:      account,
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if !tok.Expiry.IsZero() {
		row.Expiry = tok.Expiry.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tokens (account, access_token, token_type, refresh_token, expiry_rfc3339, updated_at)
		VALUES (:account, :access_token, :token_type, :refresh_token, :expiry_rfc3339, :updated_at)
		ON CONFLICT(account) DO UPDATE SET
			access_token   = excluded.access_token,
			token_type     = excluded.token_type,
			refresh_token  = CASE WHEN excluded.refresh_token = '' THEN tokens.refresh_token ELSE excluded.refresh_token END,
			expiry_rfc3339 = excluded.expiry_rfc3339,
			updated_at     = excluded.updated_at
	`, row)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// DeleteToken forgets the token for account. Deleting a missing token is not an error.
func (s *SQLiteStore) DeleteToken(ctx context.Context, account string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE account = ?", account); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
