// internal/state/sqlite.go
//
// SQLite Persister. The snapshot remains one logical record: Save replaces
// the chats and used_words tables inside a single transaction, matching the
// whole-record rewrite semantics of the file backend while keeping the data
// queryable for the ops surface.

package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/UltimatePolymath/word/internal/game"
)

// SQLitePersister persists the snapshot into the chats/used_words tables.
// Schema is applied by the root-level migration runner (sql/001_init.sql).
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister wraps an opened database handle.
func NewSQLitePersister(db *sql.DB) *SQLitePersister {
	return &SQLitePersister{db: db}
}

// Load reads all chats and used words.
func (p *SQLitePersister) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{UsedWords: map[int64][]string{}}

	rows, err := p.db.QueryContext(ctx,
		`SELECT chat_id, alias, display_name, strategy, enabled_at FROM chats`)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c ChatConfig
		var strat, enabled string
		if err := rows.Scan(&c.ChatID, &c.Alias, &c.DisplayName, &strat, &enabled); err != nil {
			return nil, err
		}
		c.Strategy = game.Strategy(strat)
		c.EnabledAt, _ = time.Parse(time.RFC3339, enabled)
		snap.Chats = append(snap.Chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	wrows, err := p.db.QueryContext(ctx, `SELECT chat_id, word FROM used_words`)
	if err != nil {
		return nil, fmt.Errorf("load used words: %w", err)
	}
	defer wrows.Close()
	for wrows.Next() {
		var id int64
		var w string
		if err := wrows.Scan(&id, &w); err != nil {
			return nil, err
		}
		snap.UsedWords[id] = append(snap.UsedWords[id], w)
	}
	return snap, wrows.Err()
}

// Save replaces both tables with the snapshot's contents in one transaction.
func (p *SQLitePersister) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM used_words`); err != nil {
		return fmt.Errorf("clear used_words: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats`); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}
	for _, c := range snap.Chats {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO chats (chat_id, alias, display_name, strategy, enabled_at)
            VALUES (?,?,?,?,?)`,
			c.ChatID, c.Alias, c.DisplayName, string(c.Strategy),
			c.EnabledAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("insert chat %d: %w", c.ChatID, err)
		}
	}
	for id, list := range snap.UsedWords {
		for _, w := range list {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO used_words (chat_id, word) VALUES (?,?)`, id, w); err != nil {
				return fmt.Errorf("insert used word: %w", err)
			}
		}
	}
	return tx.Commit()
}
