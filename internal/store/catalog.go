package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/volunteerd/internal/model"
)

// TagStore manages one catalog table of named tags. Skills and interests
// share the same shape and differ only by table.
type TagStore struct {
	db    *sql.DB
	table string
}

func NewSkillStore(db *sql.DB) *TagStore {
	return &TagStore{db: db, table: "skills"}
}

func NewInterestStore(db *sql.DB) *TagStore {
	return &TagStore{db: db, table: "interests"}
}

// Create adds a tag. Names are unique; creating an existing name returns
// the existing tag.
func (s *TagStore) Create(ctx context.Context, name string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", model.ErrInvalidInput)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name,
	); err != nil {
		return nil, fmt.Errorf("insert %s: %w", s.table, err)
	}

	var t model.Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM `+s.table+` WHERE name = ?`, name,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	return &t, nil
}

func (s *TagStore) GetByID(ctx context.Context, id int64) (*model.Tag, error) {
	var t model.Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM `+s.table+` WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %d: %w", s.table, id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	return &t, nil
}

func (s *TagStore) List(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM `+s.table+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.table, err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// Exist checks that every id names a tag, returning model.ErrInvalidInput
// for the first one that does not.
func (s *TagStore) Exist(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.GetByID(ctx, id); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("%w: unknown %s id %d", model.ErrInvalidInput, s.table, id)
			}
			return err
		}
	}
	return nil
}

// Delete removes the tag and detaches it from every opportunity.
func (s *TagStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+s.joinTable()+` WHERE `+s.joinColumn()+` = ?`, id); err != nil {
		return fmt.Errorf("detach %s: %w", s.table, err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", s.table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", s.table, id, model.ErrNotFound)
	}
	return tx.Commit()
}

func (s *TagStore) joinTable() string {
	return "opportunity_" + s.table
}

func (s *TagStore) joinColumn() string {
	return strings.TrimSuffix(s.table, "s") + "_id"
}
