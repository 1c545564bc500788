package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/volunteerd/internal/model"
)

type VolunteerStore struct {
	db *sql.DB
}

func NewVolunteerStore(db *sql.DB) *VolunteerStore {
	return &VolunteerStore{db: db}
}

func (s *VolunteerStore) Create(ctx context.Context, name, email string) (*model.Volunteer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", model.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO volunteers (name, email) VALUES (?, ?)`, name, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("insert volunteer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *VolunteerStore) GetByID(ctx context.Context, id int64) (*model.Volunteer, error) {
	var v model.Volunteer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at FROM volunteers WHERE id = ?`, id,
	).Scan(&v.ID, &v.Name, &v.Email, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("volunteer %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query volunteer: %w", err)
	}
	return &v, nil
}

func (s *VolunteerStore) List(ctx context.Context) ([]model.Volunteer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, created_at FROM volunteers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list volunteers: %w", err)
	}
	defer rows.Close()

	list := []model.Volunteer{}
	for rows.Next() {
		var v model.Volunteer
		if err := rows.Scan(&v.ID, &v.Name, &v.Email, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan volunteer: %w", err)
		}
		list = append(list, v)
	}
	return list, rows.Err()
}
