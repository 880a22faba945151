package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// CredentialStore

func (r *PgRepository) Create(ctx context.Context, userID, email, passwordHash string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO credentials (user_id, email, password_hash, created_at)
		VALUES ($1, $2, $3, now())
	`, userID, email, passwordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	var c Credential
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, email, password_hash, created_at
		FROM credentials
		WHERE email = $1
	`, email).Scan(&c.UserID, &c.Email, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM credentials WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// ProfileDirectory

func profileTable(role Role) string {
	if role == RoleReceptionist {
		return "receptionists"
	}
	return "patients"
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var phone *string

	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Role, &phone, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if phone != nil {
		p.Phone = *phone
	}
	return &p, nil
}

func (r *PgRepository) getFrom(ctx context.Context, table, userID string) (*Profile, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, name, email, role, phone, created_at
		FROM %s
		WHERE id = $1
	`, table), userID)
	return scanProfile(row)
}

// Get looks the identifier up in patients first, then receptionists.
func (r *PgRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	p, err := r.getFrom(ctx, "patients", userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}
	return r.getFrom(ctx, "receptionists", userID)
}

func (r *PgRepository) GetPatient(ctx context.Context, userID string) (*Profile, error) {
	return r.getFrom(ctx, "patients", userID)
}

func (r *PgRepository) Put(ctx context.Context, p Profile) error {
	var phone *string
	if p.Phone != "" {
		phone = &p.Phone
	}

	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name, email, role, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, profileTable(p.Role)), p.ID, p.Name, p.Email, p.Role, phone)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}
