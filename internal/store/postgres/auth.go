package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/thiagoors/clinic-queue-system/internal/models"
	"github.com/thiagoors/clinic-queue-system/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

func (s *Store) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	var user models.User
	var passwordHash string
	var desk sql.NullString
	var sectorID sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, name, email, role, desk, sector_id, active, created_at, password_hash
		FROM users
		WHERE lower(email) = lower($1) AND active = TRUE
	`, input.Email)
	if err := row.Scan(&user.UserID, &user.Name, &user.Email, &user.Role, &desk, &sectorID, &user.Active, &user.CreatedAt, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{}, err
	}
	if desk.Valid {
		user.Desk = desk.String
	}
	user.SectorID = nullStringPtr(sectorID)

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(input.Password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}

	sessionID := uuid.NewString()
	expiresAt := time.Now().UTC().Add(sessionLifetime)
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at) VALUES ($1, $2, $3)
	`, sessionID, user.UserID, expiresAt); err != nil {
		return store.LoginResult{}, err
	}

	return store.LoginResult{SessionID: sessionID, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Principal, error) {
	var principal store.Principal
	var desk sql.NullString
	var sectorID sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT u.user_id, u.name, u.role, u.desk, u.sector_id
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW() AND u.active = TRUE
	`, sessionID)
	if err := row.Scan(&principal.UserID, &principal.Name, &principal.Role, &desk, &sectorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Principal{}, store.ErrSessionNotFound
		}
		return store.Principal{}, err
	}
	if desk.Valid {
		principal.Desk = desk.String
	}
	if sectorID.Valid {
		principal.SectorID = sectorID.String
	}
	return principal, nil
}
