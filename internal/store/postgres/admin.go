package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/thiagoors/clinic-queue-system/internal/models"
	"github.com/thiagoors/clinic-queue-system/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

func (s *Store) ListSectors(ctx context.Context, activeOnly bool) ([]models.Sector, error) {
	query := `
		SELECT sector_id, name, room, type, active, created_at
		FROM sectors
	`
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	query += " ORDER BY name ASC"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sectors []models.Sector
	for rows.Next() {
		var sector models.Sector
		if err := rows.Scan(&sector.SectorID, &sector.Name, &sector.Room, &sector.Type, &sector.Active, &sector.CreatedAt); err != nil {
			return nil, err
		}
		sectors = append(sectors, sector)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sectors, nil
}

func (s *Store) GetSector(ctx context.Context, sectorID string) (models.Sector, error) {
	var sector models.Sector
	row := s.pool.QueryRow(ctx, `
		SELECT sector_id, name, room, type, active, created_at
		FROM sectors
		WHERE sector_id = $1
	`, sectorID)
	if err := row.Scan(&sector.SectorID, &sector.Name, &sector.Room, &sector.Type, &sector.Active, &sector.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Sector{}, store.ErrSectorNotFound
		}
		return models.Sector{}, err
	}
	return sector, nil
}

func (s *Store) CreateSector(ctx context.Context, input store.CreateSectorInput) (models.Sector, error) {
	sectorType := input.Type
	if sectorType == "" {
		sectorType = models.CategoryConsultation
	}
	var sector models.Sector
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sectors (sector_id, name, room, type, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING sector_id, name, room, type, active, created_at
	`, uuid.NewString(), input.Name, input.Room, sectorType)
	if err := row.Scan(&sector.SectorID, &sector.Name, &sector.Room, &sector.Type, &sector.Active, &sector.CreatedAt); err != nil {
		return models.Sector{}, err
	}
	return sector, nil
}

func (s *Store) UpdateSector(ctx context.Context, sectorID string, input store.UpdateSectorInput) (models.Sector, error) {
	sets := []string{}
	args := []any{sectorID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if input.Name != nil {
		add("name", *input.Name)
	}
	if input.Room != nil {
		add("room", *input.Room)
	}
	if input.Type != nil {
		add("type", *input.Type)
	}
	if input.Active != nil {
		add("active", *input.Active)
	}
	if len(sets) == 0 {
		return s.GetSector(ctx, sectorID)
	}

	var sector models.Sector
	row := s.pool.QueryRow(ctx, `
		UPDATE sectors SET `+strings.Join(sets, ", ")+`
		WHERE sector_id = $1
		RETURNING sector_id, name, room, type, active, created_at
	`, args...)
	if err := row.Scan(&sector.SectorID, &sector.Name, &sector.Room, &sector.Type, &sector.Active, &sector.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Sector{}, store.ErrSectorNotFound
		}
		return models.Sector{}, err
	}
	return sector, nil
}

func (s *Store) DeactivateSector(ctx context.Context, sectorID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sectors SET active = FALSE WHERE sector_id = $1
	`, sectorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSectorNotFound
	}
	return nil
}

const userColumns = `user_id, name, email, role, desk, sector_id, active, created_at`

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	var desk sql.NullString
	var sectorID sql.NullString
	if err := row.Scan(&user.UserID, &user.Name, &user.Email, &user.Role, &desk, &sectorID, &user.Active, &user.CreatedAt); err != nil {
		return models.User{}, err
	}
	if desk.Valid {
		user.Desk = desk.String
	}
	user.SectorID = nullStringPtr(sectorID)
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, role string, activeOnly bool) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []any
	if role != "" {
		args = append(args, role)
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if activeOnly {
		query += " AND active = TRUE"
	}
	query += " ORDER BY name ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	role := input.Role
	if role == "" {
		role = models.RoleReceptionist
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, name, email, password_hash, role, desk, sector_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING `+userColumns+`
	`, uuid.NewString(), input.Name, input.Email, string(hash), role, nullIfEmpty(input.Desk), nullIfEmpty(input.SectorID))
	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, store.ErrEmailTaken
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, input store.UpdateUserInput) (models.User, error) {
	sets := []string{}
	args := []any{userID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if input.Name != nil {
		add("name", *input.Name)
	}
	if input.Email != nil {
		add("email", *input.Email)
	}
	if input.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return models.User{}, err
		}
		add("password_hash", string(hash))
	}
	if input.Role != nil {
		add("role", *input.Role)
	}
	if input.Desk != nil {
		add("desk", nullIfEmpty(*input.Desk))
	}
	if input.SectorID != nil {
		add("sector_id", nullIfEmpty(*input.SectorID))
	}
	if input.Active != nil {
		add("active", *input.Active)
	}
	if len(sets) == 0 {
		return s.GetUser(ctx, userID)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE users SET `+strings.Join(sets, ", ")+`
		WHERE user_id = $1
		RETURNING `+userColumns+`
	`, args...)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return models.User{}, store.ErrEmailTaken
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) DeactivateUser(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET active = FALSE WHERE user_id = $1
	`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
