package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thiagoors/clinic-queue-system/internal/models"
	"github.com/thiagoors/clinic-queue-system/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ticketNumberPad = 3
	allocAttempts   = 3
	sessionLifetime = 8 * time.Hour
	defaultDesk     = "Guichê 1"
)

type Store struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

type Options struct {
	// Location decides when the ticket day rolls over. Defaults to UTC.
	Location *time.Location
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	loc := options.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Store{pool: pool, loc: loc}
}

// dayStart truncates t to midnight in the clinic's time zone. All per-day
// state (counters, stats, the calls feed) is keyed off this boundary.
func (s *Store) dayStart(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

const ticketColumns = `ticket_id, ticket_number, category, identity_fragment, patient_name, status, sector_id, called_by, created_at, called_at, forwarded_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (models.Ticket, error) {
	var ticket models.Ticket
	var patientName sql.NullString
	var sectorID sql.NullString
	var calledBy sql.NullString
	var calledAt sql.NullTime
	var forwardedAt sql.NullTime
	var completedAt sql.NullTime
	if err := row.Scan(&ticket.TicketID, &ticket.TicketNumber, &ticket.Category, &ticket.IdentityFragment, &patientName, &ticket.Status, &sectorID, &calledBy, &ticket.CreatedAt, &calledAt, &forwardedAt, &completedAt); err != nil {
		return models.Ticket{}, err
	}
	if patientName.Valid {
		ticket.PatientName = patientName.String
	}
	ticket.SectorID = nullStringPtr(sectorID)
	ticket.CalledBy = nullStringPtr(calledBy)
	ticket.CalledAt = nullTimePtr(calledAt)
	ticket.ForwardedAt = nullTimePtr(forwardedAt)
	ticket.CompletedAt = nullTimePtr(completedAt)
	return ticket, nil
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var lastErr error
	for attempt := 0; attempt < allocAttempts; attempt++ {
		ticket, err := s.createTicketOnce(ctx, input, createdAt)
		if err == nil {
			return ticket, nil
		}
		if !isSerializationFailure(err) {
			return models.Ticket{}, err
		}
		lastErr = err
	}
	return models.Ticket{}, fmt.Errorf("%w: %v", store.ErrAllocationFailed, lastErr)
}

func (s *Store) createTicketOnce(ctx context.Context, input store.CreateTicketInput, createdAt time.Time) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	day := s.dayStart(createdAt)
	seq, err := nextTicketNumber(ctx, tx, day, input.Category)
	if err != nil {
		return models.Ticket{}, err
	}
	formattedNumber := fmt.Sprintf("%s%0*d", models.TicketPrefix(input.Category), ticketNumberPad, seq)

	// The ticket stores the same day the counter was keyed on, so the unique
	// index on (ticket_number, day) follows the clinic's rollover, not the
	// session time zone.
	var ticket models.Ticket
	row := tx.QueryRow(ctx, `
		INSERT INTO tickets (ticket_id, ticket_number, category, identity_fragment, status, day, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+ticketColumns+`
	`, uuid.NewString(), formattedNumber, input.Category, input.IdentityFragment, models.StatusWaitingReception, day, createdAt)
	if ticket, err = scanTicket(row); err != nil {
		return models.Ticket{}, err
	}

	if err = insertTicketEvent(ctx, tx, store.EventTicketCreated, store.ChannelReception, ticket); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// nextTicketNumber is the sequence allocator: one atomic read-modify-write per
// (day, category), so concurrent creations can never observe the same value.
func nextTicketNumber(ctx context.Context, tx pgx.Tx, day time.Time, category string) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO daily_counters (day, category, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (day, category)
		DO UPDATE SET last_number = daily_counters.last_number + 1
		RETURNING last_number
	`, day, category)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected, 23505 covers a
	// lost race on the per-day unique ticket number.
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return true
	default:
		return false
	}
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1
	`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CallTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, models.Call, error) {
	if !store.RoleAllowed(store.ActionCall, input.Caller.Role) {
		return models.Ticket{}, models.Call{}, store.ErrForbidden
	}
	calledAt := occurredAt(input.OccurredAt)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, models.Call{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = $1, called_by = $2, called_at = $3
		WHERE ticket_id = $4 AND status = $5
		RETURNING `+ticketColumns+`
	`, models.StatusInReception, input.Caller.UserID, calledAt, input.TicketID, models.StatusWaitingReception)
	var ticket models.Ticket
	if ticket, err = scanTicket(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.classifyMissedUpdate(ctx, tx, input.TicketID)
		}
		return models.Ticket{}, models.Call{}, err
	}

	desk := input.Caller.Desk
	if desk == "" {
		desk = defaultDesk
	}
	call := models.Call{
		CallID:     uuid.NewString(),
		TicketID:   ticket.TicketID,
		UserID:     input.Caller.UserID,
		Message:    fmt.Sprintf("Senha %s - CPF %s***", ticket.TicketNumber, ticket.IdentityFragment),
		Type:       models.CallTypeReception,
		Desk:       desk,
		CreatedAt:  calledAt,
		CallerName: input.Caller.Name,
	}
	if err = insertCall(ctx, tx, call); err != nil {
		return models.Ticket{}, models.Call{}, err
	}

	if err = insertCallEvent(ctx, tx, store.EventCallReception, store.ChannelDisplay, call, ticket); err != nil {
		return models.Ticket{}, models.Call{}, err
	}
	if err = insertTicketEvent(ctx, tx, store.EventTicketUpdated, store.ChannelBroadcast, ticket); err != nil {
		return models.Ticket{}, models.Call{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, models.Call{}, err
	}
	return ticket, call, nil
}

func (s *Store) ForwardTicket(ctx context.Context, input store.ForwardInput) (models.Ticket, error) {
	if !store.RoleAllowed(store.ActionForward, input.Caller.Role) {
		return models.Ticket{}, store.ErrForbidden
	}
	forwardedAt := occurredAt(input.OccurredAt)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	sector, err := activeSector(ctx, tx, input.SectorID)
	if err != nil {
		return models.Ticket{}, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = $1, sector_id = $2, patient_name = $3, forwarded_at = $4
		WHERE ticket_id = $5 AND status = $6
		RETURNING `+ticketColumns+`
	`, models.StatusWaitingSector, sector.SectorID, input.PatientName, forwardedAt, input.TicketID, models.StatusInReception)
	var ticket models.Ticket
	if ticket, err = scanTicket(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.classifyMissedUpdate(ctx, tx, input.TicketID)
		}
		return models.Ticket{}, err
	}
	ticket.SectorName = sector.Name

	if err = insertTicketEvent(ctx, tx, store.EventTicketForwarded, store.SectorChannel(sector.SectorID), ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = insertTicketEvent(ctx, tx, store.EventTicketUpdated, store.ChannelReception, ticket); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CallSector(ctx context.Context, input store.TransitionInput) (models.Ticket, models.Call, error) {
	if !store.RoleAllowed(store.ActionCallSector, input.Caller.Role) {
		return models.Ticket{}, models.Call{}, store.ErrForbidden
	}
	calledAt := occurredAt(input.OccurredAt)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, models.Call{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock the row first: the sector-ownership check must reject a doctor
	// from another sector before the state is touched.
	var status string
	var sectorID sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT status, sector_id FROM tickets WHERE ticket_id = $1 FOR UPDATE
	`, input.TicketID)
	if err = row.Scan(&status, &sectorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, models.Call{}, err
	}
	if input.Caller.Role != models.RoleAdmin {
		if !sectorID.Valid || input.Caller.SectorID == "" || input.Caller.SectorID != sectorID.String {
			err = store.ErrForbidden
			return models.Ticket{}, models.Call{}, err
		}
	}
	if !store.ValidTransition(store.ActionCallSector, status) {
		err = store.ErrInvalidTransition
		return models.Ticket{}, models.Call{}, err
	}

	row = tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = $1, called_by = $2, called_at = $3
		WHERE ticket_id = $4
		RETURNING `+ticketColumns+`
	`, models.StatusInSector, input.Caller.UserID, calledAt, input.TicketID)
	var ticket models.Ticket
	if ticket, err = scanTicket(row); err != nil {
		return models.Ticket{}, models.Call{}, err
	}

	var sector models.Sector
	if sector, err = getSector(ctx, tx, sectorID.String); err != nil {
		return models.Ticket{}, models.Call{}, err
	}
	ticket.SectorName = sector.Name

	call := models.Call{
		CallID:     uuid.NewString(),
		TicketID:   ticket.TicketID,
		UserID:     input.Caller.UserID,
		Message:    fmt.Sprintf("%s - %s", ticket.PatientName, sector.Name),
		Type:       models.CallTypeSector,
		Room:       sector.Room,
		CreatedAt:  calledAt,
		CallerName: input.Caller.Name,
	}
	if err = insertCall(ctx, tx, call); err != nil {
		return models.Ticket{}, models.Call{}, err
	}

	if err = insertCallEvent(ctx, tx, store.EventCallSector, store.ChannelDisplay, call, ticket); err != nil {
		return models.Ticket{}, models.Call{}, err
	}
	if err = insertTicketEvent(ctx, tx, store.EventTicketUpdated, store.ChannelBroadcast, ticket); err != nil {
		return models.Ticket{}, models.Call{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, models.Call{}, err
	}
	return ticket, call, nil
}

func (s *Store) CompleteTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	if !store.RoleAllowed(store.ActionComplete, input.Caller.Role) {
		return models.Ticket{}, store.ErrForbidden
	}
	return s.applyTerminal(ctx, input, store.ActionComplete, models.StatusCompleted, store.EventTicketCompleted)
}

func (s *Store) CancelTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	if !store.RoleAllowed(store.ActionCancel, input.Caller.Role) {
		return models.Ticket{}, store.ErrForbidden
	}
	return s.applyTerminal(ctx, input, store.ActionCancel, models.StatusCancelled, store.EventTicketUpdated)
}

func (s *Store) applyTerminal(ctx context.Context, input store.TransitionInput, action, toStatus, eventType string) (models.Ticket, error) {
	at := occurredAt(input.OccurredAt)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		UPDATE tickets
		SET status = $1
		WHERE ticket_id = $2 AND status = ANY($3)
		RETURNING ` + ticketColumns
	if action == store.ActionComplete {
		query = `
		UPDATE tickets
		SET status = $1, completed_at = $4
		WHERE ticket_id = $2 AND status = ANY($3)
		RETURNING ` + ticketColumns
	}

	args := []any{toStatus, input.TicketID, store.SourceStatuses(action)}
	if action == store.ActionComplete {
		args = append(args, at)
	}
	row := tx.QueryRow(ctx, query, args...)
	var ticket models.Ticket
	if ticket, err = scanTicket(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.classifyMissedUpdate(ctx, tx, input.TicketID)
		}
		return models.Ticket{}, err
	}

	if err = insertTicketEvent(ctx, tx, eventType, store.ChannelBroadcast, ticket); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// classifyMissedUpdate tells a missing ticket apart from a guard failure when
// a conditional update matched no row. Returns the error to surface.
func (s *Store) classifyMissedUpdate(ctx context.Context, tx pgx.Tx, ticketID string) error {
	var status string
	row := tx.QueryRow(ctx, `SELECT status FROM tickets WHERE ticket_id = $1`, ticketID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrTicketNotFound
		}
		return err
	}
	return store.ErrInvalidTransition
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	query := `
		SELECT t.ticket_id, t.ticket_number, t.category, t.identity_fragment, t.patient_name,
		       t.status, t.sector_id, t.called_by, t.created_at, t.called_at, t.forwarded_at, t.completed_at,
		       COALESCE(s.name, '')
		FROM tickets t
		LEFT JOIN sectors s ON s.sector_id = t.sector_id
		WHERE 1=1
	`
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND t.status = $%d", len(args))
	}
	if filter.SectorID != "" {
		args = append(args, filter.SectorID)
		query += fmt.Sprintf(" AND t.sector_id = $%d", len(args))
	}
	if filter.Today {
		args = append(args, s.dayStart(time.Now()))
		query += fmt.Sprintf(" AND t.created_at >= $%d", len(args))
	}

	// Priority tickets jump the queue; within a category the sector view
	// orders by arrival at the sector, everything else by creation.
	orderKey := "t.created_at"
	if filter.Status == models.StatusWaitingSector || filter.Status == models.StatusInSector {
		orderKey = "t.forwarded_at"
	}
	args = append(args, models.CategoryPriority)
	query += fmt.Sprintf(" ORDER BY (t.category = $%d) DESC, %s ASC", len(args), orderKey)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		var patientName sql.NullString
		var sectorID sql.NullString
		var calledBy sql.NullString
		var calledAt sql.NullTime
		var forwardedAt sql.NullTime
		var completedAt sql.NullTime
		if err := rows.Scan(&ticket.TicketID, &ticket.TicketNumber, &ticket.Category, &ticket.IdentityFragment, &patientName, &ticket.Status, &sectorID, &calledBy, &ticket.CreatedAt, &calledAt, &forwardedAt, &completedAt, &ticket.SectorName); err != nil {
			return nil, err
		}
		if patientName.Valid {
			ticket.PatientName = patientName.String
		}
		ticket.SectorID = nullStringPtr(sectorID)
		ticket.CalledBy = nullStringPtr(calledBy)
		ticket.CalledAt = nullTimePtr(calledAt)
		ticket.ForwardedAt = nullTimePtr(forwardedAt)
		ticket.CompletedAt = nullTimePtr(completedAt)
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) ListCalls(ctx context.Context, filter store.CallFilter) ([]models.Call, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 5
	}

	query := `
		SELECT c.call_id, c.ticket_id, c.user_id, c.message, c.type,
		       COALESCE(c.desk, ''), COALESCE(c.room, ''), c.created_at,
		       t.ticket_number, t.category, t.identity_fragment, t.status, COALESCE(u.name, '')
		FROM calls c
		JOIN tickets t ON t.ticket_id = c.ticket_id
		LEFT JOIN users u ON u.user_id = c.user_id
		WHERE c.created_at >= $1
	`
	args := []any{s.dayStart(time.Now())}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND c.type = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY c.created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []models.Call
	for rows.Next() {
		var call models.Call
		var ticket models.Ticket
		if err := rows.Scan(&call.CallID, &call.TicketID, &call.UserID, &call.Message, &call.Type, &call.Desk, &call.Room, &call.CreatedAt, &ticket.TicketNumber, &ticket.Category, &ticket.IdentityFragment, &ticket.Status, &call.CallerName); err != nil {
			return nil, err
		}
		ticket.TicketID = call.TicketID
		ticket.CreatedAt = call.CreatedAt
		call.Ticket = &ticket
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return calls, nil
}

func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $2),
		       COUNT(*) FILTER (WHERE status = $3),
		       COUNT(*) FILTER (WHERE status = $4),
		       COUNT(*) FILTER (WHERE status IN ($5, $6))
		FROM tickets
		WHERE created_at >= $1
	`, s.dayStart(time.Now()), models.StatusWaitingReception, models.StatusWaitingSector, models.StatusCompleted, models.StatusInReception, models.StatusInSector)
	if err := row.Scan(&stats.TotalTickets, &stats.WaitingReception, &stats.WaitingSector, &stats.Completed, &stats.InProgress); err != nil {
		return models.Stats{}, err
	}
	return stats, nil
}

func activeSector(ctx context.Context, tx pgx.Tx, sectorID string) (models.Sector, error) {
	var sector models.Sector
	row := tx.QueryRow(ctx, `
		SELECT sector_id, name, room, type, active, created_at
		FROM sectors
		WHERE sector_id = $1 AND active = TRUE
	`, sectorID)
	if err := row.Scan(&sector.SectorID, &sector.Name, &sector.Room, &sector.Type, &sector.Active, &sector.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Sector{}, store.ErrSectorNotFound
		}
		return models.Sector{}, err
	}
	return sector, nil
}

func getSector(ctx context.Context, tx pgx.Tx, sectorID string) (models.Sector, error) {
	var sector models.Sector
	row := tx.QueryRow(ctx, `
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

func insertCall(ctx context.Context, tx pgx.Tx, call models.Call) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO calls (call_id, ticket_id, user_id, message, type, desk, room, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, call.CallID, call.TicketID, call.UserID, call.Message, call.Type, nullIfEmpty(call.Desk), nullIfEmpty(call.Room), call.CreatedAt)
	return err
}

func insertTicketEvent(ctx context.Context, tx pgx.Tx, eventType, channel string, ticket models.Ticket) error {
	payload, err := store.MarshalTicketEvent(ticket)
	if err != nil {
		return err
	}
	return insertOutboxEvent(ctx, tx, eventType, channel, payload)
}

func insertCallEvent(ctx context.Context, tx pgx.Tx, eventType, channel string, call models.Call, ticket models.Ticket) error {
	payload, err := store.MarshalCallEvent(call, ticket)
	if err != nil {
		return err
	}
	return insertOutboxEvent(ctx, tx, eventType, channel, payload)
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType, channel string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, channel, payload_json, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, uuid.NewString(), eventType, channel, payload)
	return err
}

func occurredAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time
	return &v
}
