package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"turnero/internal/models"
	"turnero/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const ticketColumns = "ticket_id, display_name, queue_date, stage, status, claimed_station, claimed_by, claimed_at, claimed_from, created_at, updated_at"

// stationClaimIndex is the partial unique index on (queue_date, claimed_station)
// for active tickets. It backstops the in-transaction busy check; a violation
// means a concurrent claim won the station.
const stationClaimIndex = "tickets_station_active_ux"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO tickets (ticket_id, display_name, queue_date, stage, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+ticketColumns+`
	`, uuid.NewString(), nullStringArg(input.DisplayName), input.QueueDate, models.StageReception, models.StatusWaiting, createdAt)

	var ticket models.Ticket
	if ticket, err = scanTicket(row); err != nil {
		return models.Ticket{}, err
	}

	stage := ticket.Stage
	if err = insertAudit(ctx, tx, ticket.TicketID, input.ActorID, models.ActionCreate, nil, &stage, nil, createdAt); err != nil {
		return models.Ticket{}, err
	}
	if err = insertOutbox(ctx, tx, "ticket.created", ticket, createdAt); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
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

// CallNext claims the oldest waiting ticket along the pick chain: the stage's
// own queue first, then each fallback in order. Station-bound calls run under
// serializable isolation with a busy check; the partial unique index on
// (queue_date, claimed_station) catches whatever the check races past.
func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	txOptions := pgx.TxOptions{}
	if input.StationBound {
		txOptions.IsoLevel = pgx.Serializable
	}
	tx, err := s.pool.BeginTx(ctx, txOptions)
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	if input.StationBound {
		var busy bool
		row := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM tickets
				WHERE queue_date = $1 AND claimed_station = $2
					AND status IN ('WAITING', 'IN_SERVICE')
			)
		`, input.QueueDate, input.Station)
		if err = row.Scan(&busy); err != nil {
			return models.Ticket{}, false, err
		}
		if busy {
			err = store.ErrStationBusy
			return models.Ticket{}, false, err
		}
	}

	stationArg := interface{}(nil)
	if input.StationBound {
		stationArg = input.Station
	}

	var ticket models.Ticket
	var picked bool
	var pickStage string
	for _, stage := range input.PickChain {
		row := tx.QueryRow(ctx, `
			WITH next_ticket AS (
				SELECT ticket_id
				FROM tickets
				WHERE queue_date = $1 AND stage = $2 AND status = 'WAITING'
					AND claimed_at IS NULL
				ORDER BY created_at ASC, ticket_id ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			UPDATE tickets
			SET stage = $3,
				claimed_station = $4,
				claimed_by = $5,
				claimed_at = $6,
				claimed_from = $2,
				updated_at = $6
			FROM next_ticket
			WHERE tickets.ticket_id = next_ticket.ticket_id
			RETURNING `+prefixedTicketColumns("tickets"),
			input.QueueDate, stage, input.Stage, stationArg, input.AgentID, calledAt)
		if ticket, err = scanTicket(row); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				err = nil
				continue
			}
			return models.Ticket{}, false, translateClaimError(err)
		}
		picked = true
		pickStage = stage
		break
	}

	if !picked {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return models.Ticket{}, false, nil
	}

	actor := input.AgentID
	if err = insertAudit(ctx, tx, ticket.TicketID, &actor, models.ActionCallNext, &pickStage, &input.Stage, nil, calledAt); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertOutbox(ctx, tx, "ticket.called", ticket, calledAt); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, translateClaimError(err)
	}
	return ticket, true, nil
}

// MarkAttending moves a claimed-waiting ticket to IN_SERVICE. Clearing
// claimed_from closes the cancellation window.
func (s *Store) MarkAttending(ctx context.Context, input store.ClaimActionInput) (models.Ticket, error) {
	return s.claimedUpdate(ctx, input, models.ActionAttend, "ticket.updated", `
		UPDATE tickets
		SET status = 'IN_SERVICE',
			claimed_from = NULL,
			updated_at = $1
		WHERE ticket_id = $2 AND status = 'WAITING' AND claimed_at IS NOT NULL
			AND `+claimOwnerPredicate+`
		RETURNING `+ticketColumns)
}

// CancelClaim releases a claimed-waiting ticket back to the queue it was
// picked from: stage reverts to claimed_from and every claim field clears.
func (s *Store) CancelClaim(ctx context.Context, input store.ClaimActionInput) (models.Ticket, error) {
	return s.claimedUpdate(ctx, input, models.ActionCancelClaim, "ticket.updated", `
		UPDATE tickets
		SET stage = claimed_from,
			status = 'WAITING',
			claimed_station = NULL,
			claimed_by = NULL,
			claimed_at = NULL,
			claimed_from = NULL,
			updated_at = $1
		WHERE ticket_id = $2 AND status = 'WAITING' AND claimed_at IS NOT NULL
			AND `+claimOwnerPredicate+`
		RETURNING `+ticketColumns)
}

// FinishTicket ends service at the caller's station: terminal stages mark the
// ticket FINISHED, everything else releases it into the target stage's queue.
func (s *Store) FinishTicket(ctx context.Context, input store.FinishInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var ticket models.Ticket
	if input.Terminal {
		row := tx.QueryRow(ctx, `
			UPDATE tickets
			SET status = 'FINISHED',
				updated_at = $1
			WHERE ticket_id = $2 AND status = 'IN_SERVICE'
				AND `+claimOwnerPredicate+`
			RETURNING `+ticketColumns,
			occurredAt, input.TicketID, input.Station, input.AgentID)
		ticket, err = scanTicket(row)
	} else {
		row := tx.QueryRow(ctx, `
			UPDATE tickets
			SET stage = $1,
				status = 'WAITING',
				claimed_station = NULL,
				claimed_by = NULL,
				claimed_at = NULL,
				claimed_from = NULL,
				updated_at = $2
			WHERE ticket_id = $3 AND status = 'IN_SERVICE'
				AND `+claimOwnerPredicate2+`
			RETURNING `+ticketColumns,
			input.TargetStage, occurredAt, input.TicketID, input.Station, input.AgentID)
		ticket, err = scanTicket(row)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.diagnoseClaimFailure(ctx, tx, input.TicketID, input.Station, input.AgentID)
			return models.Ticket{}, err
		}
		return models.Ticket{}, err
	}

	actor := input.AgentID
	action := models.ActionFinish
	eventType := "ticket.finished"
	fromStage := ticket.Stage
	var toStage *string
	if !input.Terminal {
		action = models.ActionDerive
		eventType = "ticket.updated"
		fromStage = input.FromStage
		toStage = &input.TargetStage
	}
	if err = insertAudit(ctx, tx, ticket.TicketID, &actor, action, &fromStage, toStage, nil, occurredAt); err != nil {
		return models.Ticket{}, err
	}
	if err = insertOutbox(ctx, tx, eventType, ticket, occurredAt); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ActiveTicket(ctx context.Context, queueDate time.Time, station int) (models.Ticket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE queue_date = $1 AND claimed_station = $2
			AND status IN ('WAITING', 'IN_SERVICE')
		ORDER BY claimed_at DESC
		LIMIT 1
	`, queueDate, station)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) Snapshot(ctx context.Context, queueDate time.Time) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE queue_date = $1 AND status IN ('WAITING', 'IN_SERVICE')
		ORDER BY created_at ASC, ticket_id ASC
	`, queueDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) SetDisplayName(ctx context.Context, input store.SetDisplayNameInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET display_name = $1,
			updated_at = $2
		WHERE ticket_id = $3
		RETURNING `+ticketColumns,
		input.DisplayName, occurredAt, input.TicketID)
	var ticket models.Ticket
	if ticket, err = scanTicket(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}

	metadata, err := json.Marshal(map[string]string{"display_name": input.DisplayName})
	if err != nil {
		return models.Ticket{}, err
	}
	actor := input.ActorID
	if err = insertAudit(ctx, tx, ticket.TicketID, &actor, models.ActionSetName, nil, nil, metadata, occurredAt); err != nil {
		return models.Ticket{}, err
	}
	if err = insertOutbox(ctx, tx, "ticket.updated", ticket, occurredAt); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListAuditEntries(ctx context.Context, ticketID string) ([]models.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, ticket_id, actor_id, action, from_stage, to_stage, metadata, created_at
		FROM audit_log
		WHERE ticket_id = $1
		ORDER BY entry_id ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var actorNull sql.NullString
		var fromNull sql.NullString
		var toNull sql.NullString
		if err := rows.Scan(&entry.EntryID, &entry.TicketID, &actorNull, &entry.Action, &fromNull, &toNull, &entry.Metadata, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ActorID = nullStringPtr(actorNull)
		entry.FromStage = nullStringPtr(fromNull)
		entry.ToStage = nullStringPtr(toNull)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// SweepDay cancels one batch of tickets from days before the cutoff. Callers
// loop until it reports zero.
func (s *Store) SweepDay(ctx context.Context, before time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	sweptAt := time.Now().UTC()
	rows, err := tx.Query(ctx, `
		WITH stale AS (
			SELECT ticket_id
			FROM tickets
			WHERE queue_date < $1 AND status IN ('WAITING', 'IN_SERVICE')
			ORDER BY queue_date ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		UPDATE tickets
		SET status = 'CANCELLED',
			claimed_station = NULL,
			claimed_by = NULL,
			claimed_at = NULL,
			claimed_from = NULL,
			updated_at = $3
		FROM stale
		WHERE tickets.ticket_id = stale.ticket_id
		RETURNING `+prefixedTicketColumns("tickets"),
		before, batch, sweptAt)
	if err != nil {
		return 0, err
	}

	var swept []models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		if ticket, err = scanTicket(rows); err != nil {
			rows.Close()
			return 0, err
		}
		swept = append(swept, ticket)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	for _, ticket := range swept {
		stage := ticket.Stage
		if err = insertAudit(ctx, tx, ticket.TicketID, nil, models.ActionDaySweep, &stage, nil, nil, sweptAt); err != nil {
			return 0, err
		}
		if err = insertOutbox(ctx, tx, "ticket.updated", ticket, sweptAt); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(swept), nil
}

func (s *Store) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	var user models.User
	var boxNull sql.NullInt64
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, name, role, box_number, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1) AND active = TRUE
	`, email)
	if err := row.Scan(&user.UserID, &user.Email, &user.Name, &user.Role, &boxNull, &passwordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return models.User{}, store.ErrInvalidCredentials
	}
	user.BoxNumber = nullIntPtr(boxNull)
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	var boxNull sql.NullInt64
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, name, role, box_number, created_at
		FROM users
		WHERE user_id = $1 AND active = TRUE
	`, userID)
	if err := row.Scan(&user.UserID, &user.Email, &user.Name, &user.Role, &boxNull, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	user.BoxNumber = nullIntPtr(boxNull)
	return user, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, afterID int64, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, queue_date, stage, payload_json, created_at
		FROM outbox_events
		WHERE event_id > $1
		ORDER BY event_id ASC
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.QueueDate, &event.Stage, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetOffset(ctx context.Context, consumer string) (int64, error) {
	var lastID int64
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_id
		FROM realtime_offsets
		WHERE consumer = $1
	`, consumer)
	if err := row.Scan(&lastID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return lastID, nil
}

func (s *Store) UpdateOffset(ctx context.Context, consumer string, lastID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO realtime_offsets (consumer, last_event_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer)
		DO UPDATE SET last_event_id = EXCLUDED.last_event_id, updated_at = EXCLUDED.updated_at
	`, consumer, lastID, time.Now().UTC())
	return err
}

// CleanupOutbox deletes delivered events older than the cutoff. Rows past any
// consumer's offset are kept so a lagging consumer never loses events.
func (s *Store) CleanupOutbox(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM outbox_events
		WHERE created_at < $1
			AND event_id <= (SELECT COALESCE(MIN(last_event_id), 0) FROM realtime_offsets)
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// claimOwnerPredicate matches a ticket against the caller's claim: station
// picks by station number, agent picks by agent id. Placeholders $3 and $4.
const claimOwnerPredicate = `((claimed_station IS NOT NULL AND claimed_station = $3)
			OR (claimed_station IS NULL AND claimed_by = $4))`

// claimOwnerPredicate2 is the same predicate at placeholders $4 and $5.
const claimOwnerPredicate2 = `((claimed_station IS NOT NULL AND claimed_station = $4)
			OR (claimed_station IS NULL AND claimed_by = $5))`

func (s *Store) claimedUpdate(ctx context.Context, input store.ClaimActionInput, action, eventType, query string) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, query, occurredAt, input.TicketID, input.Station, input.AgentID)
	var ticket models.Ticket
	if ticket, err = scanTicket(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.diagnoseClaimFailure(ctx, tx, input.TicketID, input.Station, input.AgentID)
			return models.Ticket{}, err
		}
		return models.Ticket{}, err
	}

	actor := input.AgentID
	stage := ticket.Stage
	if err = insertAudit(ctx, tx, ticket.TicketID, &actor, action, &stage, nil, nil, occurredAt); err != nil {
		return models.Ticket{}, err
	}
	if err = insertOutbox(ctx, tx, eventType, ticket, occurredAt); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// diagnoseClaimFailure explains why a guarded UPDATE matched no row, in
// precedence order: missing ticket, foreign claim, wrong status.
func (s *Store) diagnoseClaimFailure(ctx context.Context, tx pgx.Tx, ticketID string, station int, agentID string) error {
	var stationNull sql.NullInt64
	var claimedByNull sql.NullString
	var claimedAtNull sql.NullTime
	row := tx.QueryRow(ctx, `
		SELECT claimed_station, claimed_by, claimed_at
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)
	if err := row.Scan(&stationNull, &claimedByNull, &claimedAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrTicketNotFound
		}
		return err
	}
	if claimedAtNull.Valid {
		mine := false
		if stationNull.Valid {
			mine = int(stationNull.Int64) == station
		} else if claimedByNull.Valid {
			mine = claimedByNull.String == agentID
		}
		if !mine {
			return store.ErrNotYourTicket
		}
	}
	return store.ErrInvalidStatus
}

func insertAudit(ctx context.Context, tx pgx.Tx, ticketID string, actorID *string, action string, fromStage, toStage *string, metadata []byte, createdAt time.Time) error {
	meta := interface{}(nil)
	if len(metadata) > 0 {
		meta = metadata
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_log (ticket_id, actor_id, action, from_stage, to_stage, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ticketID, nullStringArg(actorID), action, nullStringArg(fromStage), nullStringArg(toStage), meta, createdAt)
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType string, ticket models.Ticket, createdAt time.Time) error {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (type, queue_date, stage, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, eventType, ticket.QueueDate, ticket.Stage, payload, createdAt)
	return err
}

// translateClaimError maps database-level claim conflicts to sentinels:
// a violation of the station uniqueness index means a concurrent claim won,
// and SQLSTATE 40001/40P01 mean the transaction should be re-run.
func translateClaimError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code == "23505" && pgErr.ConstraintName == stationClaimIndex {
		return store.ErrAlreadyReserved
	}
	if pgErr.Code == "40001" || pgErr.Code == "40P01" {
		return store.ErrSerialization
	}
	return err
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var displayNull sql.NullString
	var stationNull sql.NullInt64
	var claimedByNull sql.NullString
	var claimedAtNull sql.NullTime
	var claimedFromNull sql.NullString
	if err := row.Scan(&ticket.TicketID, &displayNull, &ticket.QueueDate, &ticket.Stage, &ticket.Status,
		&stationNull, &claimedByNull, &claimedAtNull, &claimedFromNull, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return models.Ticket{}, err
	}
	ticket.DisplayName = nullStringPtr(displayNull)
	ticket.ClaimedStation = nullIntPtr(stationNull)
	ticket.ClaimedBy = nullStringPtr(claimedByNull)
	ticket.ClaimedAt = nullTimePtr(claimedAtNull)
	ticket.ClaimedFrom = nullStringPtr(claimedFromNull)
	return ticket, nil
}

func prefixedTicketColumns(table string) string {
	return table + ".ticket_id, " + table + ".display_name, " + table + ".queue_date, " +
		table + ".stage, " + table + ".status, " + table + ".claimed_station, " +
		table + ".claimed_by, " + table + ".claimed_at, " + table + ".claimed_from, " +
		table + ".created_at, " + table + ".updated_at"
}

func nullStringArg(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullIntPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	n := int(value.Int64)
	return &n
}
