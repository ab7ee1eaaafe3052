package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shakamirtskhulava/eventlog/internal/database"
	"github.com/shakamirtskhulava/eventlog/internal/eventlog/domain"

	apperrors "github.com/shakamirtskhulava/eventlog/internal/errors"
)

// MySQLEventLogRepository handles event log persistence for MySQL.
type MySQLEventLogRepository struct {
	db *sql.DB
}

// NewMySQLEventLogRepository creates a new MySQLEventLogRepository.
func NewMySQLEventLogRepository(db *sql.DB) *MySQLEventLogRepository {
	return &MySQLEventLogRepository{
		db: db,
	}
}

// SaveEvent inserts a new event log entry on the caller's context transaction.
func (r *MySQLEventLogRepository) SaveEvent(ctx context.Context, entry *domain.EventLogEntry) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO event_logs (event_id, event_type_name, event_type_short_name, entity_id, content, state, times_sent, creation_time)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(ctx, query, entry.EventID.String(), entry.EventTypeName, entry.EventTypeShortName,
		entry.EntityID, entry.Content, entry.State, entry.TimesSent, entry.CreationTime)
	if err != nil {
		if isMySQLUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrConflict, "event already recorded")
		}
		return apperrors.Transient(apperrors.Wrap(err, "failed to save event"))
	}
	return nil
}

// RetrievePendingEventLogs returns up to batchSize not-yet-published entries, oldest first.
func (r *MySQLEventLogRepository) RetrievePendingEventLogs(
	ctx context.Context,
	batchSize int,
) ([]*domain.EventLogEntry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT event_id, event_type_name, event_type_short_name, entity_id, content, state, times_sent, creation_time
			  FROM event_logs
			  WHERE state = ?
			  ORDER BY creation_time ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, domain.EventStateNotPublished, batchSize)
	if err != nil {
		return nil, apperrors.Transient(apperrors.Wrap(err, "failed to retrieve pending event logs"))
	}
	defer rows.Close() //nolint:errcheck

	var entries []*domain.EventLogEntry
	for rows.Next() {
		var entry domain.EventLogEntry

		err := rows.Scan(&entry.EventID, &entry.EventTypeName, &entry.EventTypeShortName, &entry.EntityID,
			&entry.Content, &entry.State, &entry.TimesSent, &entry.CreationTime)
		if err != nil {
			return nil, err
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// MarkEventAsInProgress claims an entry for delivery; exactly one of several
// concurrent claimers wins, the rest get ErrStaleStateTransition.
func (r *MySQLEventLogRepository) MarkEventAsInProgress(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE event_logs
			  SET state = ?, times_sent = times_sent + 1
			  WHERE event_id = ? AND state = ?`

	return r.transition(ctx, query, domain.EventStateInProgress, eventID, domain.EventStateNotPublished)
}

// MarkEventAsPublished finalizes a successfully delivered entry.
func (r *MySQLEventLogRepository) MarkEventAsPublished(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE event_logs
			  SET state = ?
			  WHERE event_id = ? AND state = ?`

	return r.transition(ctx, query, domain.EventStatePublished, eventID, domain.EventStateInProgress)
}

// MarkEventAsFailed finalizes an entry whose delivery failed.
func (r *MySQLEventLogRepository) MarkEventAsFailed(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE event_logs
			  SET state = ?
			  WHERE event_id = ? AND state = ?`

	return r.transition(ctx, query, domain.EventStatePublishedFailed, eventID, domain.EventStateInProgress)
}

// transition applies a compare-and-transition update and maps a missed
// precondition to ErrStaleStateTransition.
func (r *MySQLEventLogRepository) transition(
	ctx context.Context,
	query string,
	next domain.EventState,
	eventID uuid.UUID,
	required domain.EventState,
) error {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx, query, next, eventID.String(), required)
	if err != nil {
		return apperrors.Transient(apperrors.Wrap(err, "failed to transition event state"))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return fmt.Errorf("%w: event %s is not in state %s", apperrors.ErrStaleStateTransition, eventID, required)
	}
	return nil
}

// FailedMessageChainExists reports whether a chain exists for the entity.
func (r *MySQLEventLogRepository) FailedMessageChainExists(ctx context.Context, entityID string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT EXISTS(SELECT 1 FROM failed_message_chains WHERE entity_id = ?)`

	var exists bool
	if err := querier.QueryRowContext(ctx, query, entityID).Scan(&exists); err != nil {
		return false, apperrors.Transient(apperrors.Wrap(err, "failed to check chain existence"))
	}
	return exists, nil
}

// AddInFailedMessageChain appends a failed message to the entity's chain,
// creating the chain (republishable by default) when absent.
func (r *MySQLEventLogRepository) AddInFailedMessageChain(
	ctx context.Context,
	entityID string,
	message *domain.FailedMessage,
) error {
	querier := database.GetTx(ctx, r.db)

	chainID := uuid.Must(uuid.NewV7())
	insertChain := `INSERT INTO failed_message_chains (id, entity_id, should_republish, creation_time)
					VALUES (?, ?, TRUE, NOW())
					ON DUPLICATE KEY UPDATE id = id`

	if _, err := querier.ExecContext(ctx, insertChain, chainID.String(), entityID); err != nil {
		return apperrors.Transient(apperrors.Wrap(err, "failed to upsert chain"))
	}

	selectChain := `SELECT id FROM failed_message_chains WHERE entity_id = ?`
	if err := querier.QueryRowContext(ctx, selectChain, entityID).Scan(&chainID); err != nil {
		return apperrors.Transient(apperrors.Wrap(err, "failed to load chain"))
	}

	insertMessage := `INSERT INTO failed_messages (id, chain_id, body, message, stack_trace, event_type_short_name, event_id, should_skip, creation_time)
					  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var eventID any
	if message.EventID.Valid {
		eventID = message.EventID.UUID.String()
	}

	_, err := querier.ExecContext(ctx, insertMessage, message.ID.String(), chainID.String(), message.Body,
		message.Message, message.StackTrace, message.EventTypeShortName, eventID, message.ShouldSkip,
		message.CreationTime)
	if err != nil {
		return apperrors.Transient(apperrors.Wrap(err, "failed to append failed message"))
	}
	return nil
}

// GetChainsToRepublish returns up to chainBatchSize republishable chains, each
// loaded with its non-skipped messages oldest first.
func (r *MySQLEventLogRepository) GetChainsToRepublish(
	ctx context.Context,
	chainBatchSize int,
) ([]*domain.FailedMessageChain, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, entity_id, should_republish, creation_time
			  FROM failed_message_chains
			  WHERE should_republish = TRUE
			  ORDER BY creation_time ASC
			  LIMIT ?`

	chains, err := r.scanChains(ctx, querier, query, chainBatchSize)
	if err != nil {
		return nil, err
	}

	for _, chain := range chains {
		messages, err := r.loadMessages(ctx, querier, chain.ID, true)
		if err != nil {
			return nil, err
		}
		chain.FailedMessages = messages
	}

	return chains, nil
}

// ListChains returns chains with all of their messages, for the operator surface.
func (r *MySQLEventLogRepository) ListChains(ctx context.Context, limit int) ([]*domain.FailedMessageChain, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, entity_id, should_republish, creation_time
			  FROM failed_message_chains
			  ORDER BY creation_time ASC
			  LIMIT ?`

	chains, err := r.scanChains(ctx, querier, query, limit)
	if err != nil {
		return nil, err
	}

	for _, chain := range chains {
		messages, err := r.loadMessages(ctx, querier, chain.ID, false)
		if err != nil {
			return nil, err
		}
		chain.FailedMessages = messages
	}

	return chains, nil
}

// SetChainRepublish flips the republish gate for the entity's chain.
func (r *MySQLEventLogRepository) SetChainRepublish(ctx context.Context, entityID string, shouldRepublish bool) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE failed_message_chains SET should_republish = ? WHERE entity_id = ?`

	result, err := querier.ExecContext(ctx, query, shouldRepublish, entityID)
	if err != nil {
		return apperrors.Transient(apperrors.Wrap(err, "failed to update chain"))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: chain for entity %s", apperrors.ErrNotFound, entityID)
	}
	return nil
}

// SetMessageSkip flips the retry exclusion flag on a single failed message.
func (r *MySQLEventLogRepository) SetMessageSkip(ctx context.Context, messageID uuid.UUID, shouldSkip bool) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE failed_messages SET should_skip = ? WHERE id = ?`

	result, err := querier.ExecContext(ctx, query, shouldSkip, messageID.String())
	if err != nil {
		return apperrors.Transient(apperrors.Wrap(err, "failed to update failed message"))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: failed message %s", apperrors.ErrNotFound, messageID)
	}
	return nil
}

// scanChains runs a chain query and scans the result set.
func (r *MySQLEventLogRepository) scanChains(
	ctx context.Context,
	querier database.Querier,
	query string,
	limit int,
) ([]*domain.FailedMessageChain, error) {
	rows, err := querier.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.Transient(apperrors.Wrap(err, "failed to query chains"))
	}
	defer rows.Close() //nolint:errcheck

	var chains []*domain.FailedMessageChain
	for rows.Next() {
		var chain domain.FailedMessageChain
		if err := rows.Scan(&chain.ID, &chain.EntityID, &chain.ShouldRepublish, &chain.CreationTime); err != nil {
			return nil, err
		}
		chains = append(chains, &chain)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return chains, nil
}

// loadMessages loads a chain's messages oldest first, optionally excluding skipped ones.
func (r *MySQLEventLogRepository) loadMessages(
	ctx context.Context,
	querier database.Querier,
	chainID uuid.UUID,
	excludeSkipped bool,
) ([]*domain.FailedMessage, error) {
	query := `SELECT id, body, message, stack_trace, event_type_short_name, event_id, should_skip, creation_time
			  FROM failed_messages
			  WHERE chain_id = ?`
	if excludeSkipped {
		query += ` AND should_skip = FALSE`
	}
	query += ` ORDER BY creation_time ASC`

	rows, err := querier.QueryContext(ctx, query, chainID.String())
	if err != nil {
		return nil, apperrors.Transient(apperrors.Wrap(err, "failed to query failed messages"))
	}
	defer rows.Close() //nolint:errcheck

	var messages []*domain.FailedMessage
	for rows.Next() {
		var m domain.FailedMessage
		err := rows.Scan(&m.ID, &m.Body, &m.Message, &m.StackTrace, &m.EventTypeShortName,
			&m.EventID, &m.ShouldSkip, &m.CreationTime)
		if err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// isMySQLUniqueViolation checks if the error is a MySQL unique constraint violation.
func isMySQLUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	// MySQL: "Error 1062: Duplicate entry"
	return strings.Contains(errMsg, "duplicate entry") || strings.Contains(errMsg, "1062")
}
