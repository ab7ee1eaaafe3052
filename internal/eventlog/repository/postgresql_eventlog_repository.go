// Package repository provides data persistence implementations for the
// integration event log and failed-message chains.
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

// PostgreSQLEventLogRepository handles event log persistence for PostgreSQL.
type PostgreSQLEventLogRepository struct {
	db *sql.DB
}

// NewPostgreSQLEventLogRepository creates a new PostgreSQLEventLogRepository.
func NewPostgreSQLEventLogRepository(db *sql.DB) *PostgreSQLEventLogRepository {
	return &PostgreSQLEventLogRepository{
		db: db,
	}
}

// SaveEvent inserts a new event log entry. It runs on the caller's context
// transaction, so the entry commits or rolls back atomically with the entity
// mutation that produced the event.
func (r *PostgreSQLEventLogRepository) SaveEvent(ctx context.Context, entry *domain.EventLogEntry) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO event_logs (event_id, event_type_name, event_type_short_name, entity_id, content, state, times_sent, creation_time)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(ctx, query, entry.EventID, entry.EventTypeName, entry.EventTypeShortName,
		entry.EntityID, entry.Content, entry.State, entry.TimesSent, entry.CreationTime)
	if err != nil {
		if isPostgreSQLUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrConflict, "event already recorded")
		}
		return apperrors.Transient(apperrors.Wrap(err, "failed to save event"))
	}
	return nil
}

// RetrievePendingEventLogs returns up to batchSize entries still waiting for
// delivery, oldest first. Read snapshot; claiming happens one entry at a time
// through MarkEventAsInProgress.
func (r *PostgreSQLEventLogRepository) RetrievePendingEventLogs(
	ctx context.Context,
	batchSize int,
) ([]*domain.EventLogEntry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT event_id, event_type_name, event_type_short_name, entity_id, content, state, times_sent, creation_time
			  FROM event_logs
			  WHERE state = $1
			  ORDER BY creation_time ASC
			  LIMIT $2`

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

// MarkEventAsInProgress claims an entry for delivery. The update predicate
// carries the required source state, so with two concurrent publishers exactly
// one claim succeeds; the loser gets ErrStaleStateTransition.
func (r *PostgreSQLEventLogRepository) MarkEventAsInProgress(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE event_logs
			  SET state = $1, times_sent = times_sent + 1
			  WHERE event_id = $2 AND state = $3`

	return r.transition(ctx, query, domain.EventStateInProgress, eventID, domain.EventStateNotPublished)
}

// MarkEventAsPublished finalizes a successfully delivered entry.
func (r *PostgreSQLEventLogRepository) MarkEventAsPublished(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE event_logs
			  SET state = $1
			  WHERE event_id = $2 AND state = $3`

	return r.transition(ctx, query, domain.EventStatePublished, eventID, domain.EventStateInProgress)
}

// MarkEventAsFailed finalizes an entry whose delivery failed.
func (r *PostgreSQLEventLogRepository) MarkEventAsFailed(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE event_logs
			  SET state = $1
			  WHERE event_id = $2 AND state = $3`

	return r.transition(ctx, query, domain.EventStatePublishedFailed, eventID, domain.EventStateInProgress)
}

// transition applies a compare-and-transition update and maps a missed
// precondition to ErrStaleStateTransition.
func (r *PostgreSQLEventLogRepository) transition(
	ctx context.Context,
	query string,
	next domain.EventState,
	eventID uuid.UUID,
	required domain.EventState,
) error {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx, query, next, eventID, required)
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
func (r *PostgreSQLEventLogRepository) FailedMessageChainExists(ctx context.Context, entityID string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT EXISTS(SELECT 1 FROM failed_message_chains WHERE entity_id = $1)`

	var exists bool
	if err := querier.QueryRowContext(ctx, query, entityID).Scan(&exists); err != nil {
		return false, apperrors.Transient(apperrors.Wrap(err, "failed to check chain existence"))
	}
	return exists, nil
}

// AddInFailedMessageChain appends a failed message to the entity's chain,
// creating the chain (republishable by default) when absent. Runs on the
// caller's context transaction so the chain never exists without its message.
func (r *PostgreSQLEventLogRepository) AddInFailedMessageChain(
	ctx context.Context,
	entityID string,
	message *domain.FailedMessage,
) error {
	querier := database.GetTx(ctx, r.db)

	chainID := uuid.Must(uuid.NewV7())
	insertChain := `INSERT INTO failed_message_chains (id, entity_id, should_republish, creation_time)
					VALUES ($1, $2, TRUE, NOW())
					ON CONFLICT (entity_id) DO NOTHING`

	if _, err := querier.ExecContext(ctx, insertChain, chainID, entityID); err != nil {
		return apperrors.Transient(apperrors.Wrap(err, "failed to upsert chain"))
	}

	selectChain := `SELECT id FROM failed_message_chains WHERE entity_id = $1`
	if err := querier.QueryRowContext(ctx, selectChain, entityID).Scan(&chainID); err != nil {
		return apperrors.Transient(apperrors.Wrap(err, "failed to load chain"))
	}

	insertMessage := `INSERT INTO failed_messages (id, chain_id, body, message, stack_trace, event_type_short_name, event_id, should_skip, creation_time)
					  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(ctx, insertMessage, message.ID, chainID, message.Body, message.Message,
		message.StackTrace, message.EventTypeShortName, message.EventID, message.ShouldSkip, message.CreationTime)
	if err != nil {
		return apperrors.Transient(apperrors.Wrap(err, "failed to append failed message"))
	}
	return nil
}

// GetChainsToRepublish returns up to chainBatchSize republishable chains, each
// loaded with its non-skipped messages oldest first.
func (r *PostgreSQLEventLogRepository) GetChainsToRepublish(
	ctx context.Context,
	chainBatchSize int,
) ([]*domain.FailedMessageChain, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, entity_id, should_republish, creation_time
			  FROM failed_message_chains
			  WHERE should_republish = TRUE
			  ORDER BY creation_time ASC
			  LIMIT $1`

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

// ListChains returns chains with all of their messages, for the operator
// surface. Skipped messages are included so history stays visible.
func (r *PostgreSQLEventLogRepository) ListChains(ctx context.Context, limit int) ([]*domain.FailedMessageChain, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, entity_id, should_republish, creation_time
			  FROM failed_message_chains
			  ORDER BY creation_time ASC
			  LIMIT $1`

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
func (r *PostgreSQLEventLogRepository) SetChainRepublish(ctx context.Context, entityID string, shouldRepublish bool) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE failed_message_chains SET should_republish = $1 WHERE entity_id = $2`

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
func (r *PostgreSQLEventLogRepository) SetMessageSkip(ctx context.Context, messageID uuid.UUID, shouldSkip bool) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE failed_messages SET should_skip = $1 WHERE id = $2`

	result, err := querier.ExecContext(ctx, query, shouldSkip, messageID)
	if err != nil {
		return apperrors.Transient(apperrors.Wrap(err, "failed to update failed message"))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: failed message %s", apperrors.ErrNotFound, messageID)
	}
	return nil
}

// scanChains runs a chain query and scans the result set.
func (r *PostgreSQLEventLogRepository) scanChains(
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

// loadMessages loads a chain's messages oldest first, optionally excluding
// skipped ones.
func (r *PostgreSQLEventLogRepository) loadMessages(
	ctx context.Context,
	querier database.Querier,
	chainID uuid.UUID,
	excludeSkipped bool,
) ([]*domain.FailedMessage, error) {
	query := `SELECT id, body, message, stack_trace, event_type_short_name, event_id, should_skip, creation_time
			  FROM failed_messages
			  WHERE chain_id = $1`
	if excludeSkipped {
		query += ` AND should_skip = FALSE`
	}
	query += ` ORDER BY creation_time ASC`

	rows, err := querier.QueryContext(ctx, query, chainID)
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

// isPostgreSQLUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPostgreSQLUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "unique constraint")
}
