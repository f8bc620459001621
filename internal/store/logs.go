// ABOUTME: Append-only structured log store with level gating and retention trimming
// ABOUTME: Message text is mirrored to slog only; persisted fields come from LogContext

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Debug logs at debug level with optional metadata.
func (s *SQLiteStore) Debug(ctx context.Context, message string, metadata map[string]any) error {
	return s.Log(ctx, LevelDebug, message, &LogContext{Metadata: metadata})
}

// Info logs at info level with optional metadata.
func (s *SQLiteStore) Info(ctx context.Context, message string, metadata map[string]any) error {
	return s.Log(ctx, LevelInfo, message, &LogContext{Metadata: metadata})
}

// Warn logs at warn level with optional metadata.
func (s *SQLiteStore) Warn(ctx context.Context, message string, metadata map[string]any) error {
	return s.Log(ctx, LevelWarn, message, &LogContext{Metadata: metadata})
}

// Error logs at error level with optional metadata.
func (s *SQLiteStore) Error(ctx context.Context, message string, metadata map[string]any) error {
	return s.Log(ctx, LevelError, message, &LogContext{Metadata: metadata})
}

// marshalField serializes a structured field to JSON text, or nil when the
// field is absent.
func marshalField(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Log writes one entry at the given level. Entries below the store's minimum
// level are dropped entirely, not written at all. The message is forwarded to
// the process logger but has no column in the schema; only the structured
// LogContext fields persist.
func (s *SQLiteStore) Log(ctx context.Context, level LogLevel, message string, lc *LogContext) error {
	if levelPriority(level) < levelPriority(s.minLevel) {
		return nil
	}
	if lc == nil {
		lc = &LogContext{}
	}

	argsJSON, err := marshalField(lc.Arguments)
	if err != nil {
		return fmt.Errorf("marshaling arguments: %w", err)
	}
	resultJSON, err := marshalField(lc.Result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	metaJSON, err := marshalField(lc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	var duration any
	if lc.Duration != nil {
		duration = lc.Duration.Milliseconds()
	}

	id := uuid.New().String()
	ts := time.Now().UnixMilli()

	query := `
		INSERT INTO logs (id, timestamp, level, tool, action, arguments, result, error, duration, session_id, project_id, server_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		id,
		ts,
		string(level),
		nullString(lc.Tool),
		nullString(lc.Action),
		argsJSON,
		resultJSON,
		nullString(lc.Error),
		duration,
		nullString(lc.SessionID),
		nullString(lc.ProjectID),
		nullString(lc.ServerID),
		metaJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}

	s.mirrorToLogger(level, message, lc)
	return nil
}

// mirrorToLogger forwards the non-persisted message text to the process
// logger at the matching level.
func (s *SQLiteStore) mirrorToLogger(level LogLevel, message string, lc *LogContext) {
	attrs := make([]any, 0, 4)
	if lc.Tool != "" {
		attrs = append(attrs, "tool", lc.Tool)
	}
	if lc.Error != "" {
		attrs = append(attrs, "error", lc.Error)
	}

	switch level {
	case LevelDebug:
		s.logger.Debug(message, attrs...)
	case LevelInfo:
		s.logger.Info(message, attrs...)
	case LevelWarn:
		s.logger.Warn(message, attrs...)
	case LevelError:
		s.logger.Error(message, attrs...)
	}
}

// LogTool records a successful tool invocation at info level.
func (s *SQLiteStore) LogTool(ctx context.Context, tool, action string, args, result map[string]any, duration time.Duration, lc *LogContext) error {
	entry := LogContext{Tool: tool, Action: action, Arguments: args, Result: result, Duration: &duration}
	if lc != nil {
		entry.SessionID = lc.SessionID
		entry.ProjectID = lc.ProjectID
		entry.ServerID = lc.ServerID
		entry.Metadata = lc.Metadata
	}
	return s.Log(ctx, LevelInfo, fmt.Sprintf("tool %s.%s completed", tool, action), &entry)
}

// LogToolError records a failed tool invocation at error level, capturing the
// error message in the entry's error field.
func (s *SQLiteStore) LogToolError(ctx context.Context, tool, action string, args map[string]any, toolErr error, duration time.Duration, lc *LogContext) error {
	msg := ""
	if toolErr != nil {
		msg = toolErr.Error()
	}
	entry := LogContext{Tool: tool, Action: action, Arguments: args, Error: msg, Duration: &duration}
	if lc != nil {
		entry.SessionID = lc.SessionID
		entry.ProjectID = lc.ProjectID
		entry.ServerID = lc.ServerID
		entry.Metadata = lc.Metadata
	}
	return s.Log(ctx, LevelError, fmt.Sprintf("tool %s.%s failed", tool, action), &entry)
}

// normalizeLogLimit applies the default (100) to a query limit.
func normalizeLogLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

// logQueryArgs converts LogQuery predicate fields to bind-ready values.
type logQueryArgs struct {
	levelStr *string
	sinceMs  *int64
	untilMs  *int64
}

func buildLogQueryArgs(q LogQuery) logQueryArgs {
	var args logQueryArgs
	if q.Level != nil {
		l := string(*q.Level)
		args.levelStr = &l
	}
	if q.Since != nil {
		ms := q.Since.UnixMilli()
		args.sinceMs = &ms
	}
	if q.Until != nil {
		ms := q.Until.UnixMilli()
		args.untilMs = &ms
	}
	return args
}

// logPredicates is the shared WHERE clause for Query and Count. Each pair of
// placeholders is bound to the same (possibly nil) value so unset predicates
// collapse to TRUE.
const logPredicates = `
	(? IS NULL OR level = ?)
	AND (? IS NULL OR tool = ?)
	AND (? IS NULL OR session_id = ?)
	AND (? IS NULL OR timestamp >= ?)
	AND (? IS NULL OR timestamp <= ?)
`

// scanLogEntry scans a row into a LogEntry.
func scanLogEntry(scanner interface{ Scan(dest ...any) error }) (*LogEntry, error) {
	var e LogEntry
	var ts int64
	var levelStr string
	var tool, action, argsJSON, resultJSON, errStr, sessionID, projectID, serverID, metaJSON sql.NullString
	var duration sql.NullInt64

	if err := scanner.Scan(
		&e.ID,
		&ts,
		&levelStr,
		&tool,
		&action,
		&argsJSON,
		&resultJSON,
		&errStr,
		&duration,
		&sessionID,
		&projectID,
		&serverID,
		&metaJSON,
	); err != nil {
		return nil, fmt.Errorf("scanning log entry: %w", err)
	}

	e.Timestamp = time.UnixMilli(ts)
	e.Level = LogLevel(levelStr)
	e.Tool = tool.String
	e.Action = action.String
	e.Error = errStr.String
	e.SessionID = sessionID.String
	e.ProjectID = projectID.String
	e.ServerID = serverID.String

	if duration.Valid {
		d := time.Duration(duration.Int64) * time.Millisecond
		e.Duration = &d
	}
	if argsJSON.Valid {
		if err := json.Unmarshal([]byte(argsJSON.String), &e.Arguments); err != nil {
			return nil, fmt.Errorf("unmarshaling arguments: %w", err)
		}
	}
	if resultJSON.Valid {
		if err := json.Unmarshal([]byte(resultJSON.String), &e.Result); err != nil {
			return nil, fmt.Errorf("unmarshaling result: %w", err)
		}
	}
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &e, nil
}

// Query returns log entries matching q, newest first by timestamp.
func (s *SQLiteStore) Query(ctx context.Context, q LogQuery) ([]*LogEntry, error) {
	limit := normalizeLogLimit(q.Limit)
	args := buildLogQueryArgs(q)

	query := `
		SELECT id, timestamp, level, tool, action, arguments, result, error, duration, session_id, project_id, server_id, metadata
		FROM logs
		WHERE ` + logPredicates + `
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		args.levelStr, args.levelStr,
		q.Tool, q.Tool,
		q.SessionID, q.SessionID,
		args.sinceMs, args.sinceMs,
		args.untilMs, args.untilMs,
		limit, q.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log rows: %w", err)
	}

	return entries, nil
}

// Count returns the number of entries matching q's predicates, ignoring
// Limit and Offset.
func (s *SQLiteStore) Count(ctx context.Context, q LogQuery) (int64, error) {
	args := buildLogQueryArgs(q)

	query := `SELECT COUNT(*) FROM logs WHERE ` + logPredicates

	var count int64
	err := s.db.QueryRowContext(ctx, query,
		args.levelStr, args.levelStr,
		q.Tool, q.Tool,
		q.SessionID, q.SessionID,
		args.sinceMs, args.sinceMs,
		args.untilMs, args.untilMs,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting logs: %w", err)
	}

	return count, nil
}

// Trim retains the maxEntries most recent entries by timestamp and deletes
// the rest in a single statement, so an interrupted trim never leaves a
// partially deleted keep-set. maxEntries <= 0 deletes everything.
func (s *SQLiteStore) Trim(ctx context.Context, maxEntries int) (int64, error) {
	var result sql.Result
	var err error

	if maxEntries <= 0 {
		result, err = s.db.ExecContext(ctx, `DELETE FROM logs`)
	} else {
		result, err = s.db.ExecContext(ctx, `
			DELETE FROM logs
			WHERE id NOT IN (
				SELECT id FROM logs ORDER BY timestamp DESC LIMIT ?
			)
		`, maxEntries)
	}
	if err != nil {
		return 0, fmt.Errorf("trimming logs: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if removed > 0 {
		s.logger.Debug("trimmed logs", "removed", removed, "max_entries", maxEntries)
	}
	return removed, nil
}

// ClearLogs deletes all log entries.
func (s *SQLiteStore) ClearLogs(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM logs`); err != nil {
		return fmt.Errorf("clearing logs: %w", err)
	}

	s.logger.Debug("logs cleared")
	return nil
}
