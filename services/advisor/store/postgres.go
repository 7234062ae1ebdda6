// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/finsagelabs/finsage/services/advisor/datatypes"
)

// =============================================================================
// Configuration
// =============================================================================

// PostgresConfig holds the relational store connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// SSLMode is the lib/pq sslmode value: "disable" or "verify-full".
	SSLMode string

	MaxOpenConns int
	MaxIdleConns int
}

// DSN renders the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, sslMode)
}

// =============================================================================
// Schema
// =============================================================================

// schemaStatements creates the six relations and the indexes the
// correctness-sensitive queries depend on. Session-scoped rows cascade
// with the session.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS lenders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		interest_rate DOUBLE PRECISION NOT NULL,
		min_loan_amount BIGINT NOT NULL,
		max_loan_amount BIGINT NOT NULL,
		min_income BIGINT NOT NULL,
		min_credit_score INT NOT NULL,
		employment_types JSONB NOT NULL,
		loan_purpose TEXT,
		special_eligibility TEXT,
		processing_time_days INT NOT NULL,
		features JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		last_touched TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		user_agent TEXT,
		client_ip TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions (expires_at)`,
	`CREATE TABLE IF NOT EXISTS loan_parameters (
		session_id UUID PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
		loan_amount BIGINT,
		annual_income BIGINT,
		employment_status TEXT,
		credit_score INT,
		loan_purpose TEXT,
		debt_to_income_ratio DOUBLE PRECISION,
		employment_duration INT
	)`,
	`CREATE TABLE IF NOT EXISTS parameter_tracking (
		session_id UUID PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
		has_loan_amount BOOLEAN NOT NULL DEFAULT FALSE,
		has_annual_income BOOLEAN NOT NULL DEFAULT FALSE,
		has_employment_status BOOLEAN NOT NULL DEFAULT FALSE,
		has_credit_score BOOLEAN NOT NULL DEFAULT FALSE,
		has_loan_purpose BOOLEAN NOT NULL DEFAULT FALSE,
		completion_percent INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_history (
		id BIGSERIAL PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		agent_type TEXT,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_session_created
		ON conversation_history (session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS match_results (
		session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		lender_id TEXT NOT NULL,
		lender_name TEXT NOT NULL,
		interest_rate DOUBLE PRECISION NOT NULL,
		eligibility_score INT NOT NULL,
		affordability_score INT NOT NULL,
		specialization_score INT NOT NULL,
		final_score INT NOT NULL,
		confidence INT NOT NULL,
		reasons JSONB NOT NULL,
		warnings JSONB,
		rank INT NOT NULL,
		calculated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, lender_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_session_score
		ON match_results (session_id, final_score DESC)`,
}

// =============================================================================
// PostgresStore
// =============================================================================

// PostgresStore is the production Store backed by PostgreSQL via lib/pq.
// The *sql.DB pool is shared; per-session turn locks are process-local
// (one advisor instance owns a session's turns).
type PostgresStore struct {
	db *sql.DB

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewPostgresStore opens the connection pool, verifies connectivity, and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	slog.Info("Postgres store initialized",
		"host", cfg.Host, "database", cfg.Database, "ssl_mode", cfg.SSLMode)
	return &PostgresStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// SeedLenders mirrors the static catalogue into the lenders relation for
// reporting. Existing rows are upserted.
func (s *PostgresStore) SeedLenders(ctx context.Context, lenders []datatypes.Lender) error {
	for _, l := range lenders {
		empTypes, _ := json.Marshal(l.EmploymentTypes)
		features, _ := json.Marshal(l.Features)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO lenders (id, name, interest_rate, min_loan_amount, max_loan_amount,
				min_income, min_credit_score, employment_types, loan_purpose,
				special_eligibility, processing_time_days, features)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				interest_rate = EXCLUDED.interest_rate,
				min_loan_amount = EXCLUDED.min_loan_amount,
				max_loan_amount = EXCLUDED.max_loan_amount,
				min_income = EXCLUDED.min_income,
				min_credit_score = EXCLUDED.min_credit_score,
				employment_types = EXCLUDED.employment_types,
				loan_purpose = EXCLUDED.loan_purpose,
				special_eligibility = EXCLUDED.special_eligibility,
				processing_time_days = EXCLUDED.processing_time_days,
				features = EXCLUDED.features`,
			l.ID, l.Name, l.InterestRate, l.MinLoanAmount, l.MaxLoanAmount,
			l.MinIncome, l.MinCreditScore, empTypes, nullable(l.LoanPurpose),
			nullable(l.SpecialEligibility), l.ProcessingTimeDays, features)
		if err != nil {
			return fmt.Errorf("failed to seed lender %s: %w", l.ID, err)
		}
	}
	return nil
}

// Open implements Store.
func (s *PostgresStore) Open(ctx context.Context, fp Fingerprint) (datatypes.Session, error) {
	now := time.Now().UTC()
	sess := datatypes.Session{
		ID:          uuid.NewString(),
		Status:      datatypes.SessionActive,
		CreatedAt:   now,
		LastTouched: now,
		ExpiresAt:   now.Add(datatypes.SessionTTL),
		UserAgent:   fp.UserAgent,
		ClientIP:    fp.ClientIP,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, status, created_at, last_touched, expires_at, user_agent, client_ip)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			sess.ID, sess.Status, sess.CreatedAt, sess.LastTouched, sess.ExpiresAt,
			nullable(sess.UserAgent), nullable(sess.ClientIP)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO loan_parameters (session_id) VALUES ($1)`, sess.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO parameter_tracking (session_id) VALUES ($1)`, sess.ID)
		return err
	})
	if err != nil {
		return datatypes.Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return sess, nil
}

// loadSession fetches the session row and applies the expiry check.
func (s *PostgresStore) loadSession(ctx context.Context, q queryer, sessionID string) (datatypes.Session, error) {
	var sess datatypes.Session
	var userAgent, clientIP sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, status, created_at, last_touched, expires_at, user_agent, client_ip
		FROM sessions WHERE id = $1`, sessionID).
		Scan(&sess.ID, &sess.Status, &sess.CreatedAt, &sess.LastTouched,
			&sess.ExpiresAt, &userAgent, &clientIP)
	if errors.Is(err, sql.ErrNoRows) {
		return datatypes.Session{}, ErrNotFound
	}
	if err != nil {
		return datatypes.Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	sess.UserAgent = userAgent.String
	sess.ClientIP = clientIP.String

	if sess.Status == datatypes.SessionExpired || !time.Now().Before(sess.ExpiresAt) {
		return datatypes.Session{}, ErrExpired
	}
	return sess, nil
}

// requireWritable rejects expired and completed sessions.
func (s *PostgresStore) requireWritable(ctx context.Context, q queryer, sessionID string) (datatypes.Session, error) {
	sess, err := s.loadSession(ctx, q, sessionID)
	if err != nil {
		return datatypes.Session{}, err
	}
	if sess.Status == datatypes.SessionCompleted {
		return datatypes.Session{}, ErrClosed
	}
	return sess, nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*datatypes.SessionSnapshot, error) {
	sess, err := s.loadSession(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}

	params, tracking, err := s.readParameters(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, agent_type, metadata, created_at
		FROM conversation_history
		WHERE session_id = $1
		ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var history []datatypes.ChatMessage
	for rows.Next() {
		var msg datatypes.ChatMessage
		var agentType sql.NullString
		var metadata []byte
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &agentType,
			&metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		msg.SessionID = sessionID
		msg.AgentType = datatypes.AgentType(agentType.String)
		msg.Metadata = metadata
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &datatypes.SessionSnapshot{
		Session:    sess,
		Parameters: params,
		Tracking:   tracking,
		History:    history,
	}, nil
}

// AppendMessage implements Store.
func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID string, role datatypes.MessageRole,
	content string, agentType datatypes.AgentType, metadata json.RawMessage) (datatypes.ChatMessage, error) {

	msg := datatypes.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		AgentType: agentType,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.requireWritable(ctx, tx, sessionID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO conversation_history (session_id, role, content, agent_type, metadata, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id`,
			sessionID, role, content, nullable(string(agentType)),
			nullableBytes(metadata), msg.CreatedAt).Scan(&msg.ID)
	})
	if err != nil {
		return datatypes.ChatMessage{}, storeErr(err)
	}
	return msg, nil
}

// Touch implements Store.
func (s *PostgresStore) Touch(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_touched = $1 WHERE id = $2`,
		time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close(ctx context.Context, sessionID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.loadSession(ctx, tx, sessionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sessions SET status = $1 WHERE id = $2`,
			datatypes.SessionCompleted, sessionID)
		return err
	})
}

// Delete implements Store. Dependent rows cascade.
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepExpired implements Store.
func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = $1
		WHERE status = $2 AND expires_at <= $3`,
		datatypes.SessionExpired, datatypes.SessionActive, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ActiveCount implements Store.
func (s *PostgresStore) ActiveCount(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE status = $1 AND expires_at > $2`,
		datatypes.SessionActive, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// SetParameter implements Store. The value column and the tracking row are
// written in one transaction so no reader can see them out of sync.
func (s *PostgresStore) SetParameter(ctx context.Context, sessionID string,
	value datatypes.ParameterValue) (datatypes.ParameterTracking, error) {

	var tracking datatypes.ParameterTracking
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.requireWritable(ctx, tx, sessionID); err != nil {
			return err
		}

		params, err := readParamsRow(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		value.Apply(params)
		tracking = datatypes.TrackingFor(params)

		if _, err := tx.ExecContext(ctx, `
			UPDATE loan_parameters SET
				loan_amount = $1, annual_income = $2, employment_status = $3,
				credit_score = $4, loan_purpose = $5,
				debt_to_income_ratio = $6, employment_duration = $7
			WHERE session_id = $8`,
			params.LoanAmount, params.AnnualIncome, params.EmploymentStatus,
			params.CreditScore, params.LoanPurpose,
			params.DebtToIncomeRatio, params.EmploymentDuration, sessionID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE parameter_tracking SET
				has_loan_amount = $1, has_annual_income = $2, has_employment_status = $3,
				has_credit_score = $4, has_loan_purpose = $5, completion_percent = $6
			WHERE session_id = $7`,
			tracking.HasLoanAmount, tracking.HasAnnualIncome, tracking.HasEmploymentStatus,
			tracking.HasCreditScore, tracking.HasLoanPurpose, tracking.CompletionPercent,
			sessionID)
		return err
	})
	if err != nil {
		return datatypes.ParameterTracking{}, storeErr(err)
	}
	return tracking, nil
}

// Parameters implements Store.
func (s *PostgresStore) Parameters(ctx context.Context, sessionID string) (*datatypes.LoanParameters, datatypes.ParameterTracking, error) {
	if _, err := s.loadSession(ctx, s.db, sessionID); err != nil {
		return nil, datatypes.ParameterTracking{}, err
	}
	return s.readParameters(ctx, sessionID)
}

func (s *PostgresStore) readParameters(ctx context.Context, sessionID string) (*datatypes.LoanParameters, datatypes.ParameterTracking, error) {
	params, err := readParamsRow(ctx, s.db, sessionID)
	if err != nil {
		return nil, datatypes.ParameterTracking{}, storeErr(err)
	}

	var tracking datatypes.ParameterTracking
	err = s.db.QueryRowContext(ctx, `
		SELECT has_loan_amount, has_annual_income, has_employment_status,
			has_credit_score, has_loan_purpose, completion_percent
		FROM parameter_tracking WHERE session_id = $1`, sessionID).
		Scan(&tracking.HasLoanAmount, &tracking.HasAnnualIncome,
			&tracking.HasEmploymentStatus, &tracking.HasCreditScore,
			&tracking.HasLoanPurpose, &tracking.CompletionPercent)
	if err != nil {
		return nil, datatypes.ParameterTracking{}, storeErr(err)
	}
	return params, tracking, nil
}

func readParamsRow(ctx context.Context, q queryer, sessionID string) (*datatypes.LoanParameters, error) {
	params := &datatypes.LoanParameters{}
	err := q.QueryRowContext(ctx, `
		SELECT loan_amount, annual_income, employment_status, credit_score,
			loan_purpose, debt_to_income_ratio, employment_duration
		FROM loan_parameters WHERE session_id = $1`, sessionID).
		Scan(&params.LoanAmount, &params.AnnualIncome, &params.EmploymentStatus,
			&params.CreditScore, &params.LoanPurpose,
			&params.DebtToIncomeRatio, &params.EmploymentDuration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return params, nil
}

// ReplaceMatches implements Store with a delete-then-insert transaction.
func (s *PostgresStore) ReplaceMatches(ctx context.Context, sessionID string, matches []datatypes.LenderMatch) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.loadSession(ctx, tx, sessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM match_results WHERE session_id = $1`, sessionID); err != nil {
			return err
		}
		for _, m := range matches {
			reasons, _ := json.Marshal(m.Reasons)
			warnings, _ := json.Marshal(m.Warnings)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO match_results (session_id, lender_id, lender_name, interest_rate,
					eligibility_score, affordability_score, specialization_score,
					final_score, confidence, reasons, warnings, rank, calculated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
				sessionID, m.LenderID, m.LenderName, m.InterestRate,
				m.EligibilityScore, m.AffordabilityScore, m.SpecializationScore,
				m.FinalScore, m.Confidence, reasons, warnings, m.Rank, m.CalculatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	return storeErr(err)
}

// Matches implements Store.
func (s *PostgresStore) Matches(ctx context.Context, sessionID string) ([]datatypes.LenderMatch, error) {
	if _, err := s.loadSession(ctx, s.db, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT lender_id, lender_name, interest_rate, eligibility_score,
			affordability_score, specialization_score, final_score, confidence,
			reasons, warnings, rank, calculated_at
		FROM match_results
		WHERE session_id = $1
		ORDER BY final_score DESC, rank`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var matches []datatypes.LenderMatch
	for rows.Next() {
		var m datatypes.LenderMatch
		var reasons, warnings []byte
		if err := rows.Scan(&m.LenderID, &m.LenderName, &m.InterestRate,
			&m.EligibilityScore, &m.AffordabilityScore, &m.SpecializationScore,
			&m.FinalScore, &m.Confidence, &reasons, &warnings,
			&m.Rank, &m.CalculatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		m.SessionID = sessionID
		_ = json.Unmarshal(reasons, &m.Reasons)
		if len(warnings) > 0 {
			_ = json.Unmarshal(warnings, &m.Warnings)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// LockSession implements Store. Turn locks are process-local: a session's
// turns are all handled by the instance that owns the HTTP connection.
func (s *PostgresStore) LockSession(sessionID string) func() {
	s.lockMu.Lock()
	m, ok := s.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[sessionID] = m
	}
	s.lockMu.Unlock()

	m.Lock()
	return m.Unlock
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Shutdown closes the connection pool.
func (s *PostgresStore) Shutdown() error {
	return s.db.Close()
}

// =============================================================================
// Helpers
// =============================================================================

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// storeErr keeps taxonomy errors as-is and wraps everything else as
// storage unavailability.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrClosed) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

var _ Store = (*PostgresStore)(nil)
