package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Repository interface {
	PutFile(ctx context.Context, f *MediaFile) error
	GetFile(ctx context.Context, id string) (*MediaFile, error)
	GetFileInfo(ctx context.Context, id string) (*MediaFile, error)
	FileExists(ctx context.Context, id string) (bool, error)

	PutProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*ProjectSummary, error)
	CountProjects(ctx context.Context) (int, error)

	CreateSavedAudio(ctx context.Context, a *SavedAudio) error
	GetSavedAudio(ctx context.Context, id string) (*SavedAudio, error)
	ListSavedAudio(ctx context.Context) ([]*SavedAudio, error)

	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	CompleteJob(ctx context.Context, id, outputFileID string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// PutFile inserts a blob. Blobs are immutable; re-putting an id is a no-op.
func (r *SQLiteRepository) PutFile(ctx context.Context, f *MediaFile) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	f.Size = int64(len(f.Data))
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media_files (id, name, mime_type, size, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, f.ID, f.Name, f.MimeType, f.Size, f.Data, formatTime(f.CreatedAt))
	return err
}

func (r *SQLiteRepository) GetFile(ctx context.Context, id string) (*MediaFile, error) {
	var f MediaFile
	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, mime_type, size, data, created_at FROM media_files WHERE id = ?
	`, id).Scan(&f.ID, &f.Name, &f.MimeType, &f.Size, &f.Data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

// GetFileInfo returns the file row without loading the blob.
func (r *SQLiteRepository) GetFileInfo(ctx context.Context, id string) (*MediaFile, error) {
	var f MediaFile
	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, mime_type, size, created_at FROM media_files WHERE id = ?
	`, id).Scan(&f.ID, &f.Name, &f.MimeType, &f.Size, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

func (r *SQLiteRepository) FileExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM media_files WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// PutProject upserts the project. UpdatedAt is pushed forward when needed so
// it strictly increases across saves of the same project; p is updated with
// the stored value.
func (r *SQLiteRepository) PutProject(ctx context.Context, p *Project) error {
	doc, err := json.Marshal(p.Document)
	if err != nil {
		return fmt.Errorf("failed to encode project document: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	var prev string
	err = tx.QueryRowContext(ctx, "SELECT updated_at FROM projects WHERE id = ?", p.ID).Scan(&prev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		p.UpdatedAt = NextUpdatedAt(parseTime(prev), p.UpdatedAt)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, string(doc), formatTime(p.CreatedAt), formatTime(p.UpdatedAt)); err != nil {
		return err
	}
	return tx.Commit()
}

// NextUpdatedAt returns candidate, or prev+1ms when candidate does not move
// forward.
func NextUpdatedAt(prev, candidate time.Time) time.Time {
	if candidate.After(prev) {
		return candidate
	}
	return prev.Add(time.Millisecond)
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	var doc, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, document, created_at, updated_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &doc, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(doc), &p.Document); err != nil {
		return nil, fmt.Errorf("failed to decode project %s: %w", id, err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*ProjectSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at FROM projects ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ProjectSummary
	for rows.Next() {
		var p ProjectSummary
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CountProjects(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&n)
	return n, err
}

func (r *SQLiteRepository) CreateSavedAudio(ctx context.Context, a *SavedAudio) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO saved_audio (id, file_id, name, text, voice_id, history_item_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.FileID, a.Name, a.Text, nullString(a.VoiceID), nullString(a.HistoryItemID), formatTime(a.CreatedAt))
	return err
}

const savedAudioColumns = `id, file_id, name, text, voice_id, history_item_id, created_at`

func (r *SQLiteRepository) GetSavedAudio(ctx context.Context, id string) (*SavedAudio, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+savedAudioColumns+" FROM saved_audio WHERE id = ?", id)
	a, err := scanSavedAudio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *SQLiteRepository) ListSavedAudio(ctx context.Context) ([]*SavedAudio, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+savedAudioColumns+" FROM saved_audio ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SavedAudio
	for rows.Next() {
		a, err := scanSavedAudio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSavedAudio(s scanner) (*SavedAudio, error) {
	var a SavedAudio
	var voiceID, historyID sql.NullString
	var createdAt string
	if err := s.Scan(&a.ID, &a.FileID, &a.Name, &a.Text, &voiceID, &historyID, &createdAt); err != nil {
		return nil, err
	}
	a.VoiceID = voiceID.String
	a.HistoryItemID = historyID.String
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = j.CreatedAt
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, project_id, status, progress, error, output_file_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.ProjectID, j.Status, j.Progress, nullString(j.Error), nullString(j.OutputFileID),
		formatTime(j.CreatedAt), formatTime(j.UpdatedAt))
	return err
}

const jobColumns = `id, project_id, status, progress, error, output_file_id, created_at, updated_at`

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+jobColumns+" FROM jobs ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// ListPendingJobs returns queued exports, oldest first.
func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE status = ? ORDER BY created_at ASC", JobStatusPending)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var errMsg, output sql.NullString
	var createdAt, updatedAt string
	if err := s.Scan(&j.ID, &j.ProjectID, &j.Status, &j.Progress, &errMsg, &output, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.Error = errMsg.String
	j.OutputFileID = output.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) CompleteJob(ctx context.Context, id, outputFileID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = 100, error = NULL, output_file_id = ?, updated_at = ? WHERE id = ?
	`, JobStatusCompleted, outputFileID, formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
