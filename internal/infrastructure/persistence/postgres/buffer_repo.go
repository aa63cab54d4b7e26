package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/langflow/ai-teacher/internal/application/orchestrator"
	"github.com/langflow/ai-teacher/internal/domain/conversation"
)

// ErrChecksumMismatch is returned when a stored snapshot no longer matches
// the checksum written with it.
var ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", conversation.ErrInvalidSnapshot)

// ══════════════════════════════════════════════════════════════════════════════
// BUFFER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BufferRepository implements orchestrator.BufferStore for PostgreSQL.
type BufferRepository struct {
	conn *Connection
	now  func() time.Time
}

// NewBufferRepository creates a new BufferRepository.
func NewBufferRepository(conn *Connection) *BufferRepository {
	return &BufferRepository{conn: conn, now: time.Now}
}

// Load returns the stored snapshot for a student, or
// orchestrator.ErrStoreNotFound.
func (r *BufferRepository) Load(ctx context.Context, studentID string) (conversation.Snapshot, error) {
	query := `
		SELECT snapshot, checksum
		FROM conversation_buffers
		WHERE student_id = $1
	`

	var data, sum []byte
	err := r.conn.QueryRow(ctx, query, studentID).Scan(&data, &sum)
	if err != nil {
		if IsNoRows(err) {
			return conversation.Snapshot{}, orchestrator.ErrStoreNotFound
		}
		return conversation.Snapshot{}, fmt.Errorf("failed to load buffer %s: %w", studentID, err)
	}

	snap, err := decodeSnapshot(data, sum)
	if err != nil {
		return conversation.Snapshot{}, fmt.Errorf("buffer %s: %w", studentID, err)
	}
	return snap, nil
}

// Save upserts the snapshot. Rows whose checksum is unchanged are not
// rewritten.
func (r *BufferRepository) Save(ctx context.Context, snap conversation.Snapshot) error {
	data, sum, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conversation_buffers (
			student_id, snapshot, checksum, message_count, last_consolidation, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			checksum = EXCLUDED.checksum,
			message_count = EXCLUDED.message_count,
			last_consolidation = EXCLUDED.last_consolidation,
			updated_at = EXCLUDED.updated_at
		WHERE conversation_buffers.checksum <> EXCLUDED.checksum
	`

	_, err = r.conn.Exec(ctx, query,
		snap.StudentID,
		data,
		sum,
		len(snap.RecentContext),
		snap.LastConsolidation,
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save buffer %s: %w", snap.StudentID, err)
	}
	return nil
}

// Delete removes a student's stored buffer.
func (r *BufferRepository) Delete(ctx context.Context, studentID string) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM conversation_buffers WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("failed to delete buffer %s: %w", studentID, err)
	}
	return nil
}

// DeleteOlderThan removes buffers not written since cutoff.
func (r *BufferRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM conversation_buffers WHERE updated_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale buffers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of stored buffers.
func (r *BufferRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.conn.QueryRow(ctx, `SELECT count(*) FROM conversation_buffers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count buffers: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Encoding
// ─────────────────────────────────────────────────────────────────────────────

// encodeSnapshot returns the JSON form and its BLAKE2b-256 checksum. The JSON
// encoding of a Snapshot is deterministic: map keys are sorted and the profile
// set is stored sorted.
func encodeSnapshot(snap conversation.Snapshot) ([]byte, []byte, error) {
	if err := snap.Validate(); err != nil {
		return nil, nil, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	sum := blake2b.Sum256(data)
	return data, sum[:], nil
}

// decodeSnapshot parses data and verifies it against sum. JSONB does not keep
// the original bytes, so the checksum is computed over the re-encoded value.
func decodeSnapshot(data, sum []byte) (conversation.Snapshot, error) {
	var snap conversation.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return conversation.Snapshot{}, fmt.Errorf("%w: %v", conversation.ErrInvalidSnapshot, err)
	}

	_, got, err := encodeSnapshot(snap)
	if err != nil {
		return conversation.Snapshot{}, err
	}
	if !bytes.Equal(got, sum) {
		return conversation.Snapshot{}, ErrChecksumMismatch
	}
	return snap, nil
}
