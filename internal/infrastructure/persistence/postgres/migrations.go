package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CONVERSATION BUFFERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS conversation_buffers (
    student_id TEXT PRIMARY KEY,
    snapshot JSONB NOT NULL,
    checksum BYTEA NOT NULL,
    message_count INTEGER NOT NULL DEFAULT 0,
    last_consolidation TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_conversation_buffers_updated_at
    ON conversation_buffers (updated_at);
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_conversation_buffers",
			UpSQL:   migration001Up,
		},
	}
}
