package sqlite

const schemaSQL = `
-- Job queue table
-- One row per automation job; the row itself is the dispatch lock
-- (lock_id + locked_at form the lease)
CREATE TABLE IF NOT EXISTS job_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_job_id TEXT,
	provider TEXT NOT NULL,
	action TEXT NOT NULL,
	parameters TEXT NOT NULL DEFAULT '{}',
	priority INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 3,
	scheduled_for INTEGER,
	status TEXT NOT NULL DEFAULT 'pending',
	assigned_worker TEXT,
	lock_id TEXT,
	locked_at INTEGER,
	result TEXT,
	evidence TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER
);

-- Queue scan order: highest priority first, oldest first within a priority
CREATE INDEX IF NOT EXISTS idx_job_queue_status ON job_queue(status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_job_queue_lock ON job_queue(lock_id) WHERE lock_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_job_queue_external ON job_queue(external_job_id);

-- Append-only audit trail of status transitions
CREATE TABLE IF NOT EXISTS job_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL,
	status TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	details TEXT,
	FOREIGN KEY (job_id) REFERENCES job_queue(id)
);

CREATE INDEX IF NOT EXISTS idx_job_history_job ON job_history(job_id, timestamp ASC, id ASC);

-- Evidence screenshots extracted from worker results
-- (job_id, name) is unique so re-delivered results do not duplicate rows
CREATE TABLE IF NOT EXISTS job_screenshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT 'image/png',
	description TEXT,
	timestamp INTEGER NOT NULL,
	image_data BLOB,
	FOREIGN KEY (job_id) REFERENCES job_queue(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_job_screenshots_name ON job_screenshots(job_id, name);

-- Periodic samples of queue depth and worker availability
CREATE TABLE IF NOT EXISTS system_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	jobs_queued INTEGER NOT NULL DEFAULT 0,
	jobs_running INTEGER NOT NULL DEFAULT 0,
	jobs_completed INTEGER NOT NULL DEFAULT 0,
	jobs_failed INTEGER NOT NULL DEFAULT 0,
	worker_status TEXT
);

CREATE INDEX IF NOT EXISTS idx_system_metrics_ts ON system_metrics(timestamp DESC);

-- API user accounts (bcrypt password hashes)
CREATE TABLE IF NOT EXISTS api_users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	disabled INTEGER NOT NULL DEFAULT 0,
	last_login INTEGER,
	created_at INTEGER NOT NULL
);
`

// InitSchema initializes the database schema
func (s *SQLiteDB) InitSchema() error {
	_, err := s.db.Exec(schemaSQL)
	if err != nil {
		return err
	}
	s.logger.Info().Msg("Database schema initialized")

	// Run migrations for schema evolution
	if err := s.runMigrations(); err != nil {
		return err
	}

	return nil
}

// runMigrations checks for and applies schema migrations for existing databases
func (s *SQLiteDB) runMigrations() error {
	columnsQuery := `PRAGMA table_info(job_queue)`
	rows, err := s.db.Query(columnsQuery)
	if err != nil {
		return err
	}
	defer rows.Close()

	hasExternalJobID := false
	hasEvidence := false
	hasAssignedWorker := false

	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, dfltValue, pk interface{}
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		switch name {
		case "external_job_id":
			hasExternalJobID = true
		case "evidence":
			hasEvidence = true
		case "assigned_worker":
			hasAssignedWorker = true
		}
	}

	// Add missing columns
	if !hasExternalJobID {
		s.logger.Info().Msg("Running migration: Adding external_job_id column to job_queue")
		if _, err := s.db.Exec(`ALTER TABLE job_queue ADD COLUMN external_job_id TEXT`); err != nil {
			return err
		}
	}

	if !hasEvidence {
		s.logger.Info().Msg("Running migration: Adding evidence column to job_queue")
		if _, err := s.db.Exec(`ALTER TABLE job_queue ADD COLUMN evidence TEXT`); err != nil {
			return err
		}
	}

	if !hasAssignedWorker {
		s.logger.Info().Msg("Running migration: Adding assigned_worker column to job_queue")
		if _, err := s.db.Exec(`ALTER TABLE job_queue ADD COLUMN assigned_worker TEXT`); err != nil {
			return err
		}
	}

	if !hasExternalJobID || !hasEvidence || !hasAssignedWorker {
		s.logger.Info().Msg("Schema migrations completed successfully")
	}

	return nil
}
