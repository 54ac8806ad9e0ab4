package postgresql

// migrations returns the versioned schema for the PostgreSQL backend.
// Versions are applied in ascending order; never edit a shipped version,
// add a new one.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				nodes      JSONB NOT NULL DEFAULT '[]',
				edges      JSONB NOT NULL DEFAULT '[]',
				variables  JSONB,
				settings   JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS environments (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				variables  JSONB,
				secrets    JSONB,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);
		`,
		3: `
			CREATE TABLE IF NOT EXISTS runs (
				id             TEXT PRIMARY KEY,
				workflow_id    TEXT NOT NULL,
				environment_id TEXT,
				status         TEXT NOT NULL,
				worker_id      TEXT,
				variables      JSONB,
				node_statuses  JSONB,
				failed_nodes   JSONB,
				error          TEXT,
				created_at     TIMESTAMPTZ NOT NULL,
				started_at     TIMESTAMPTZ,
				completed_at   TIMESTAMPTZ,
				duration_ms    BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX IF NOT EXISTS idx_runs_workflow_id ON runs (workflow_id);
			CREATE INDEX IF NOT EXISTS idx_runs_pending ON runs (created_at) WHERE status = 'pending';
		`,
	}
}
