package store

// SchemaVersion is the only layout this package understands. There is no
// migration path; a database stamped with another version refuses to open.
const SchemaVersion = 1

// CreateSchemaMetaTableSQL stores the schema version stamp.
const CreateSchemaMetaTableSQL = `
CREATE TABLE IF NOT EXISTS schema_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

// CreateEventsTableSQL creates the event log. data and metadata hold
// snappy-compressed JSON.
const CreateEventsTableSQL = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    type TEXT NOT NULL,
    category TEXT NOT NULL,
    data BLOB,
    metadata BLOB
)`

// Index names are referenced by INDEXED BY clauses in scans.
const (
	idxEventsTimestamp    = "idx_events_timestamp"
	idxEventsType         = "idx_events_type"
	idxEventsCategory     = "idx_events_category"
	idxEventsTypeCategory = "idx_events_type_category"
)

// CreateEventsIndexesSQL creates the secondary indexes on the event log.
var CreateEventsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,
	`CREATE INDEX IF NOT EXISTS idx_events_category ON events(category)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type_category ON events(type, category)`,
}

// CreateReportsTableSQL creates the reports collection. body holds the
// snappy-compressed JSON report.
const CreateReportsTableSQL = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    body BLOB NOT NULL
)`

// CreateReportsIndexesSQL creates the secondary indexes on reports.
var CreateReportsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_reports_type ON reports(type)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at)`,
}

// StampSchemaVersionSQL records the version on first creation only.
const StampSchemaVersionSQL = `INSERT OR IGNORE INTO schema_meta (key, value) VALUES ('schema_version', ?)`

// ReadSchemaVersionSQL reads the stored version.
const ReadSchemaVersionSQL = `SELECT value FROM schema_meta WHERE key = 'schema_version'`

// AllSchemaSQL returns all statements needed to initialize the database.
func AllSchemaSQL() []string {
	statements := []string{
		CreateSchemaMetaTableSQL,
		CreateEventsTableSQL,
		CreateReportsTableSQL,
	}
	statements = append(statements, CreateEventsIndexesSQL...)
	statements = append(statements, CreateReportsIndexesSQL...)
	return statements
}
