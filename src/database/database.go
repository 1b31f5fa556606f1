package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/divrecon/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// InitDB opens the audit database and ensures the schema. Every completed
// reconciliation run is persisted here together with its breaks (raw advisory
// payloads included) and planned tasks.
func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS recon_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		tolerance TEXT NOT NULL,
		primary_count INTEGER NOT NULL,
		custodian_count INTEGER NOT NULL,
		break_count INTEGER NOT NULL,
		task_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recon_breaks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		isin TEXT NOT NULL,
		account TEXT NOT NULL,
		pay_date TEXT NOT NULL,
		reason_code TEXT NOT NULL,
		severity TEXT NOT NULL,
		explanation TEXT,
		recommendation TEXT,
		tags TEXT,
		confidence REAL,
		automation_mode TEXT,
		annotation_source TEXT,
		raw_payload TEXT,
		primary_record TEXT,
		custodian_record TEXT,
		FOREIGN KEY(run_id) REFERENCES recon_runs(id)
	);

	CREATE TABLE IF NOT EXISTS agent_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		sequence_number INTEGER NOT NULL,
		target_persona TEXT NOT NULL,
		priority INTEGER NOT NULL,
		needs_escalation BOOLEAN NOT NULL,
		payload TEXT NOT NULL,
		FOREIGN KEY(run_id) REFERENCES recon_runs(id)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.", "databasePath", databasePath)
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}
