package sqlite

import "database/sql"

// Amounts are stored as decimal text so they round-trip exactly.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    link TEXT NOT NULL,
    receipt_id TEXT NOT NULL,
    receipt_total TEXT NOT NULL,
    store_name TEXT NOT NULL,
    address TEXT NOT NULL,
    cashier TEXT NOT NULL,
    receipt_date TEXT NOT NULL,
    receipt_time TEXT NOT NULL,
    mode TEXT NOT NULL,
    allocated_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS receipt_items (
    session_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    item_id TEXT NOT NULL,
    name TEXT NOT NULL,
    unit_price TEXT NOT NULL,
    quantity TEXT NOT NULL,
    line_total TEXT NOT NULL,
    PRIMARY KEY (session_id, position),
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS participants (
    session_id TEXT NOT NULL,
    id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    amount TEXT NOT NULL,
    reference TEXT NOT NULL,
    status TEXT NOT NULL,
    PRIMARY KEY (session_id, id),
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS participant_items (
    session_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    item_id TEXT NOT NULL,
    PRIMARY KEY (session_id, participant_id, position),
    FOREIGN KEY (session_id, participant_id) REFERENCES participants(session_id, id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_receipt_items_session_id ON receipt_items(session_id);
CREATE INDEX IF NOT EXISTS idx_participants_session_id ON participants(session_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
