package sqlite

import "github.com/nonibytes/fieldstore/fieldstore/storage"

const ddlBase = `
CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
  collection TEXT NOT NULL,
  id         TEXT NOT NULL,
  data       TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS field_values (
  collection TEXT NOT NULL,
  doc_id     TEXT NOT NULL,
  path       TEXT NOT NULL,
  text_value TEXT,
  num_value  REAL
);
CREATE INDEX IF NOT EXISTS field_values_text ON field_values(collection, path, text_value);
CREATE INDEX IF NOT EXISTS field_values_num ON field_values(collection, path, num_value);
CREATE INDEX IF NOT EXISTS field_values_doc ON field_values(collection, doc_id);

CREATE TABLE IF NOT EXISTS unique_values (
  collection TEXT NOT NULL,
  path       TEXT NOT NULL,
  value_key  TEXT NOT NULL,
  doc_id     TEXT NOT NULL,
  PRIMARY KEY (collection, path, value_key)
);
CREATE INDEX IF NOT EXISTS unique_values_doc ON unique_values(collection, doc_id);
`

var SQLTemplates = storage.SQL{
	GetMeta: "SELECT value FROM meta WHERE key = ?1",
	SetMeta: "INSERT INTO meta(key,value) VALUES(?1,?2) ON CONFLICT(key) DO UPDATE SET value=excluded.value",

	GetDocument:    "SELECT data, created_at, updated_at FROM documents WHERE collection = ?1 AND id = ?2",
	InsertDocument: "INSERT INTO documents(collection, id, data, created_at, updated_at) VALUES(?1, ?2, ?3, ?4, ?5)",
	UpdateDocument: "UPDATE documents SET data = ?3, updated_at = ?4 WHERE collection = ?1 AND id = ?2",
	DeleteDocument: "DELETE FROM documents WHERE collection = ?1 AND id = ?2",

	InsertValue:  "INSERT INTO field_values(collection, doc_id, path, text_value, num_value) VALUES(?1, ?2, ?3, ?4, ?5)",
	DeleteValues: "DELETE FROM field_values WHERE collection = ?1 AND doc_id = ?2",

	FindUnique:    "SELECT doc_id FROM unique_values WHERE collection = ?1 AND path = ?2 AND value_key = ?3",
	InsertUnique:  "INSERT INTO unique_values(collection, path, value_key, doc_id) VALUES(?1, ?2, ?3, ?4)",
	DeleteUniques: "DELETE FROM unique_values WHERE collection = ?1 AND doc_id = ?2",
}
