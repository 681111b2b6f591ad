// Package ops implements the document operations shared by the SQL storage
// adapters. Adapters provide a *sql.DB and a dialect; everything else is
// plain SQL over the documents, field_values and unique_values tables.
package ops

import (
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nonibytes/fieldstore/fieldstore/storage"
)

// Store runs document operations against one database.
type Store struct {
	DB      *sql.DB
	Dialect storage.Dialect
	Log     *logrus.Entry
}

func NewStore(db *sql.DB, d storage.Dialect, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{DB: db, Dialect: d, Log: log}
}

func toMS(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}

func fromMS(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
