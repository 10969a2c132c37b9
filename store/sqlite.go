package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/simpleiot/sensorstore/data"

	// tell sql to use sqlite
	_ "modernc.org/sqlite"
)

// DbVersion is the fixed schema version of the sensor store
const DbVersion = 1

// collection that holds the sensor entries
const collection = "sensorData"

// DbSqlite represents a SQLite sensor data store
type DbSqlite struct {
	db   *sql.DB
	file string
}

// openSqliteDb opens the store file, creating it if it does not exist, and
// upgrades it to DbVersion.
func openSqliteDb(ctx context.Context, file string) (*DbSqlite, error) {
	db, err := sql.Open("sqlite", file)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect")
	}

	// sqlite supports one writer; a single connection serializes writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "executing %q", p)
		}
	}

	ret := &DbSqlite{db: db, file: file}

	if err := ret.upgrade(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return ret, nil
}

// upgrade creates the collection if the store is new or older than DbVersion.
// This is the only place the collection's shape is defined.
func (sdb *DbSqlite) upgrade(ctx context.Context) error {
	var version int
	if err := sdb.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "get user_version")
	}

	exists, err := sdb.hasCollection(ctx)
	if err != nil {
		return err
	}

	if version >= DbVersion && exists {
		return nil
	}

	log.Printf("SensorStore: upgrading or creating the database, version %v -> %v", version, DbVersion)

	tx, err := sdb.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin upgrade")
	}
	defer tx.Rollback()

	if !exists {
		log.Println("SensorStore: creating collection:", collection)
		_, err = tx.ExecContext(ctx, `CREATE TABLE `+collection+` (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				type TEXT NOT NULL,
				data BLOB,
				timestamp TEXT NOT NULL)`)
		if err != nil {
			return errors.Wrap(err, "creating collection")
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", DbVersion))
	if err != nil {
		return errors.Wrap(err, "set user_version")
	}

	return errors.Wrap(tx.Commit(), "commit upgrade")
}

func (sdb *DbSqlite) hasCollection(ctx context.Context) (bool, error) {
	var count int
	err := sdb.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		collection).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "checking collection")
	}
	return count > 0, nil
}

// add appends one entry in its own transaction and returns the assigned key
func (sdb *DbSqlite) add(ctx context.Context, t data.SensorType, payload json.RawMessage,
	ts time.Time) (int64, error) {
	tx, err := sdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin add")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO `+collection+`(type, data, timestamp) VALUES (?, ?, ?)`,
		string(t), []byte(payload), data.FormatTimestamp(ts))
	if err != nil {
		return 0, errors.Wrap(err, "insert")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "insert id")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit add")
	}

	return id, nil
}

// clear removes all entries in one transaction. The key counter is kept.
func (sdb *DbSqlite) clear(ctx context.Context) error {
	tx, err := sdb.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin clear")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+collection); err != nil {
		return errors.Wrap(err, "delete entries")
	}

	return errors.Wrap(tx.Commit(), "commit clear")
}

// entries returns all entries in key order
func (sdb *DbSqlite) entries(ctx context.Context) ([]data.Entry, error) {
	rows, err := sdb.db.QueryContext(ctx,
		`SELECT id, type, data, timestamp FROM `+collection+` ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query entries")
	}
	defer rows.Close()

	var ret []data.Entry

	for rows.Next() {
		var e data.Entry
		var t, ts string
		var d []byte
		if err := rows.Scan(&e.ID, &t, &d, &ts); err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		e.Type = data.SensorType(t)
		e.Data = json.RawMessage(d)
		e.Timestamp, err = data.ParseTimestamp(ts)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %v timestamp", e.ID)
		}
		ret = append(ret, e)
	}

	return ret, errors.Wrap(rows.Err(), "iterate entries")
}

// count returns the number of entries in the collection
func (sdb *DbSqlite) count(ctx context.Context) (int, error) {
	var ret int
	err := sdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+collection).Scan(&ret)
	return ret, errors.Wrap(err, "count entries")
}

// Close the db
func (sdb *DbSqlite) Close() error {
	return sdb.db.Close()
}

// deleteSqliteDb removes the store file and the files sqlite keeps next to
// it. Files that do not exist are ignored.
func deleteSqliteDb(file string) error {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		err := os.Remove(file + suffix)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "delete store")
		}
	}
	return nil
}
