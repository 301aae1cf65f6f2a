// Package flightlog persists received telemetry in a SQLite database so a
// flight can be replayed or post-processed after the balloon is down.
package flightlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/Mika-1818/ReSonde/receiver"
	"github.com/Mika-1818/ReSonde/telemetry"
)

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS packets (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    received_at INTEGER NOT NULL,
    sn          INTEGER NOT NULL,
    counter     INTEGER NOT NULL,
    time        INTEGER NOT NULL,
    lat         INTEGER NOT NULL,
    lon         INTEGER NOT NULL,
    alt         INTEGER NOT NULL,
    v_speed     INTEGER NOT NULL,
    e_speed     INTEGER NOT NULL,
    n_speed     INTEGER NOT NULL,
    sats        INTEGER NOT NULL,
    temp        INTEGER NOT NULL,
    rh          INTEGER NOT NULL,
    battery     INTEGER NOT NULL,
    rssi        REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_packets_sn ON packets (sn);
`

const insertPacketSQL = `
INSERT INTO packets (received_at,
                     sn, counter, time,
                     lat, lon, alt,
                     v_speed, e_speed, n_speed,
                     sats, temp, rh, battery, rssi)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectPacketsSQL = `
SELECT received_at,
       sn, counter, time,
       lat, lon, alt,
       v_speed, e_speed, n_speed,
       sats, temp, rh, battery, rssi
FROM packets
WHERE sn = ?
ORDER BY id`

// Store is a SQLite-backed flight log. It implements receiver.Consumer,
// so it can be registered directly on the receive pipeline.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
}

// Open opens (creating if needed) the database at path and initializes
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", path))
	if err != nil {
		return nil, errors.Wrap(err, "unable to open flight log")
	}
	if _, err = db.Exec(initSchemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "unable to initialize flight log schema")
	}
	insert, err := db.Prepare(insertPacketSQL)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "unable to prepare insert statement")
	}
	return &Store{db: db, insert: insert}, nil
}

// Append writes one reading to the log.
func (s *Store) Append(r receiver.Reading) error {
	p := &r.Packet
	_, err := s.insert.Exec(
		r.ReceivedAt.UnixNano(),
		p.SN, p.Counter, p.Time,
		p.Lat, p.Lon, p.Alt,
		p.VSpeed, p.ESpeed, p.NSpeed,
		p.Sats, p.Temp, p.RH, p.Battery, r.RSSI)
	return errors.Wrap(err, "unable to append packet to flight log")
}

// Consume makes Store a receiver.Consumer.
func (s *Store) Consume(r receiver.Reading) error { return s.Append(r) }

// Readings returns every logged packet of the given tracker serial
// number, in reception order.
func (s *Store) Readings(sn uint16) ([]receiver.Reading, error) {
	rows, err := s.db.Query(selectPacketsSQL, sn)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query flight log")
	}
	defer rows.Close()

	var out []receiver.Reading
	for rows.Next() {
		var (
			receivedAt int64
			p          telemetry.Packet
			rssi       float32
		)
		if err := rows.Scan(&receivedAt,
			&p.SN, &p.Counter, &p.Time,
			&p.Lat, &p.Lon, &p.Alt,
			&p.VSpeed, &p.ESpeed, &p.NSpeed,
			&p.Sats, &p.Temp, &p.RH, &p.Battery, &rssi); err != nil {
			return nil, errors.Wrap(err, "unable to scan packet row")
		}
		out = append(out, receiver.Reading{
			Packet:     p,
			RSSI:       rssi,
			ReceivedAt: time.Unix(0, receivedAt),
		})
	}
	return out, errors.Wrap(rows.Err(), "unable to iterate flight log")
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.insert.Close(); err != nil {
		_ = s.db.Close()
		return errors.Wrap(err, "unable to close insert statement")
	}
	return errors.Wrap(s.db.Close(), "unable to close flight log")
}
