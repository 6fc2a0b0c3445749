package library

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS definitions (
	key TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	datum TEXT NOT NULL DEFAULT '',
	ellipsoid TEXT NOT NULL DEFAULT '',
	grp TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	epsg INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS native_groups (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	ord INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS native_group_members (
	group_name TEXT NOT NULL,
	key TEXT NOT NULL,
	ord INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (group_name, key)
) WITHOUT ROWID;
`

// SQLiteLibrary is a Store persisted in a SQLite database.
type SQLiteLibrary struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// OpenSQLite opens (creating if needed) the library at path. A library opened
// with readOnly set, or whose file the process cannot write, rejects mutations.
func OpenSQLite(path string, readOnly bool) (*SQLiteLibrary, error) {
	dsn := path
	if readOnly {
		dsn = "file:" + path + "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if !readOnly {
		if _, err := db.Exec(sqliteSchema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &SQLiteLibrary{db: db, path: path, readOnly: readOnly || !Writable(path)}, nil
}

// Close releases the database handle.
func (l *SQLiteLibrary) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *SQLiteLibrary) Path() string { return l.path }

func (l *SQLiteLibrary) Enumerate() iter.Seq[string] {
	return func(yield func(string) bool) {
		keys, err := l.keys()
		if err != nil {
			logrus.WithField("library", l.path).Warnf("enumerate: %v", err)
			return
		}
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}
}

func (l *SQLiteLibrary) keys() ([]string, error) {
	rows, err := l.db.Query(`SELECT key FROM definitions ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (l *SQLiteLibrary) Lookup(key string) (Definition, error) {
	row := l.db.QueryRow(`
		SELECT key, description, datum, ellipsoid, grp, location, source, epsg
		FROM definitions WHERE key = ?`, key)

	var d Definition
	err := row.Scan(&d.Key, &d.Description, &d.Datum, &d.Ellipsoid, &d.Group, &d.Location, &d.Source, &d.EPSG)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Definition{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	case err != nil:
		// Row exists but a column does not convert (e.g. a non-numeric epsg).
		return Definition{}, fmt.Errorf("%s: %w: %v", key, ErrConstruction, err)
	}
	return d, nil
}

func (l *SQLiteLibrary) Create(template Definition) (Definition, error) {
	if l.readOnly {
		return Definition{}, ErrReadOnly
	}
	key, err := createKey(template.Key, l.Contains)
	if err != nil {
		return Definition{}, err
	}
	d := template
	d.Key = key
	if err := l.insert(d); err != nil {
		return Definition{}, fmt.Errorf("create %s: %w", key, err)
	}
	return d, nil
}

// Put inserts or overwrites def regardless of the read-only flag. It is the
// import path used by export-db, not a library operation.
func (l *SQLiteLibrary) Put(defs ...Definition) error {
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO definitions (key, description, datum, ellipsoid, grp, location, source, epsg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, d := range defs {
		if _, err := stmt.Exec(d.Key, d.Description, d.Datum, d.Ellipsoid, d.Group, d.Location, d.Source, d.EPSG); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("put %s: %w", d.Key, err)
		}
	}
	_ = stmt.Close()
	return tx.Commit()
}

// PutGroup records a native group and its ordered members.
func (l *SQLiteLibrary) PutGroup(g NativeGroup, ord int) error {
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO native_groups (name, description, ord) VALUES (?, ?, ?)`,
		g.Name, g.Description, ord); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("put group %s: %w", g.Name, err)
	}
	if g.Members != nil {
		i := 0
		for key := range g.Members() {
			if _, err := tx.Exec(`INSERT OR REPLACE INTO native_group_members (group_name, key, ord) VALUES (?, ?, ?)`,
				g.Name, key, i); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("put group member %s/%s: %w", g.Name, key, err)
			}
			i++
		}
	}
	return tx.Commit()
}

func (l *SQLiteLibrary) insert(d Definition) error {
	_, err := l.db.Exec(`
		INSERT INTO definitions (key, description, datum, ellipsoid, grp, location, source, epsg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Key, d.Description, d.Datum, d.Ellipsoid, d.Group, d.Location, d.Source, d.EPSG)
	return err
}

func (l *SQLiteLibrary) Delete(key string) error {
	if l.readOnly {
		return ErrReadOnly
	}
	res, err := l.db.Exec(`DELETE FROM definitions WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	_, _ = l.db.Exec(`DELETE FROM native_group_members WHERE key = ?`, key) // best-effort
	return nil
}

func (l *SQLiteLibrary) Replace(oldKey string, def Definition) error {
	if l.readOnly {
		return ErrReadOnly
	}
	if !l.Contains(oldKey) {
		return fmt.Errorf("replace %s: %w", oldKey, ErrNotFound)
	}
	if def.Key != oldKey && l.Contains(def.Key) {
		return fmt.Errorf("replace %s with %s: %w", oldKey, def.Key, ErrExists)
	}
	_, err := l.db.Exec(`
		UPDATE definitions
		SET key = ?, description = ?, datum = ?, ellipsoid = ?, grp = ?, location = ?, source = ?, epsg = ?
		WHERE key = ?`,
		def.Key, def.Description, def.Datum, def.Ellipsoid, def.Group, def.Location, def.Source, def.EPSG, oldKey)
	if err != nil {
		return fmt.Errorf("replace %s: %w", oldKey, err)
	}
	return nil
}

func (l *SQLiteLibrary) IsReadOnly() bool { return l.readOnly }

func (l *SQLiteLibrary) Contains(key string) bool {
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM definitions WHERE key = ?`, key).Scan(&n); err != nil {
		return false
	}
	return n > 0
}

func (l *SQLiteLibrary) Count() int {
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM definitions`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// NativeGroups lists the stored native groups. Member keys are read each
// time the returned sequence is iterated.
func (l *SQLiteLibrary) NativeGroups() []NativeGroup {
	rows, err := l.db.Query(`SELECT name, description FROM native_groups ORDER BY ord, name`)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []NativeGroup
	for rows.Next() {
		var name, desc string
		if err := rows.Scan(&name, &desc); err != nil {
			continue
		}
		out = append(out, NativeGroup{
			Name:        name,
			Description: desc,
			Members:     func() iter.Seq[string] { return l.groupMembers(name) },
		})
	}
	return out
}

func (l *SQLiteLibrary) groupMembers(group string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rows, err := l.db.Query(`SELECT key FROM native_group_members WHERE group_name = ? ORDER BY ord`, group)
		if err != nil {
			return
		}
		var keys []string
		for rows.Next() {
			var k string
			if rows.Scan(&k) == nil {
				keys = append(keys, k)
			}
		}
		_ = rows.Close()
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}
}

var (
	_ Store       = (*SQLiteLibrary)(nil)
	_ GroupLister = (*SQLiteLibrary)(nil)
)
