// Package testutil builds throwaway Zotero databases for tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/starford/zotindex/internal/sqlitedb"
)

// Zotero item type ids used by the fixture schema.
const (
	TypeNote           = 1
	TypeBook           = 2
	TypeJournalArticle = 4
	TypeAttachment     = 14
)

const zoteroSchemaSQL = `
CREATE TABLE itemTypes (itemTypeID INTEGER PRIMARY KEY, typeName TEXT NOT NULL);
CREATE TABLE items (
	itemID     INTEGER PRIMARY KEY,
	itemTypeID INT NOT NULL,
	dateAdded  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	libraryID  INT,
	key        TEXT NOT NULL UNIQUE
);
CREATE TABLE fields (fieldID INTEGER PRIMARY KEY, fieldName TEXT NOT NULL UNIQUE);
CREATE TABLE itemDataValues (valueID INTEGER PRIMARY KEY, value UNIQUE);
CREATE TABLE itemData (itemID INT, fieldID INT, valueID INT);
CREATE TABLE creators (creatorID INTEGER PRIMARY KEY, firstName TEXT, lastName TEXT);
CREATE TABLE creatorTypes (creatorTypeID INTEGER PRIMARY KEY, creatorType TEXT NOT NULL UNIQUE);
CREATE TABLE itemCreators (itemID INT, creatorID INT, creatorTypeID INT, orderIndex INT);
CREATE TABLE collections (collectionID INTEGER PRIMARY KEY, collectionName TEXT, key TEXT UNIQUE);
CREATE TABLE collectionItems (collectionID INT, itemID INT);
CREATE TABLE tags (tagID INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE);
CREATE TABLE itemTags (itemID INT, tagID INT);
CREATE TABLE itemAttachments (itemID INTEGER PRIMARY KEY, parentItemID INT, path TEXT);
CREATE TABLE itemNotes (itemID INTEGER PRIMARY KEY, parentItemID INT, note TEXT);

INSERT INTO itemTypes VALUES (1, 'note'), (2, 'book'), (4, 'journalArticle'), (14, 'attachment');
`

// Field is one metadata value.
type Field struct {
	Name, Value string
}

// Creator is one item creator.
type Creator struct {
	Given, Family, Role string
}

// Collection is a collection the item belongs to.
type Collection struct {
	Name, Key string
}

// Attachment is a child attachment; Path is the raw Zotero path column
// (e.g. "storage:paper.pdf").
type Attachment struct {
	Key, Path string
}

// Item describes one top-level item to insert.
type Item struct {
	ID           int64
	Key          string
	TypeID       int
	LibraryID    *int64
	DateAdded    string
	Fields       []Field
	Creators     []Creator
	// CreatorOrder overrides each creator's orderIndex; by default it is
	// the creator's position in Creators.
	CreatorOrder []int
	Tags         []string
	Collections  []Collection
	Attachments  []Attachment
	Notes        []string
}

// Zotero is a fixture database.
type Zotero struct {
	Path string
	t    *testing.T
	db   *sql.DB
	next int64
}

// NewZotero creates an empty Zotero database in a temp directory.
func NewZotero(t *testing.T) *Zotero {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zotero.sqlite")
	// Rollback journal, not WAL: a plain byte copy of Path must see every write.
	db, err := sql.Open(sqlitedb.DriverName, path)
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(zoteroSchemaSQL); err != nil {
		t.Fatalf("zotero schema: %v", err)
	}
	return &Zotero{Path: path, t: t, db: db, next: 1000}
}

// DB returns the fixture's writable connection.
func (z *Zotero) DB() *sql.DB {
	return z.db
}

// Exec runs a statement against the fixture, failing the test on error.
func (z *Zotero) Exec(query string, args ...any) {
	z.t.Helper()
	if _, err := z.db.Exec(query, args...); err != nil {
		z.t.Fatalf("exec %q: %v", query, err)
	}
}

func (z *Zotero) id(q string, args ...any) int64 {
	z.t.Helper()
	var id int64
	if err := z.db.QueryRow(q, args...).Scan(&id); err != nil {
		z.t.Fatalf("lookup %q: %v", q, err)
	}
	return id
}

func (z *Zotero) nextID() int64 {
	z.next++
	return z.next
}

// AddItem inserts it together with all of its related rows and returns the
// item id.
func (z *Zotero) AddItem(it Item) int64 {
	z.t.Helper()
	if it.ID == 0 {
		it.ID = z.nextID()
	}
	if it.DateAdded == "" {
		it.DateAdded = "2020-01-01 00:00:00"
	}
	var lib any
	if it.LibraryID != nil {
		lib = *it.LibraryID
	}
	z.Exec(`INSERT INTO items (itemID, itemTypeID, dateAdded, libraryID, key) VALUES (?, ?, ?, ?, ?)`,
		it.ID, it.TypeID, it.DateAdded, lib, it.Key)

	for _, f := range it.Fields {
		z.Exec(`INSERT OR IGNORE INTO fields (fieldName) VALUES (?)`, f.Name)
		z.Exec(`INSERT OR IGNORE INTO itemDataValues (value) VALUES (?)`, f.Value)
		z.Exec(`INSERT INTO itemData (itemID, fieldID, valueID) VALUES (?,
			(SELECT fieldID FROM fields WHERE fieldName = ?),
			(SELECT valueID FROM itemDataValues WHERE value = ?))`, it.ID, f.Name, f.Value)
	}

	for i, c := range it.Creators {
		order := i
		if i < len(it.CreatorOrder) {
			order = it.CreatorOrder[i]
		}
		z.Exec(`INSERT INTO creators (firstName, lastName) VALUES (?, ?)`, c.Given, c.Family)
		creatorID := z.id(`SELECT max(creatorID) FROM creators`)
		z.Exec(`INSERT OR IGNORE INTO creatorTypes (creatorType) VALUES (?)`, c.Role)
		z.Exec(`INSERT INTO itemCreators (itemID, creatorID, creatorTypeID, orderIndex) VALUES (?, ?,
			(SELECT creatorTypeID FROM creatorTypes WHERE creatorType = ?), ?)`, it.ID, creatorID, c.Role, order)
	}

	for _, tag := range it.Tags {
		z.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag)
		z.Exec(`INSERT INTO itemTags (itemID, tagID) VALUES (?, (SELECT tagID FROM tags WHERE name = ?))`, it.ID, tag)
	}

	for _, c := range it.Collections {
		z.Exec(`INSERT OR IGNORE INTO collections (collectionName, key) VALUES (?, ?)`, c.Name, c.Key)
		z.Exec(`INSERT INTO collectionItems (collectionID, itemID) VALUES ((SELECT collectionID FROM collections WHERE key = ?), ?)`, c.Key, it.ID)
	}

	for _, a := range it.Attachments {
		aid := z.nextID()
		z.Exec(`INSERT INTO items (itemID, itemTypeID, dateAdded, libraryID, key) VALUES (?, ?, ?, ?, ?)`,
			aid, TypeAttachment, it.DateAdded, lib, a.Key)
		z.Exec(`INSERT INTO itemAttachments (itemID, parentItemID, path) VALUES (?, ?, ?)`, aid, it.ID, a.Path)
	}

	for i, n := range it.Notes {
		nid := z.nextID()
		z.Exec(`INSERT INTO items (itemID, itemTypeID, dateAdded, libraryID, key) VALUES (?, ?, ?, ?, ?)`,
			nid, TypeNote, it.DateAdded, lib, it.Key+"N"+string(rune('A'+i)))
		z.Exec(`INSERT INTO itemNotes (itemID, parentItemID, note) VALUES (?, ?, ?)`, nid, it.ID, n)
	}

	return it.ID
}

// JaneDoe returns the single-item library used by end-to-end tests.
func JaneDoe() Item {
	return Item{
		ID:     1,
		Key:    "C3KEUQJW",
		TypeID: TypeJournalArticle,
		Fields: []Field{
			{Name: "title", Value: "Test"},
			{Name: "date", Value: "2013-05-01"},
		},
		Creators: []Creator{{Given: "Jane", Family: "Doe", Role: "author"}},
		Tags:     []string{"history"},
	}
}
