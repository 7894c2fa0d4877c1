package zotero

import (
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/zotindex/internal/apperr"
	"github.com/starford/zotindex/internal/models"
	"github.com/starford/zotindex/internal/sqlitedb"
	"github.com/starford/zotindex/internal/testutil"
)

func extractor(t *testing.T, z *testutil.Zotero, opts ExtractorOptions) *Extractor {
	t.Helper()
	db, err := sqlitedb.OpenReadOnly(z.Path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewExtractor(db, opts)
}

func TestExtractEndToEndItem(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.JaneDoe())

	items, err := extractor(t, z, ExtractorOptions{}).ExtractAll()
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it, ok := items["C3KEUQJW"]
	if !ok {
		t.Fatalf("item C3KEUQJW missing: %v", items)
	}

	if it.Type != "journalArticle" || it.Library != "0" {
		t.Errorf("type/library = %q/%q", it.Type, it.Library)
	}
	want := models.Creator{Given: "Jane", Family: "Doe", Role: "author", Index: 0}
	if len(it.Creators) != 1 || it.Creators[0] != want {
		t.Errorf("creators = %+v", it.Creators)
	}
	if title, _ := it.Data.Get("title"); title != "Test" {
		t.Errorf("title = %q", title)
	}
	if date, _ := it.Data.Get("date"); date != "2013" {
		t.Errorf("date = %q, want 2013", date)
	}
	if len(it.Tags) != 1 || it.Tags[0].Name != "history" || it.Tags[0].ID == 0 {
		t.Errorf("tags = %+v", it.Tags)
	}
	if len(it.Collections) != 0 || len(it.Attachments) != 0 || len(it.Notes) != 0 {
		t.Errorf("unexpected children: %+v", it)
	}

	raw, err := json.Marshal(it)
	if err != nil {
		t.Fatal(err)
	}
	wantJSON := `{"key":"C3KEUQJW","library":"0","type":"journalArticle",` +
		`"creators":[{"given":"Jane","family":"Doe","type":"author","index":0}],` +
		`"data":{"title":"Test","date":"2013"},"collections":[],` +
		`"tags":[{"name":"history","id":` + jsonInt(it.Tags[0].ID) + `}],"attachments":[],"notes":[]}`
	if string(raw) != wantJSON {
		t.Errorf("json =\n%s\nwant\n%s", raw, wantJSON)
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestExcludedTypesNeverTopLevel(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.Item{
		Key:         "PARENT01",
		TypeID:      testutil.TypeBook,
		Attachments: []testutil.Attachment{{Key: "ATTACH01", Path: "storage:book.pdf"}},
		Notes:       []string{"<p>child note</p>"},
	})
	z.AddItem(testutil.Item{Key: "LOOSENOTE", TypeID: testutil.TypeNote})

	items, err := extractor(t, z, ExtractorOptions{}).ExtractAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d top-level items, want 1: %v", len(items), items)
	}
	for _, k := range []string{"ATTACH01", "LOOSENOTE", "PARENT01NA"} {
		if _, ok := items[k]; ok {
			t.Errorf("excluded item %s emitted at top level", k)
		}
	}
	p := items["PARENT01"]
	if len(p.Attachments) != 1 || len(p.Notes) != 1 || p.Notes[0] != "child note" {
		t.Errorf("children = %+v / %+v", p.Attachments, p.Notes)
	}
}

func TestCreatorsOrdered(t *testing.T) {
	z := testutil.NewZotero(t)
	id := z.AddItem(testutil.Item{
		Key:    "MULTI001",
		TypeID: testutil.TypeBook,
		Creators: []testutil.Creator{
			{Given: "A", Family: "First", Role: "author"},
			{Given: "B", Family: "Second", Role: "editor"},
			{Given: "C", Family: "Third", Role: "author"},
		},
	})
	// Shuffle physical order so the ORDER BY does the work.
	z.Exec(`UPDATE itemCreators SET orderIndex = 2 - orderIndex WHERE itemID = ?`, id)

	items, err := extractor(t, z, ExtractorOptions{}).ExtractAll()
	if err != nil {
		t.Fatal(err)
	}
	cs := items["MULTI001"].Creators
	if len(cs) != 3 {
		t.Fatalf("creators = %+v", cs)
	}
	for i, want := range []string{"Third", "Second", "First"} {
		if cs[i].Family != want || cs[i].Index != i {
			t.Errorf("creator %d = %+v, want %s at index %d", i, cs[i], want, i)
		}
	}
}

func TestMetadataFirstSeenAndDate(t *testing.T) {
	z := testutil.NewZotero(t)
	id := z.AddItem(testutil.Item{
		Key:    "META0001",
		TypeID: testutil.TypeBook,
		Fields: []testutil.Field{
			{Name: "title", Value: "First title"},
			{Name: "date", Value: "1999-12-31 1999-12-31"},
			{Name: "publisher", Value: "Press"},
		},
	})
	z.Exec(`INSERT INTO itemDataValues (value) VALUES ('Second title')`)
	z.Exec(`INSERT INTO itemData (itemID, fieldID, valueID) VALUES (?,
		(SELECT fieldID FROM fields WHERE fieldName = 'title'),
		(SELECT valueID FROM itemDataValues WHERE value = 'Second title'))`, id)

	items, err := extractor(t, z, ExtractorOptions{}).ExtractAll()
	if err != nil {
		t.Fatal(err)
	}
	data := items["META0001"].Data
	if v, _ := data.Get("title"); v != "First title" {
		t.Errorf("title = %q, want first seen", v)
	}
	if v, _ := data.Get("date"); v != "1999" {
		t.Errorf("date = %q", v)
	}
	fields := data.Fields()
	if len(fields) != 3 || fields[0] != "title" || fields[1] != "date" || fields[2] != "publisher" {
		t.Errorf("field order = %v", fields)
	}
}

func TestTruncateDate(t *testing.T) {
	tests := map[string]string{
		"2013-05-01": "2013",
		"2013":       "2013",
		"201":        "201",
		"":           "",
		"19ö5-01":    "19ö5",
	}
	for in, want := range tests {
		if got := TruncateDate(in); got != want {
			t.Errorf("TruncateDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAttachmentFiltering(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.Item{
		Key:    "ATTPAR01",
		TypeID: testutil.TypeBook,
		Attachments: []testutil.Attachment{
			{Key: "AAAA0001", Path: "storage:paper.pdf"},
			{Key: "AAAA0002", Path: "attachment:Book.epub"},
			{Key: "AAAA0006", Path: "storage:SCAN.PDF"},
			{Key: "AAAA0003", Path: "storage:image.png"},
			{Key: "AAAA0004", Path: "/abs/linked.pdf"},
		},
	})
	z.Exec(`INSERT INTO items (itemID, itemTypeID, key) VALUES (9999, 14, 'AAAA0005')`)
	z.Exec(`INSERT INTO itemAttachments (itemID, parentItemID, path) VALUES (9999, (SELECT itemID FROM items WHERE key = 'ATTPAR01'), NULL)`)

	root := "/home/u/Zotero/storage"
	items, err := extractor(t, z, ExtractorOptions{StorageRoot: root}).ExtractAll()
	if err != nil {
		t.Fatal(err)
	}
	atts := items["ATTPAR01"].Attachments
	if len(atts) != 2 {
		t.Fatalf("attachments = %+v, want 2", atts)
	}
	byKey := map[string]models.Attachment{}
	for _, a := range atts {
		byKey[a.Key] = a
	}
	if a := byKey["AAAA0001"]; a.Name != "paper.pdf" || a.Path != filepath.Join(root, "AAAA0001", "paper.pdf") {
		t.Errorf("pdf attachment = %+v", a)
	}
	if a := byKey["AAAA0002"]; a.Name != "Book.epub" {
		t.Errorf("epub attachment = %+v", a)
	}
	if a, ok := byKey["AAAA0006"]; ok {
		t.Errorf("upper-case extension matched: %+v", a)
	}
}

func TestCollectionsAndNotes(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.Item{
		Key:         "COLL0001",
		TypeID:      testutil.TypeBook,
		Collections: []testutil.Collection{{Name: "Reading", Key: "RDG00001"}, {Name: "Thesis", Key: "THS00001"}},
		Notes:       []string{"<p>first &amp; foremost</p>", "<div><p>second</p></div>"},
	})

	items, err := extractor(t, z, ExtractorOptions{}).ExtractAll()
	if err != nil {
		t.Fatal(err)
	}
	it := items["COLL0001"]
	if len(it.Collections) != 2 {
		t.Fatalf("collections = %+v", it.Collections)
	}
	for _, c := range it.Collections {
		if c.LibraryID != "0" || c.Group != "personal" || c.Key == "" {
			t.Errorf("collection = %+v", c)
		}
	}
	if len(it.Notes) != 2 || it.Notes[0] != "first & foremost" || it.Notes[1] != "second" {
		t.Errorf("notes = %q", it.Notes)
	}
}

func TestMissingTypeFailsPass(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.JaneDoe())
	z.AddItem(testutil.Item{Key: "BADTYPE1", TypeID: 77})

	_, err := extractor(t, z, ExtractorOptions{}).ExtractAll()
	if !errors.Is(err, apperr.ErrCorruptRow) {
		t.Fatalf("err = %v, want ErrCorruptRow", err)
	}
}

func TestPersonalOnlyAndLibrary(t *testing.T) {
	z := testutil.NewZotero(t)
	group := int64(7)
	z.AddItem(testutil.JaneDoe())
	z.AddItem(testutil.Item{Key: "GROUP001", TypeID: testutil.TypeBook, LibraryID: &group})

	all, err := extractor(t, z, ExtractorOptions{}).ExtractAll()
	if err != nil {
		t.Fatal(err)
	}
	if all["GROUP001"].Library != "7" {
		t.Errorf("group library = %q", all["GROUP001"].Library)
	}

	personal, err := extractor(t, z, ExtractorOptions{PersonalOnly: true}).ExtractAll()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := personal["GROUP001"]; ok || len(personal) != 1 {
		t.Errorf("personal-only items = %v", personal)
	}
}

func TestExtractOrderedNewestFirst(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.Item{Key: "OLD00001", TypeID: testutil.TypeBook, DateAdded: "2001-01-01 00:00:00"})
	z.AddItem(testutil.Item{Key: "NEW00001", TypeID: testutil.TypeBook, DateAdded: "2021-01-01 00:00:00"})

	items, err := extractor(t, z, ExtractorOptions{}).ExtractOrdered()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Key != "NEW00001" || items[1].Key != "OLD00001" {
		t.Errorf("order = %v", items)
	}
}

func TestMissingTablesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sqlite")
	db, err := sql.Open(sqlitedb.DriverName, path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := NewExtractor(db, ExtractorOptions{}).ExtractAll(); err == nil {
		t.Fatal("expected error for database without Zotero schema")
	}
}
