package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/zotindex/internal/apperr"
	"github.com/starford/zotindex/internal/freshness"
	"github.com/starford/zotindex/internal/fts"
	"github.com/starford/zotindex/internal/testutil"
)

func newLibrary(t *testing.T, z *testutil.Zotero) *Library {
	t.Helper()
	lib, err := Open(Config{
		Source:      z.Path,
		StorageRoot: filepath.Join(filepath.Dir(z.Path), "storage"),
		DataDir:     filepath.Join(t.TempDir(), "data"),
	}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

// touchSource pushes the source mtime past the mirror's.
func touchSource(t *testing.T, z *testutil.Zotero) {
	t.Helper()
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(z.Path, future, future); err != nil {
		t.Fatal(err)
	}
}

func mustSync(t *testing.T, lib *Library, force bool) Report {
	t.Helper()
	rep, err := lib.Sync(force)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return rep
}

func TestEndToEnd(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.JaneDoe())
	lib := newLibrary(t, z)

	st, err := lib.IsFresh()
	if err != nil {
		t.Fatalf("IsFresh: %v", err)
	}
	if st.Fresh || st.Stage != freshness.StageMirror {
		t.Fatalf("status = %+v, want stale at mirror", st)
	}

	rep := mustSync(t, lib, false)
	if !rep.MirrorRefreshed || !rep.CacheRebuilt || rep.Items != 1 || rep.Added != 1 || rep.Indexed != 1 {
		t.Errorf("report = %+v", rep)
	}

	if st, _ := lib.IsFresh(); !st.Fresh {
		t.Errorf("after sync status = %+v, want fresh", st)
	}

	it, err := lib.Item("C3KEUQJW")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if it.Title() != "Test" || it.Creators[0].Family != "Doe" {
		t.Errorf("item = %+v", it)
	}
	if date, _ := it.Data.Get("date"); date != "2013" {
		t.Errorf("date = %q", date)
	}

	res, err := lib.Search(fts.Query{Text: "doe"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].Key != "C3KEUQJW" || res[0].Item.Title() != "Test" {
		t.Errorf("search = %+v", res)
	}

	stats, err := lib.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Items != 1 || stats.Indexed != 1 || stats.FoldedIndexed != 1 || !stats.Status.Fresh {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSyncSkipsWhenFresh(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.JaneDoe())
	lib := newLibrary(t, z)
	mustSync(t, lib, false)

	rep := mustSync(t, lib, false)
	if rep.MirrorRefreshed || rep.CacheRebuilt {
		t.Errorf("fresh library was rebuilt: %+v", rep)
	}

	rep = mustSync(t, lib, true)
	if !rep.CacheRebuilt || rep.Stage != freshness.StageMirror || rep.Added != 0 || rep.Changed != 0 {
		t.Errorf("forced report = %+v", rep)
	}
}

func TestSyncEmptyLibrarySettles(t *testing.T) {
	z := testutil.NewZotero(t)
	lib := newLibrary(t, z)

	rep := mustSync(t, lib, false)
	if !rep.CacheRebuilt || rep.Items != 0 {
		t.Fatalf("first sync = %+v", rep)
	}
	st, err := lib.IsFresh()
	if err != nil {
		t.Fatalf("IsFresh: %v", err)
	}
	if !st.Fresh {
		t.Fatalf("empty library after sync = %+v, want fresh", st)
	}

	rep = mustSync(t, lib, false)
	if rep.MirrorRefreshed || rep.CacheRebuilt {
		t.Errorf("second sync rebuilt an empty, fresh library: %+v", rep)
	}
}

func TestSyncPicksUpSourceChanges(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.JaneDoe())
	lib := newLibrary(t, z)
	mustSync(t, lib, false)

	z.AddItem(testutil.Item{
		Key:      "MULLER01",
		TypeID:   testutil.TypeBook,
		Fields:   []testutil.Field{{Name: "title", Value: "Über die Sprache"}},
		Creators: []testutil.Creator{{Given: "Hans", Family: "Müller", Role: "author"}},
	})
	z.Exec(`UPDATE itemDataValues SET value = 'Test Revised' WHERE value = 'Test'`)
	touchSource(t, z)

	st, _ := lib.IsFresh()
	if st.Fresh || st.Stage != freshness.StageMirror {
		t.Fatalf("status = %+v, want stale at mirror", st)
	}
	rep := mustSync(t, lib, false)
	if rep.Items != 2 || rep.Added != 1 || rep.Changed != 1 || rep.Removed != 0 {
		t.Errorf("report = %+v", rep)
	}

	res, err := lib.Search(fts.Query{Text: "muller"})
	if err != nil || len(res) != 1 || res[0].Key != "MULLER01" {
		t.Errorf("folded search = %+v, %v", res, err)
	}
	res, err = lib.Search(fts.Query{Text: "revised", Column: "title"})
	if err != nil || len(res) != 1 {
		t.Errorf("title search = %+v, %v", res, err)
	}
}

func TestSyncRemovesDeletedItems(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.JaneDoe())
	lib := newLibrary(t, z)
	mustSync(t, lib, false)

	z.Exec(`DELETE FROM items WHERE key = 'C3KEUQJW'`)
	touchSource(t, z)

	rep := mustSync(t, lib, false)
	if rep.Removed != 1 || rep.Items != 0 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := lib.Item("C3KEUQJW"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Item err = %v, want ErrNotFound", err)
	}
	res, err := lib.Search(fts.Query{Text: "doe"})
	if err != nil || len(res) != 0 {
		t.Errorf("stale index rows survived: %+v, %v", res, err)
	}
}

func TestEnsureBuiltAndReset(t *testing.T) {
	z := testutil.NewZotero(t)
	z.AddItem(testutil.JaneDoe())
	lib := newLibrary(t, z)

	if err := lib.EnsureBuilt(); err != nil {
		t.Fatalf("EnsureBuilt: %v", err)
	}
	stats, _ := lib.Stats()
	if stats.Items != 1 || stats.Indexed != 1 || stats.FoldedIndexed != 1 {
		t.Errorf("stats after EnsureBuilt = %+v", stats)
	}
	if err := lib.EnsureBuilt(); err != nil {
		t.Fatalf("EnsureBuilt again: %v", err)
	}
	if stats, _ := lib.Stats(); stats.Indexed != 1 {
		t.Errorf("second EnsureBuilt duplicated rows: %+v", stats)
	}

	if err := lib.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	stats, err := lib.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Items != 0 || stats.Indexed != 0 || !stats.MirrorModTime.IsZero() {
		t.Errorf("stats after reset = %+v", stats)
	}
	if st, _ := lib.IsFresh(); st.Stage != freshness.StageMirror {
		t.Errorf("status after reset = %+v", st)
	}
}

func TestMissingSource(t *testing.T) {
	lib, err := Open(Config{
		Source:  filepath.Join(t.TempDir(), "nope.sqlite"),
		DataDir: t.TempDir(),
	}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer lib.Close()

	if _, err := lib.IsFresh(); !errors.Is(err, apperr.ErrSourceUnavailable) {
		t.Errorf("IsFresh err = %v", err)
	}
	if _, err := lib.Sync(true); !errors.Is(err, apperr.ErrSourceUnavailable) {
		t.Errorf("Sync err = %v", err)
	}
	if _, err := lib.Stats(); err != nil {
		t.Errorf("Stats err = %v", err)
	}
}

func TestAttachmentLookup(t *testing.T) {
	z := testutil.NewZotero(t)
	it := testutil.JaneDoe()
	it.Attachments = []testutil.Attachment{{Key: "ATT00001", Path: "storage:paper.pdf"}}
	z.AddItem(it)
	lib := newLibrary(t, z)
	mustSync(t, lib, false)

	a, err := lib.Attachment("C3KEUQJW", "ATT00001")
	if err != nil {
		t.Fatalf("Attachment: %v", err)
	}
	if a.Name != "paper.pdf" || filepath.Base(filepath.Dir(a.Path)) != "ATT00001" {
		t.Errorf("attachment = %+v", a)
	}
	if _, err := lib.Attachment("C3KEUQJW", "NOPE"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
