// Package zotero reads a mirrored Zotero database and flattens its
// normalized tables into self-contained item records.
package zotero

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/starford/zotindex/internal/apperr"
	"github.com/starford/zotindex/internal/htmltext"
	"github.com/starford/zotindex/internal/models"
)

// Defaults for ExtractorOptions.
var (
	DefaultExcludedTypeIDs    = []int{1, 13, 14}
	DefaultAttachmentPrefixes = []string{"attachment:", "storage:"}
	DefaultAttachmentExts     = []string{".pdf", ".epub", ".djvu", ".doc", ".docx", ".odt", ".rtf", ".html", ".txt"}
)

// ExtractorOptions configures an Extractor. Zero values select the defaults.
type ExtractorOptions struct {
	StorageRoot        string
	ExcludedTypeIDs    []int
	AttachmentPrefixes []string
	AttachmentExts     []string
	PersonalOnly       bool
	Stripper           htmltext.Stripper
	Logger             *slog.Logger
}

// Extractor builds item records from a Zotero database.
type Extractor struct {
	db   *sql.DB
	opts ExtractorOptions
}

// NewExtractor returns an Extractor reading from db.
func NewExtractor(db *sql.DB, opts ExtractorOptions) *Extractor {
	if opts.ExcludedTypeIDs == nil {
		opts.ExcludedTypeIDs = DefaultExcludedTypeIDs
	}
	if opts.AttachmentPrefixes == nil {
		opts.AttachmentPrefixes = DefaultAttachmentPrefixes
	}
	if opts.AttachmentExts == nil {
		opts.AttachmentExts = DefaultAttachmentExts
	}
	if opts.Stripper == nil {
		opts.Stripper = htmltext.Tokenizer{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{db: db, opts: opts}
}

const (
	typeNameSQL = `SELECT typeName FROM itemTypes WHERE itemTypeID = ?`

	creatorsSQL = `
		SELECT creators.firstName, creators.lastName, creatorTypes.creatorType, itemCreators.orderIndex
		FROM itemCreators
			LEFT JOIN creators ON itemCreators.creatorID = creators.creatorID
			LEFT JOIN creatorTypes ON itemCreators.creatorTypeID = creatorTypes.creatorTypeID
		WHERE itemCreators.itemID = ?
		ORDER BY itemCreators.orderIndex ASC`

	metadataSQL = `
		SELECT fields.fieldName, itemDataValues.value
		FROM itemData
			LEFT JOIN fields ON itemData.fieldID = fields.fieldID
			LEFT JOIN itemDataValues ON itemData.valueID = itemDataValues.valueID
		WHERE itemData.itemID = ?`

	collectionsSQL = `
		SELECT collections.collectionName, collections.key
		FROM collections
			LEFT JOIN collectionItems ON collections.collectionID = collectionItems.collectionID
		WHERE collectionItems.itemID = ?`

	tagsSQL = `
		SELECT tags.name, tags.tagID
		FROM itemTags
			LEFT JOIN tags ON itemTags.tagID = tags.tagID
		WHERE itemTags.itemID = ?`

	attachmentsSQL = `
		SELECT itemAttachments.path, items.key
		FROM itemAttachments
			LEFT JOIN items ON itemAttachments.itemID = items.itemID
		WHERE itemAttachments.parentItemID = ?`

	notesSQL = `SELECT note FROM itemNotes WHERE parentItemID = ?`
)

// itemRow is one row of the top-level items query.
type itemRow struct {
	id      int64
	key     string
	typeID  int
	library sql.NullInt64
}

// statements holds the per-pass prepared lookups.
type statements struct {
	typeName, creators, metadata, collections, tags, attachments, notes *sql.Stmt
}

func (s *statements) close() {
	for _, st := range []*sql.Stmt{s.typeName, s.creators, s.metadata, s.collections, s.tags, s.attachments, s.notes} {
		if st != nil {
			st.Close()
		}
	}
}

func (e *Extractor) prepare() (*statements, error) {
	s := &statements{}
	for _, p := range []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.typeName, typeNameSQL},
		{&s.creators, creatorsSQL},
		{&s.metadata, metadataSQL},
		{&s.collections, collectionsSQL},
		{&s.tags, tagsSQL},
		{&s.attachments, attachmentsSQL},
		{&s.notes, notesSQL},
	} {
		st, err := e.db.Prepare(p.query)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("zotero: prepare: %w", err)
		}
		*p.dst = st
	}
	return s, nil
}

// ExtractOrdered returns every non-excluded item, newest first by date added.
// A missing item type aborts the whole pass with apperr.ErrCorruptRow.
func (e *Extractor) ExtractOrdered() ([]models.Item, error) {
	start := time.Now()

	rows, err := e.itemRows()
	if err != nil {
		return nil, err
	}

	st, err := e.prepare()
	if err != nil {
		return nil, err
	}
	defer st.close()

	out := make([]models.Item, 0, len(rows))
	for _, r := range rows {
		if e.opts.PersonalOnly && r.library.Valid {
			continue
		}
		it, err := e.build(st, r)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}

	e.opts.Logger.Info("zotero: extracted items",
		slog.Int("count", len(out)),
		slog.Duration("took", time.Since(start)))
	return out, nil
}

// ExtractAll returns every non-excluded item keyed by its Zotero key.
func (e *Extractor) ExtractAll() (map[string]models.Item, error) {
	items, err := e.ExtractOrdered()
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Item, len(items))
	for _, it := range items {
		out[it.Key] = it
	}
	return out, nil
}

// itemRows reads the top-level item list in full so that the per-item
// lookups can reuse the single connection.
func (e *Extractor) itemRows() ([]itemRow, error) {
	excluded := make([]string, len(e.opts.ExcludedTypeIDs))
	for i, id := range e.opts.ExcludedTypeIDs {
		excluded[i] = strconv.Itoa(id)
	}
	query := `SELECT itemID, key, itemTypeID, libraryID FROM items`
	if len(excluded) > 0 {
		query += ` WHERE itemTypeID NOT IN (` + strings.Join(excluded, ", ") + `)`
	}
	query += ` ORDER BY dateAdded DESC, itemID DESC`

	rows, err := e.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("zotero: list items: %w", err)
	}
	defer rows.Close()

	var out []itemRow
	for rows.Next() {
		var r itemRow
		if err := rows.Scan(&r.id, &r.key, &r.typeID, &r.library); err != nil {
			return nil, fmt.Errorf("zotero: scan item: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (e *Extractor) build(st *statements, r itemRow) (models.Item, error) {
	it := models.Item{Key: r.key, Library: models.PersonalLibrary}
	if r.library.Valid {
		it.Library = strconv.FormatInt(r.library.Int64, 10)
	}

	var typeName string
	err := st.typeName.QueryRow(r.typeID).Scan(&typeName)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, fmt.Errorf("zotero: item %s: item type %d: %w", r.key, r.typeID, apperr.ErrCorruptRow)
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("zotero: item %s: type: %w", r.key, err)
	}
	it.Type = typeName

	steps := []struct {
		name string
		fn   func(*statements, *models.Item, int64) error
	}{
		{"creators", e.creators},
		{"metadata", e.metadata},
		{"collections", e.collections},
		{"tags", e.tags},
		{"attachments", e.attachments},
		{"notes", e.notes},
	}
	for _, s := range steps {
		if err := s.fn(st, &it, r.id); err != nil {
			return models.Item{}, fmt.Errorf("zotero: item %s: %s: %w", r.key, s.name, err)
		}
	}

	it.Normalize()
	return it, nil
}

func (e *Extractor) creators(st *statements, it *models.Item, id int64) error {
	rows, err := st.creators.Query(id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var given, family, role sql.NullString
		var index sql.NullInt64
		if err := rows.Scan(&given, &family, &role, &index); err != nil {
			return err
		}
		it.Creators = append(it.Creators, models.Creator{
			Given:  given.String,
			Family: family.String,
			Role:   role.String,
			Index:  int(index.Int64),
		})
	}
	return rows.Err()
}

func (e *Extractor) metadata(st *statements, it *models.Item, id int64) error {
	rows, err := st.metadata.Query(id)
	if err != nil {
		return err
	}
	defer rows.Close()

	it.Data = models.NewMetadata()
	for rows.Next() {
		var field, value sql.NullString
		if err := rows.Scan(&field, &value); err != nil {
			return err
		}
		if !field.Valid || it.Data.Has(field.String) {
			continue
		}
		v := value.String
		if field.String == "date" {
			v = TruncateDate(v)
		}
		it.Data.Set(field.String, v)
	}
	return rows.Err()
}

// TruncateDate keeps the first four characters (the year) of a Zotero date.
func TruncateDate(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return s
	}
	return string(r[:4])
}

func (e *Extractor) collections(st *statements, it *models.Item, id int64) error {
	rows, err := st.collections.Query(id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, key sql.NullString
		if err := rows.Scan(&name, &key); err != nil {
			return err
		}
		it.Collections = append(it.Collections, models.Collection{
			Name:      name.String,
			Key:       key.String,
			LibraryID: models.PersonalLibrary,
			Group:     "personal",
		})
	}
	return rows.Err()
}

func (e *Extractor) tags(st *statements, it *models.Item, id int64) error {
	rows, err := st.tags.Query(id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name sql.NullString
		var tagID sql.NullInt64
		if err := rows.Scan(&name, &tagID); err != nil {
			return err
		}
		it.Tags = append(it.Tags, models.Tag{Name: name.String, ID: tagID.Int64})
	}
	return rows.Err()
}

func (e *Extractor) attachments(st *statements, it *models.Item, id int64) error {
	rows, err := st.attachments.Query(id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var path, key sql.NullString
		if err := rows.Scan(&path, &key); err != nil {
			return err
		}
		name, ok := e.attachmentName(path.String)
		if !path.Valid || !ok {
			continue
		}
		it.Attachments = append(it.Attachments, models.Attachment{
			Name: name,
			Key:  key.String,
			Path: filepath.Join(e.opts.StorageRoot, key.String, name),
		})
	}
	return rows.Err()
}

// attachmentName strips a recognized link prefix and reports whether the
// remaining file name has a recognized extension. Extensions match
// case-sensitively.
func (e *Extractor) attachmentName(path string) (string, bool) {
	for _, prefix := range e.opts.AttachmentPrefixes {
		name, found := strings.CutPrefix(path, prefix)
		if !found {
			continue
		}
		for _, ext := range e.opts.AttachmentExts {
			if strings.HasSuffix(name, ext) {
				return name, true
			}
		}
		return "", false
	}
	return "", false
}

func (e *Extractor) notes(st *statements, it *models.Item, id int64) error {
	rows, err := st.notes.Query(id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var note sql.NullString
		if err := rows.Scan(&note); err != nil {
			return err
		}
		if !note.Valid {
			continue
		}
		it.Notes = append(it.Notes, e.opts.Stripper.Strip(note.String))
	}
	return rows.Err()
}
