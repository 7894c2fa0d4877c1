// Package models defines the denormalized Zotero item record shared by the
// extractor, the cache and the full-text indexes.
package models

import "strconv"

// PersonalLibrary is the library identifier used for the user's own library.
const PersonalLibrary = "0"

// Item is the self-contained record for one library entry. Its JSON form is
// a stable contract for search and presentation tooling.
type Item struct {
	Key         string       `json:"key"`
	Library     string       `json:"library"`
	Type        string       `json:"type"`
	Creators    []Creator    `json:"creators"`
	Data        *Metadata    `json:"data"`
	Collections []Collection `json:"collections"`
	Tags        []Tag        `json:"tags"`
	Attachments []Attachment `json:"attachments"`
	Notes       []string     `json:"notes"`
}

// Normalize replaces nil collections with empty ones so that every key
// serializes as an empty array or object instead of null.
func (it *Item) Normalize() {
	if it.Creators == nil {
		it.Creators = []Creator{}
	}
	if it.Data == nil {
		it.Data = NewMetadata()
	}
	if it.Collections == nil {
		it.Collections = []Collection{}
	}
	if it.Tags == nil {
		it.Tags = []Tag{}
	}
	if it.Attachments == nil {
		it.Attachments = []Attachment{}
	}
	if it.Notes == nil {
		it.Notes = []string{}
	}
}

// Title returns the item's title field, or "" when it has none.
func (it *Item) Title() string {
	if it.Data == nil {
		return ""
	}
	v, _ := it.Data.Get("title")
	return v
}

// Scalar returns the value of a top-level string field.
func (it *Item) Scalar(field string) (string, bool) {
	switch field {
	case "key":
		return it.Key, true
	case "library":
		return it.Library, true
	case "type":
		return it.Type, true
	}
	return "", false
}

// Records returns the keyed sub-records stored under a top-level field.
// The data mapping is returned as a single record.
func (it *Item) Records(field string) ([]Record, bool) {
	switch field {
	case "data":
		if it.Data == nil {
			return nil, false
		}
		return []Record{it.Data}, true
	case "creators":
		out := make([]Record, len(it.Creators))
		for i := range it.Creators {
			out[i] = it.Creators[i]
		}
		return out, true
	case "collections":
		out := make([]Record, len(it.Collections))
		for i := range it.Collections {
			out[i] = it.Collections[i]
		}
		return out, true
	case "tags":
		out := make([]Record, len(it.Tags))
		for i := range it.Tags {
			out[i] = it.Tags[i]
		}
		return out, true
	case "attachments":
		out := make([]Record, len(it.Attachments))
		for i := range it.Attachments {
			out[i] = it.Attachments[i]
		}
		return out, true
	}
	return nil, false
}

// Record is a keyed part of an item.
type Record interface {
	Lookup(subkey string) (string, bool)
}

// Creator is an author, editor or other contributor.
type Creator struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Role   string `json:"type"`
	Index  int    `json:"index"`
}

func (c Creator) Lookup(subkey string) (string, bool) {
	switch subkey {
	case "given":
		return c.Given, true
	case "family":
		return c.Family, true
	case "type":
		return c.Role, true
	case "index":
		return strconv.Itoa(c.Index), true
	}
	return "", false
}

// Collection describes membership of an item in a Zotero collection.
type Collection struct {
	Name      string `json:"name"`
	Key       string `json:"key"`
	LibraryID string `json:"library_id"`
	Group     string `json:"group"`
}

func (c Collection) Lookup(subkey string) (string, bool) {
	switch subkey {
	case "name":
		return c.Name, true
	case "key":
		return c.Key, true
	case "library_id":
		return c.LibraryID, true
	case "group":
		return c.Group, true
	}
	return "", false
}

// Tag is a Zotero tag assigned to an item.
type Tag struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

func (t Tag) Lookup(subkey string) (string, bool) {
	switch subkey {
	case "name":
		return t.Name, true
	case "id":
		return strconv.FormatInt(t.ID, 10), true
	}
	return "", false
}

// Attachment is a stored file belonging to an item.
type Attachment struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	Path string `json:"path"`
}

func (a Attachment) Lookup(subkey string) (string, bool) {
	switch subkey {
	case "name":
		return a.Name, true
	case "key":
		return a.Key, true
	case "path":
		return a.Path, true
	}
	return "", false
}
