package mcpserver

// ItemFormat describes the JSON item record returned by get_item and
// embedded in search results.
const ItemFormat = `# zotindex Item Format

Every item is a JSON object with exactly these keys, in this order. Keys are
always present; empty lists are ` + "`[]`" + ` and empty data is ` + "`{}`" + `.

` + "```" + `json
{
  "key": "C3KEUQJW",
  "library": "0",
  "type": "journalArticle",
  "creators": [
    {"given": "Jane", "family": "Doe", "type": "author", "index": 0}
  ],
  "data": {"title": "Test", "date": "2013"},
  "collections": [
    {"name": "Reading", "key": "COLL0001", "library_id": "0", "group": "personal"}
  ],
  "tags": [{"name": "history", "id": 12}],
  "attachments": [
    {"name": "paper.pdf", "key": "ATT00001", "path": "/home/me/Zotero/storage/ATT00001/paper.pdf"}
  ],
  "notes": ["Plain-text note body"]
}
` + "```" + `

## Fields

| Key           | Meaning                                                              |
|---------------|----------------------------------------------------------------------|
| key           | Zotero item key, unique within the library                           |
| library       | "0" for the personal library, otherwise the group library id         |
| type          | Zotero item type name (journalArticle, book, bookSection, ...)       |
| creators      | Contributors in Zotero's display order; "type" is the creator role   |
| data          | Zotero fields in the order Zotero stores them; "date" is the year    |
| collections   | Collections the item belongs to                                      |
| tags          | Tags assigned to the item                                            |
| attachments   | Stored files with a recognised document extension                    |
| notes         | Child notes with HTML markup removed                                 |

## Notes

- Standalone notes and attachments are never returned as top-level items.
- "data" carries only the fields that are set on the item; look up optional
  fields such as "abstractNote" or "publicationTitle" defensively.
- Attachment files can be fetched over HTTP at
  ` + "`/api/items/{key}/attachments/{attachmentKey}`" + `.
`
