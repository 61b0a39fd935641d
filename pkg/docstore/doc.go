// Package docstore keeps a SQLite keyword index over a directory of text
// documents. It backs the search_documents tool.
package docstore
