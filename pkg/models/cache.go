package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheMetadata describes the last successful load of a cached collection.
type CacheMetadata struct {
	// Collection is the cached model's title.
	Collection string `gorm:"primaryKey;type:varchar(255)" json:"collection"`

	// Title is the display title of the collection.
	Title string `json:"title"`

	// ETag is the entity tag of the list response that produced the rows.
	ETag string `json:"etag,omitempty"`

	// Created is when the rows were loaded. Staleness is measured from it.
	Created time.Time `gorm:"not null" json:"created"`

	// Count is the number of cached documents.
	Count int `json:"count"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (CacheMetadata) TableName() string {
	return "cache_metadata"
}

// Get retrieves metadata by collection name.
func (m *CacheMetadata) Get(db *gorm.DB) error {
	if m.Collection == "" {
		return fmt.Errorf("collection name is required")
	}
	return db.First(m, "collection = ?", m.Collection).Error
}

// CacheMetadatas is a slice of cache metadata rows.
type CacheMetadatas []CacheMetadata

// FindAll retrieves metadata for every cached collection.
func (ms *CacheMetadatas) FindAll(db *gorm.DB) error {
	return db.Order("collection").Find(ms).Error
}

// CachedDocument is one raw document of a cached collection.
type CachedDocument struct {
	ID uint `gorm:"primaryKey" json:"-"`

	// Collection is the cached model's title.
	Collection string `gorm:"not null;type:varchar(255);uniqueIndex:idx_cached_document_position" json:"collection"`

	// Position preserves the order documents were loaded in.
	Position int `gorm:"not null;uniqueIndex:idx_cached_document_position" json:"position"`

	// DocID is the document's _id, if it has one.
	DocID string `gorm:"index" json:"doc_id,omitempty"`

	// Data is the unfiltered wire document.
	Data JSON `gorm:"type:text" json:"data"`
}

// TableName specifies the table name for GORM.
func (CachedDocument) TableName() string {
	return "cached_documents"
}

// CachedDocuments is a slice of cached documents.
type CachedDocuments []CachedDocument

// FindByCollection retrieves the documents of a collection in load order.
func (ds *CachedDocuments) FindByCollection(db *gorm.DB, collection string) error {
	return db.Where("collection = ?", collection).Order("position").Find(ds).Error
}

// Documents decodes every row.
func (ds CachedDocuments) Documents() ([]map[string]any, error) {
	docs := make([]map[string]any, 0, len(ds))
	for _, d := range ds {
		doc, err := d.Data.Document()
		if err != nil {
			return nil, fmt.Errorf("error decoding document %d of %q: %w", d.Position, d.Collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ReplaceCollection swaps the rows and metadata of a collection in one
// transaction.
func ReplaceCollection(db *gorm.DB, meta CacheMetadata, docs []map[string]any) error {
	rows := make([]CachedDocument, 0, len(docs))
	for i, doc := range docs {
		data, err := NewJSON(doc)
		if err != nil {
			return err
		}
		row := CachedDocument{
			Collection: meta.Collection,
			Position:   i,
			Data:       data,
		}
		if id, ok := doc["_id"]; ok && id != nil {
			row.DocID = fmt.Sprint(id)
		}
		rows = append(rows, row)
	}
	meta.Count = len(rows)

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", meta.Collection).
			Delete(&CachedDocument{}).Error; err != nil {
			return fmt.Errorf("error deleting cached documents: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return fmt.Errorf("error inserting cached documents: %w", err)
			}
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&meta).Error; err != nil {
			return fmt.Errorf("error upserting cache metadata: %w", err)
		}
		return nil
	})
}

// DeleteCollection removes the rows and metadata of a collection.
func DeleteCollection(db *gorm.DB, collection string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", collection).
			Delete(&CachedDocument{}).Error; err != nil {
			return fmt.Errorf("error deleting cached documents: %w", err)
		}
		if err := tx.Where("collection = ?", collection).
			Delete(&CacheMetadata{}).Error; err != nil {
			return fmt.Errorf("error deleting cache metadata: %w", err)
		}
		return nil
	})
}
