package cache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/hashicorp-forge/datamanager/pkg/models"
)

// GormStore persists collections in the cache database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store backed by db. The cache tables must already
// be migrated.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Load(ctx context.Context, collection string) ([]map[string]any, *Metadata, error) {
	db := s.db.WithContext(ctx)

	meta := models.CacheMetadata{Collection: collection}
	if err := meta.Get(db); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("error getting cache metadata: %w", err)
	}

	var rows models.CachedDocuments
	if err := rows.FindByCollection(db, collection); err != nil {
		return nil, nil, fmt.Errorf("error finding cached documents: %w", err)
	}
	docs, err := rows.Documents()
	if err != nil {
		return nil, nil, err
	}

	return docs, &Metadata{
		Title:   meta.Title,
		ETag:    meta.ETag,
		Created: meta.Created,
	}, nil
}

func (s *GormStore) Replace(ctx context.Context, collection string, meta Metadata, docs []map[string]any) error {
	return models.ReplaceCollection(s.db.WithContext(ctx), models.CacheMetadata{
		Collection: collection,
		Title:      meta.Title,
		ETag:       meta.ETag,
		Created:    meta.Created,
	}, docs)
}

func (s *GormStore) Delete(ctx context.Context, collection string) error {
	return models.DeleteCollection(s.db.WithContext(ctx), collection)
}

// Status lists the metadata of every persisted collection.
func (s *GormStore) Status(ctx context.Context) (models.CacheMetadatas, error) {
	var all models.CacheMetadatas
	if err := all.FindAll(s.db.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("error listing cached collections: %w", err)
	}
	return all, nil
}
