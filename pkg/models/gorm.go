package models

func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&CacheMetadata{}, // Must be first - documents reference it
		&CachedDocument{},
	}
}
