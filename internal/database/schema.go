package database

// schema is applied in order inside one transaction when a project DB is opened.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE,
        type TEXT NOT NULL,
        source_tool TEXT NOT NULL DEFAULT '',
        confidence REAL NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
        metadata TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,

	`CREATE TABLE IF NOT EXISTS relationships (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        entity1_id INTEGER NOT NULL,
        entity2_id INTEGER NOT NULL,
        relationship_type TEXT NOT NULL,
        source_tool TEXT NOT NULL DEFAULT '',
        confidence REAL NOT NULL DEFAULT 0,
        metadata TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (entity1_id, entity2_id, relationship_type),
        CHECK (entity1_id <> entity2_id),
        FOREIGN KEY (entity1_id) REFERENCES entities(id),
        FOREIGN KEY (entity2_id) REFERENCES entities(id)
    )`,

	`CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_entity1 ON relationships(entity1_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_entity2 ON relationships(entity2_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(relationship_type)`,
}

// dropSchema removes both tables; relationships first because of the foreign keys.
var dropSchema = []string{
	`DROP TABLE IF EXISTS relationships`,
	`DROP TABLE IF EXISTS entities`,
}
