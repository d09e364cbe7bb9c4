package store

// Schema v1 - one row per track, a superset of identity, local tag,
// catalog and analysis columns. The loader discovers this column set at
// runtime, so columns can be added in later migrations without touching
// loader code.
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tracks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,

  -- identity
  file_path TEXT NOT NULL UNIQUE,
  file_hash TEXT NOT NULL UNIQUE,
  file_size INTEGER,
  mtime INTEGER,

  added_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,

  -- local tags
  title TEXT,
  artist TEXT,
  album TEXT,
  album_artist TEXT,
  track_number INTEGER,
  disc_number INTEGER,
  year INTEGER,
  genre TEXT,
  duration_sec REAL,

  -- catalog match
  catalog_id TEXT,
  catalog_url TEXT,
  catalog_popularity INTEGER,
  catalog_isrc TEXT,
  catalog_album_id TEXT,
  catalog_artist_ids TEXT,
  catalog_match_score REAL,

  -- analysis features
  bpm REAL,
  key TEXT,
  energy REAL,
  valence REAL,
  loudness_db REAL,
  beat_density REAL,
  mood_valence REAL,
  mood_arousal REAL,
  mood_label TEXT,
  lead_instrument TEXT,
  bass_type TEXT,
  drums_pattern TEXT,

  -- sidecar provenance
  match_json_path TEXT,
  analysis_json_path TEXT,
  final_json_path TEXT,

  -- versions / flags
  analysis_version INTEGER,
  match_meta_version INTEGER,
  is_missing INTEGER DEFAULT 0,
  is_duplicate INTEGER DEFAULT 0,
  notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_tracks_file_hash ON tracks(file_hash);
CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist);
CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album);
CREATE INDEX IF NOT EXISTS idx_tracks_catalog_id ON tracks(catalog_id);
`
