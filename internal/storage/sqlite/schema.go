package sqlite

// schema is applied once per database file. Repositories share these two
// tables, partitioned by repo_id ("project/repository"); there is no
// per-repository table creation because the number of repositories a
// single daemon hosts is unbounded and SQLite handles wide, indexed
// tables better than many small ones.
const schema = `
CREATE TABLE IF NOT EXISTS repositories (
    repo_id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    head_revision INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS commits (
    repo_id TEXT NOT NULL,
    revision INTEGER NOT NULL,
    author TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    markup TEXT NOT NULL DEFAULT 'PLAINTEXT',
    changes_json TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (repo_id, revision),
    FOREIGN KEY (repo_id) REFERENCES repositories(repo_id) ON DELETE CASCADE
);

-- One row per (path, revision) the entry actually changed at. The entry's
-- value as of any revision R is the row with the greatest revision <= R.
-- removed=1 is a tombstone: the path did not exist as of that revision.
CREATE TABLE IF NOT EXISTS entry_versions (
    repo_id TEXT NOT NULL,
    path TEXT NOT NULL,
    revision INTEGER NOT NULL,
    entry_type TEXT NOT NULL DEFAULT 'TEXT',
    content BLOB,
    removed INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (repo_id, path, revision),
    FOREIGN KEY (repo_id) REFERENCES repositories(repo_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_entry_versions_lookup
    ON entry_versions(repo_id, path, revision DESC);

CREATE INDEX IF NOT EXISTS idx_entry_versions_revision
    ON entry_versions(repo_id, revision);
`
