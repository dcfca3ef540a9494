package store

const schema = `
CREATE TABLE IF NOT EXISTS shows (
    id          INTEGER PRIMARY KEY,
    id_mal      INTEGER NOT NULL DEFAULT 0,
    name        TEXT NOT NULL,
    name_en     TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL DEFAULT 'UNKNOWN',
    has_source  INTEGER NOT NULL DEFAULT 0,
    is_nsfw     INTEGER NOT NULL DEFAULT 0,
    megathread  INTEGER NOT NULL DEFAULT 0,
    enabled     INTEGER NOT NULL DEFAULT 1,
    pinned      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS aliases (
    show_id  INTEGER NOT NULL REFERENCES shows(id) ON DELETE CASCADE,
    alias    TEXT NOT NULL,
    UNIQUE(show_id, alias) ON CONFLICT IGNORE
);

CREATE TABLE IF NOT EXISTS episodes (
    show_id    INTEGER NOT NULL REFERENCES shows(id) ON DELETE CASCADE,
    episode    INTEGER NOT NULL,
    link       TEXT NOT NULL DEFAULT '',
    can_edit   INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    UNIQUE(show_id, episode) ON CONFLICT REPLACE
);

CREATE TABLE IF NOT EXISTS upcoming_episodes (
    show_id     INTEGER NOT NULL REFERENCES shows(id) ON DELETE CASCADE,
    episode     INTEGER NOT NULL,
    airing_time INTEGER NOT NULL,
    UNIQUE(show_id, episode) ON CONFLICT REPLACE
);

CREATE TABLE IF NOT EXISTS ignored_episodes (
    show_id     INTEGER NOT NULL REFERENCES shows(id) ON DELETE CASCADE,
    episode     INTEGER NOT NULL,
    airing_time INTEGER NOT NULL,
    UNIQUE(show_id, episode) ON CONFLICT REPLACE
);

CREATE TABLE IF NOT EXISTS megathreads (
    show_id      INTEGER NOT NULL REFERENCES shows(id) ON DELETE CASCADE,
    thread_num   INTEGER NOT NULL,
    post_url     TEXT NOT NULL DEFAULT '',
    num_episodes INTEGER NOT NULL DEFAULT 0,
    UNIQUE(show_id, thread_num) ON CONFLICT REPLACE
);

CREATE TABLE IF NOT EXISTS external_links (
    show_id   INTEGER NOT NULL REFERENCES shows(id) ON DELETE CASCADE,
    link_type TEXT NOT NULL DEFAULT '',
    site      TEXT NOT NULL DEFAULT '',
    language  TEXT NOT NULL DEFAULT '',
    url       TEXT NOT NULL DEFAULT '',
    UNIQUE(show_id, site, language) ON CONFLICT REPLACE
);

CREATE TABLE IF NOT EXISTS images (
    show_id    INTEGER NOT NULL REFERENCES shows(id) ON DELETE CASCADE,
    image_type TEXT NOT NULL,
    image_link TEXT NOT NULL DEFAULT '',
    UNIQUE(show_id, image_type) ON CONFLICT REPLACE
);

CREATE INDEX IF NOT EXISTS idx_upcoming_airing ON upcoming_episodes(airing_time);
CREATE INDEX IF NOT EXISTS idx_ignored_airing ON ignored_episodes(airing_time);
CREATE INDEX IF NOT EXISTS idx_episodes_show ON episodes(show_id);
CREATE INDEX IF NOT EXISTS idx_megathreads_show ON megathreads(show_id);
`
