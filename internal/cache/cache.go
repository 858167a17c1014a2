// Package cache persists completed MRF builds keyed by a content hash of
// the fixture (schema, clauses, evidence) and build flags that produced
// them, backed by modernc.org/sqlite, a cgo-free sqlite driver. Given a
// fixed schema, constants, clauses, evidence, and build flags, the set
// of emitted constraints and the atom ID set are deterministic,
// exactly the precondition a cache needs: re-grounding an unchanged
// theory is always safe to skip.
package cache

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"

	"mlnground/internal/config"
	"mlnground/internal/logging"
	"mlnground/internal/mrf"
)

// schemaDDL creates the single-table cache schema on first open: an
// idempotent CREATE TABLE IF NOT EXISTS rather than a versioned
// migration runner, since this cache has exactly one table and no
// evolving column set to migrate.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS builds (
	fingerprint TEXT PRIMARY KEY,
	payload     BLOB NOT NULL,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Cache is a sqlite-backed store of finished MRF builds.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and ensures
// its schema exists.
func Open(path string) (*Cache, error) {
	log := logging.Get(logging.CategoryCache)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	log.Debugw("cache opened", "path", path)
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Fingerprint computes the stable cache key for a (fixture, build config)
// pair: the sha256 of a canonical serialization of the fixture's domains
// (sorted by name, so the hash is independent of map iteration order),
// predicates, clauses, and evidence, concatenated with the build flags.
// Two fixture files that differ only in comment text or key order hash
// identically; any change to domains, predicates, clauses, evidence, or
// flags changes the hash.
func Fingerprint(fx *config.Fixture, cfg config.BuildConfig) string {
	h := sha256.New()

	names := make([]string, 0, len(fx.Domains))
	for name := range fx.Domains {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(h, "domain %s %q\n", name, fx.Domains[name])
	}

	for _, p := range fx.Predicates {
		fmt.Fprintf(h, "pred %s %q %s\n", p.Name, p.Domains, p.Role)
	}
	for _, c := range fx.Clauses {
		fmt.Fprintf(h, "clause %s\n", c.Weight)
		for _, l := range c.Literals {
			fmt.Fprintf(h, "lit %s %t %q\n", l.Predicate, l.Negated, l.Args)
		}
	}
	for _, f := range fx.Evidence {
		fmt.Fprintf(h, "fact %s %q %s", f.Predicate, f.Args, f.Value)
		if f.Probability != nil {
			fmt.Fprintf(h, " %g", *f.Probability)
		}
		fmt.Fprintln(h)
	}

	fmt.Fprintf(h, "flags %t %t %t %g\n",
		cfg.NoNegWeights, cfg.EliminateNegatedUnit, cfg.CreateDependencyMap, cfg.ParallelismRatio)
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks up fingerprint, returning the cached MRF and true on a hit,
// or a nil MRF and false on a miss.
func (c *Cache) Get(fingerprint string) (*mrf.MRF, bool, error) {
	log := logging.Get(logging.CategoryCache)
	var payload []byte
	err := c.db.QueryRow(`SELECT payload FROM builds WHERE fingerprint = ?`, fingerprint).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", fingerprint, err)
	}
	var m mrf.MRF
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&m); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", fingerprint, err)
	}
	log.Debugw("cache hit", "fingerprint", fingerprint)
	return &m, true, nil
}

// Put stores m under fingerprint, replacing any prior entry (a caller
// re-grounding the same fixture with the same flags always produces the
// same constraint/atom content, so a newer build is never "wrong" to
// overwrite an older one, only a redundant write).
func (c *Cache) Put(fingerprint string, m *mrf.MRF) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("cache: encode %s: %w", fingerprint, err)
	}
	_, err := c.db.Exec(
		`INSERT INTO builds (fingerprint, payload) VALUES (?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET payload = excluded.payload, created_at = CURRENT_TIMESTAMP`,
		fingerprint, buf.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", fingerprint, err)
	}
	logging.Get(logging.CategoryCache).Debugw("cache stored", "fingerprint", fingerprint)
	return nil
}
