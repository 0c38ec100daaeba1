// Package nodecache persists a Sync's SyncNode tree to SQLite so a
// restart resumes from the last flushed state instead of rescanning
// both sides from scratch, mirroring the teacher's sync_journal.go
// almost one-to-one — a single flat table keyed by a dense id, with
// mutations batched per pass — but keyed on a self-referencing
// parent_dbid column instead of a flat path string, so the persisted
// shape is the tree itself rather than a lossy path index (spec §4.4).
package nodecache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	syncdb "github.com/foldersync/syncengine/internal/db"
	"github.com/foldersync/syncengine/internal/reconcile/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_nodes (
	dbid              INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_dbid       INTEGER NOT NULL DEFAULT 0,
	node_type         INTEGER NOT NULL,
	name              TEXT NOT NULL,
	short_name        TEXT NOT NULL,
	fp_size           INTEGER,
	fp_mtime          INTEGER,
	fp_crc            INTEGER,
	fs_id             TEXT NOT NULL DEFAULT '',
	cloud_handle      TEXT NOT NULL DEFAULT '',
	tree_state        INTEGER NOT NULL DEFAULT 0,
	deletion_pending  INTEGER NOT NULL DEFAULT 0,
	scan_again        INTEGER NOT NULL DEFAULT 0,
	check_moves_again INTEGER NOT NULL DEFAULT 0,
	last_seen_mtime   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sync_nodes_parent ON sync_nodes(parent_dbid);
`

// row is the flat persisted shape of one SyncNode.
type row struct {
	DBID            int64         `db:"dbid"`
	ParentDBID      int64         `db:"parent_dbid"`
	NodeType        int           `db:"node_type"`
	Name            string        `db:"name"`
	ShortName       string        `db:"short_name"`
	FPSize          sql.NullInt64 `db:"fp_size"`
	FPModTime       sql.NullInt64 `db:"fp_mtime"`
	FPCRC           sql.NullInt64 `db:"fp_crc"`
	FsID            string        `db:"fs_id"`
	CloudHandle     string        `db:"cloud_handle"`
	TreeState       int           `db:"tree_state"`
	DeletionPending bool          `db:"deletion_pending"`
	ScanAgain       int           `db:"scan_again"`
	CheckMovesAgain int           `db:"check_moves_again"`
	LastSeenMTime   int64         `db:"last_seen_mtime"`
}

// Cache is the persisted mirror of one Sync's SyncNode tree.
type Cache struct {
	db *sqlx.DB

	// inserts, updates, and deletes accumulate between flushes so a full
	// pass's worth of tree mutation commits in a single transaction,
	// matching the teacher's batch-write discipline in sync_engine.go's
	// executeReconcileOperations.
	inserts []*model.SyncNode
	updates []*model.SyncNode
	deletes []int64
}

// Open opens or creates the node cache at path (":memory:" for an
// ephemeral cache, used by tests and by syncs with no persistent
// storage requirement).
func Open(path string) (*Cache, error) {
	database, err := syncdb.NewSqliteDB(syncdb.WithPath(path))
	if err != nil {
		return nil, fmt.Errorf("open node cache: %w", err)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create node cache schema: %w", err)
	}
	return &Cache{db: database}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }

// Destroy drops the schema and closes the cache, used when a sync is
// permanently removed (spec §6's "purge").
func (c *Cache) Destroy(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DROP TABLE IF EXISTS sync_nodes;`); err != nil {
		return fmt.Errorf("drop node cache: %w", err)
	}
	return c.Close()
}

// QueueInsert stages n for the next Flush. n.DBID is assigned once
// Flush actually writes it.
func (c *Cache) QueueInsert(n *model.SyncNode) {
	c.inserts = append(c.inserts, n)
}

// QueueDelete stages the row with the given dbid for removal on the
// next Flush.
func (c *Cache) QueueDelete(dbid int64) {
	c.deletes = append(c.deletes, dbid)
}

// QueueUpdate stages n's current field values for the next Flush,
// overwriting the row already persisted under n.DBID. Used when a
// reconciliation pass mutates a node already paired to a cache row —
// an in-place move/rename, a content update after a downsync/upsync,
// or a cloud handle changing — without breaking the row's dbid, since
// descendants' parent_dbid references point at that unchanged dbid.
func (c *Cache) QueueUpdate(n *model.SyncNode) {
	c.updates = append(c.updates, n)
}

// Flush commits every queued insert, update, and delete in one
// transaction, then clears the queues. Nodes queued for insert have
// their DBID field populated with the assigned row id.
func (c *Cache) Flush(ctx context.Context) error {
	if len(c.inserts) == 0 && len(c.updates) == 0 && len(c.deletes) == 0 {
		return nil
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush transaction: %w", err)
	}
	defer tx.Rollback()

	for _, n := range c.inserts {
		// parent_dbid follows the in-memory parent link. Parents are
		// queued before their children, so a new parent's DBID is
		// already assigned by the time its child is written.
		if p := n.ParentNode(); p != nil {
			n.Parent = p.DBID
		}
		r := toRow(n)
		res, err := tx.NamedExecContext(ctx, insertSQL, r)
		if err != nil {
			return fmt.Errorf("insert sync node %q: %w", n.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read inserted row id for %q: %w", n.Name, err)
		}
		n.DBID = id
	}

	for _, n := range c.updates {
		if p := n.ParentNode(); p != nil {
			n.Parent = p.DBID
		}
		r := toRow(n)
		r.DBID = n.DBID
		if _, err := tx.NamedExecContext(ctx, updateSQL, r); err != nil {
			return fmt.Errorf("update sync node %d: %w", n.DBID, err)
		}
	}

	for _, dbid := range c.deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sync_nodes WHERE dbid = ?`, dbid); err != nil {
			return fmt.Errorf("delete sync node %d: %w", dbid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush transaction: %w", err)
	}

	c.inserts = c.inserts[:0]
	c.updates = c.updates[:0]
	c.deletes = c.deletes[:0]
	return nil
}

const insertSQL = `
INSERT INTO sync_nodes (
	parent_dbid, node_type, name, short_name, fp_size, fp_mtime, fp_crc,
	fs_id, cloud_handle, tree_state, deletion_pending, scan_again,
	check_moves_again, last_seen_mtime
) VALUES (
	:parent_dbid, :node_type, :name, :short_name, :fp_size, :fp_mtime, :fp_crc,
	:fs_id, :cloud_handle, :tree_state, :deletion_pending, :scan_again,
	:check_moves_again, :last_seen_mtime
)`

const updateSQL = `
UPDATE sync_nodes SET
	parent_dbid = :parent_dbid, node_type = :node_type, name = :name,
	short_name = :short_name, fp_size = :fp_size, fp_mtime = :fp_mtime,
	fp_crc = :fp_crc, fs_id = :fs_id, cloud_handle = :cloud_handle,
	tree_state = :tree_state, deletion_pending = :deletion_pending,
	scan_again = :scan_again, check_moves_again = :check_moves_again,
	last_seen_mtime = :last_seen_mtime
WHERE dbid = :dbid`

// LoadTree rebuilds the in-memory SyncNode tree from the persisted
// rows, joining children to parents by parent_dbid. It returns the
// synthetic root SyncNode (DBID 0) whose Children are the sync root's
// top-level entries. caseFold classifies each child by the filesystem
// family's folding rule, used to populate ChildrenFold consistently
// with a fresh scan (spec §4.4's crash-recovery contract: after
// LoadTree, the tree looks the same as it would after a full rescan).
//
// A row whose parent_dbid is missing — a crash can persist a child
// insert without its parent, or a parent delete that didn't cascade —
// is an orphan. Startup rebuild discards the whole orphaned subtree
// instead of failing to open the cache; a stray row is recovered by the
// next full scan re-discovering the entry from the live tree, not by
// blocking every future open.
func (c *Cache) LoadTree(ctx context.Context, caseFold func(name string) string) (*model.SyncNode, error) {
	var rows []row
	if err := c.db.SelectContext(ctx, &rows, `SELECT * FROM sync_nodes ORDER BY dbid`); err != nil {
		return nil, fmt.Errorf("load sync nodes: %w", err)
	}

	root := model.NewSyncNode("", model.NodeTypeFolder)
	byDBID := map[int64]*model.SyncNode{0: root}
	attached := map[int64]bool{0: true}

	nodes := make(map[int64]*model.SyncNode, len(rows))
	for _, r := range rows {
		nodes[r.DBID] = fromRow(r)
	}

	// A moved node can have a lower dbid than its new parent, so rows
	// are attached in repeated sweeps until a sweep attaches nothing.
	pending := rows
	for len(pending) > 0 {
		var next []row
		for _, r := range pending {
			if !attached[r.ParentDBID] {
				next = append(next, r)
				continue
			}
			n := nodes[r.DBID]
			byDBID[r.ParentDBID].Attach(n, caseFold(n.Name))
			byDBID[r.DBID] = n
			attached[r.DBID] = true
		}
		if len(next) == len(pending) {
			break
		}
		pending = next
	}
	var orphaned []int64
	for _, r := range pending {
		orphaned = append(orphaned, r.DBID)
	}

	if len(orphaned) > 0 {
		slog.Warn("node cache: discarding orphaned rows on load", "count", len(orphaned), "dbids", orphaned)
	}
	return root, nil
}

func toRow(n *model.SyncNode) row {
	r := row{
		ParentDBID:      n.Parent,
		NodeType:        int(n.Type),
		Name:            n.Name,
		ShortName:       n.ShortName,
		FsID:            n.FsID,
		CloudHandle:     hex.EncodeToString(n.CloudHandle[:]),
		TreeState:       int(n.Tree),
		DeletionPending: n.DeletionPending,
		ScanAgain:       int(n.ScanAgain),
		CheckMovesAgain: int(n.CheckMovesAgain),
		LastSeenMTime:   n.LastSeenModTime.Unix(),
	}
	if n.Fingerprint != nil {
		r.FPSize = sql.NullInt64{Int64: n.Fingerprint.Size, Valid: true}
		r.FPModTime = sql.NullInt64{Int64: n.Fingerprint.ModTime.Unix(), Valid: true}
		r.FPCRC = sql.NullInt64{Int64: int64(n.Fingerprint.CRC), Valid: true}
	}
	return r
}

func fromRow(r row) *model.SyncNode {
	n := model.NewSyncNode(r.Name, model.NodeType(r.NodeType))
	n.DBID = r.DBID
	n.Parent = r.ParentDBID
	n.ShortName = r.ShortName
	n.FsID = r.FsID
	n.Tree = model.TreeState(r.TreeState)
	n.DeletionPending = r.DeletionPending
	n.ScanAgain = model.ScanFlag(r.ScanAgain)
	n.CheckMovesAgain = model.ScanFlag(r.CheckMovesAgain)
	n.LastSeenModTime = time.Unix(r.LastSeenMTime, 0).UTC()

	if handle, err := hex.DecodeString(r.CloudHandle); err == nil && len(handle) == len(n.CloudHandle) {
		copy(n.CloudHandle[:], handle)
	}
	if r.FPSize.Valid {
		n.Fingerprint = &model.Fingerprint{
			Size:    r.FPSize.Int64,
			ModTime: time.Unix(r.FPModTime.Int64, 0).UTC(),
			CRC:     uint32(r.FPCRC.Int64),
		}
	}
	return n
}
