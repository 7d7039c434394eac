package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedscroll/internal/model"
	"feedscroll/internal/source"
	"feedscroll/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const itemColumns = `seq, id, title, description, image_url, link, kind, created_at`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ source.Source = (*SQLite)(nil)

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertItems inserts new items and refreshes existing ones, matched by ID.
// Existing items keep their position in the catalogue. It returns the
// number of items that were new.
func (s *SQLite) UpsertItems(ctx context.Context, items []model.Item) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, it := range items {
		if it.ID == "" {
			return 0, fmt.Errorf("upsert item %q: empty id", it.Title)
		}
		created := it.CreatedAt.UTC().Format(timeLayout)

		var seq int64
		err := tx.QueryRowContext(ctx, `SELECT seq FROM items WHERE id = ?`, it.ID).Scan(&seq)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO items (id, title, description, image_url, link, kind, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				it.ID, it.Title, it.Description, it.ImageURL, it.Link, it.Kind.String(), created,
			)
			if err != nil {
				return 0, fmt.Errorf("insert item %s: %w", it.ID, err)
			}
			if seq, err = res.LastInsertId(); err != nil {
				return 0, fmt.Errorf("last insert id: %w", err)
			}
			inserted++
		case err != nil:
			return 0, fmt.Errorf("lookup item %s: %w", it.ID, err)
		default:
			_, err := tx.ExecContext(ctx,
				`UPDATE items SET title = ?, description = ?, image_url = ?, link = ?, kind = ?, created_at = ?
				 WHERE seq = ?`,
				it.Title, it.Description, it.ImageURL, it.Link, it.Kind.String(), created, seq,
			)
			if err != nil {
				return 0, fmt.Errorf("update item %s: %w", it.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_seq = ?`, seq); err != nil {
				return 0, fmt.Errorf("clear tags of %s: %w", it.ID, err)
			}
		}

		for pos, tag := range it.Tags {
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO item_tags (item_seq, position, tag) VALUES (?, ?, ?)`,
				seq, pos, tag,
			)
			if err != nil {
				return 0, fmt.Errorf("insert tag %q of %s: %w", tag, it.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// GetItem returns a single item by its ID.
func (s *SQLite) GetItem(ctx context.Context, id string) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	seq, it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	tags, err := s.loadTags(ctx, []int64{seq})
	if err != nil {
		return nil, err
	}
	it.Tags = tags[seq]
	return &it, nil
}

// CountItems returns the number of items in the catalogue.
func (s *SQLite) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// DeleteItem removes an item and its tags.
func (s *SQLite) DeleteItem(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM item_tags WHERE item_seq IN (SELECT seq FROM items WHERE id = ?)`, id,
	); err != nil {
		return fmt.Errorf("delete item_tags: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// Fetch returns one page of the catalogue, newest items first. The cursor
// is the sequence number of the last item on the previous page, so items
// imported while a client is scrolling never shift later pages.
//
// Search matching folds ASCII case only (SQLite lower()).
func (s *SQLite) Fetch(ctx context.Context, req model.PageRequest) (model.PageResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = source.DefaultLimit
	}

	var after int64
	if req.Cursor != "" {
		v, err := strconv.ParseInt(req.Cursor, 10, 64)
		if err != nil || v <= 0 {
			return model.PageResponse{}, fmt.Errorf("cursor %q: %w", req.Cursor, source.ErrInvalidCursor)
		}
		after = v
	}

	where, args := filterClause(model.Query{Search: req.Search, Tags: req.Tags}.Normalize())

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`+where, args...).Scan(&total); err != nil {
		return model.PageResponse{}, fmt.Errorf("count page: %w", err)
	}

	pageWhere, pageArgs := where, args
	if after > 0 {
		pageWhere = appendCondition(where, "seq < ?")
		pageArgs = append(append([]any(nil), args...), after)
	}
	pageArgs = append(pageArgs, limit+1)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items`+pageWhere+` ORDER BY seq DESC LIMIT ?`, pageArgs...,
	)
	if err != nil {
		return model.PageResponse{}, fmt.Errorf("query page: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		items []model.Item
		seqs  []int64
	)
	for rows.Next() {
		seq, it, err := scanItem(rows)
		if err != nil {
			return model.PageResponse{}, err
		}
		seqs = append(seqs, seq)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return model.PageResponse{}, fmt.Errorf("iterate page: %w", err)
	}

	resp := model.PageResponse{TotalCount: total}
	if len(items) > limit {
		items, seqs = items[:limit], seqs[:limit]
		resp.NextCursor = strconv.FormatInt(seqs[limit-1], 10)
	}

	tags, err := s.loadTags(ctx, seqs)
	if err != nil {
		return model.PageResponse{}, err
	}
	for i := range items {
		items[i].Tags = tags[seqs[i]]
	}
	resp.Items = items
	return resp, nil
}

func filterClause(q model.Query) (string, []any) {
	var (
		where string
		args  []any
	)
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		where = appendCondition(where, "(instr(lower(title), ?) > 0 OR instr(lower(description), ?) > 0)")
		args = append(args, needle, needle)
	}
	if len(q.Tags) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(q.Tags)), ", ")
		where = appendCondition(where,
			"EXISTS (SELECT 1 FROM item_tags t WHERE t.item_seq = items.seq AND t.tag IN ("+marks+"))")
		for _, tag := range q.Tags {
			args = append(args, tag)
		}
	}
	return where, args
}

func appendCondition(where, cond string) string {
	if where == "" {
		return " WHERE " + cond
	}
	return where + " AND " + cond
}

func (s *SQLite) loadTags(ctx context.Context, seqs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(seqs))
	if len(seqs) == 0 {
		return out, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(seqs)), ", ")
	args := make([]any, len(seqs))
	for i, seq := range seqs {
		args[i] = seq
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_seq, tag FROM item_tags WHERE item_seq IN (`+marks+`) ORDER BY item_seq, position`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			seq int64
			tag string
		)
		if err := rows.Scan(&seq, &tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out[seq] = append(out[seq], tag)
	}
	return out, rows.Err()
}

// EnsureFeed stores feed unless a feed with the same URL exists, and
// populates feed from the stored row.
func (s *SQLite) EnsureFeed(ctx context.Context, feed *model.Feed) error {
	if feed.IntervalMinutes <= 0 {
		feed.IntervalMinutes = 15
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO feeds (name, url, interval_minutes, is_active, created_at)
		 VALUES (?, ?, ?, 1, ?)`,
		feed.Name, feed.URL, feed.IntervalMinutes, now,
	)
	if err != nil {
		return fmt.Errorf("insert feed: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, interval_minutes, is_active, last_check_at, created_at
		 FROM feeds WHERE url = ?`, feed.URL,
	)
	stored, err := scanFeed(row)
	if err != nil {
		return err
	}
	*feed = *stored
	return nil
}

// ListFeeds returns every registered feed.
func (s *SQLite) ListFeeds(ctx context.Context) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, interval_minutes, is_active, last_check_at, created_at
		 FROM feeds ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFeeds(rows)
}

// ListDueFeeds returns all active feeds that are due for checking at now.
func (s *SQLite) ListDueFeeds(ctx context.Context, now time.Time) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, interval_minutes, is_active, last_check_at, created_at
		 FROM feeds
		 WHERE is_active = 1
		   AND (last_check_at IS NULL
		        OR datetime(last_check_at, '+' || interval_minutes || ' minutes') <= datetime(?))
		 ORDER BY id`,
		now.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query due feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFeeds(rows)
}

// UpdateFeed persists changes to an existing feed.
func (s *SQLite) UpdateFeed(ctx context.Context, feed *model.Feed) error {
	var lastCheck *string
	if feed.LastCheckAt != nil {
		v := feed.LastCheckAt.UTC().Format(timeLayout)
		lastCheck = &v
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET name = ?, url = ?, interval_minutes = ?, is_active = ?, last_check_at = ?
		 WHERE id = ?`,
		feed.Name, feed.URL, feed.IntervalMinutes, boolToInt(feed.IsActive), lastCheck, feed.ID,
	)
	if err != nil {
		return fmt.Errorf("update feed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("feed %d: %w", feed.ID, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanItem(row scannable) (int64, model.Item, error) {
	var (
		seq     int64
		it      model.Item
		kind    string
		created string
	)
	err := row.Scan(&seq, &it.ID, &it.Title, &it.Description, &it.ImageURL, &it.Link, &kind, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, it, err
	}
	if err != nil {
		return 0, it, fmt.Errorf("scan item: %w", err)
	}
	if it.Kind, err = model.ParseKind(kind); err != nil {
		return 0, it, fmt.Errorf("item %s: %w", it.ID, err)
	}
	it.CreatedAt, _ = time.Parse(timeLayout, created)
	return seq, it, nil
}

func scanFeed(row scannable) (*model.Feed, error) {
	var f model.Feed
	var isActive int
	var lastCheck, created sql.NullString
	err := row.Scan(&f.ID, &f.Name, &f.URL, &f.IntervalMinutes, &isActive, &lastCheck, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	f.IsActive = isActive == 1
	if lastCheck.Valid {
		t, _ := time.Parse(timeLayout, lastCheck.String)
		f.LastCheckAt = &t
	}
	if created.Valid {
		f.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &f, nil
}

func scanFeeds(rows *sql.Rows) ([]model.Feed, error) {
	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}
