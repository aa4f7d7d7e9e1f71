package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/suggest"
)

const (
	tableTextBlocks   = "text_blocks"
	tableBlockHistory = "text_block_history"
)

// snapshotColumns are shared by text_blocks and text_block_history.
var snapshotColumns = []string{
	"extraction_id", "text", "text_type", "line", "number", "confidence", "print_control",
	"geo_x_0", "geo_y_0", "geo_x_1", "geo_y_1", "suggestions", "review",
}

var blockColumns = append(append([]string{"id", "page_id"}, snapshotColumns...), "created_at", "updated_at")

// ErrSlotTaken is returned when an included block would share (line, number) with another.
var ErrSlotTaken = fmt.Errorf("%w: another included block already holds this position", common.ErrConflict)

type TextBlockRepository interface {
	// WithTx binds the repository to an open transaction.
	WithTx(tx Querier) TextBlockRepository

	ListByPage(ctx context.Context, pageID uuid.UUID, controls ...constants.PrintControl) ([]*entity.TextBlock, error)
	CountByPage(ctx context.Context, pageID uuid.UUID) (int, error)
	CountIncludedByDocument(ctx context.Context, documentID uuid.UUID) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.TextBlock, error)
	// Get looks a block up through its full ownership path.
	Get(ctx context.Context, ref entity.BlockRef) (*entity.TextBlock, error)
	// PrecedingIncluded finds the nearest Include block before b on the same line.
	PrecedingIncluded(ctx context.Context, b *entity.TextBlock) (*entity.TextBlock, error)

	CreateBatch(ctx context.Context, blocks []*entity.TextBlock, reason string, batchSize int) error
	Create(ctx context.Context, b *entity.TextBlock, reason string) error
	Save(ctx context.Context, b *entity.TextBlock, reason string) error

	History(ctx context.Context, blockID uuid.UUID) ([]*entity.HistoryRecord, error)
	EarliestHistory(ctx context.Context, blockID uuid.UUID) (*entity.HistoryRecord, error)
}

type textBlockRepository struct {
	db     *DB
	q      Querier
	logger *slog.Logger
	now    func() time.Time
}

func NewTextBlockRepository(db *DB, logger *slog.Logger) TextBlockRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &textBlockRepository{db: db, q: db, logger: logger, now: time.Now}
}

func (r *textBlockRepository) WithTx(tx Querier) TextBlockRepository {
	c := *r
	c.q = tx
	return &c
}

func (r *textBlockRepository) ListByPage(ctx context.Context, pageID uuid.UUID, controls ...constants.PrintControl) ([]*entity.TextBlock, error) {
	b := r.db.Builder()
	preds := []*entsql.Predicate{entsql.EQ("page_id", pageID)}
	if len(controls) > 0 {
		vals := make([]any, len(controls))
		for i, c := range controls {
			vals[i] = string(c)
		}
		preds = append(preds, entsql.In("print_control", vals...))
	}
	query, args := b.Select(blockColumns...).
		From(b.Table(tableTextBlocks)).
		Where(entsql.And(preds...)).
		OrderBy("line", "number").
		Query()

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list text blocks", "page_id", pageID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.TextBlock
	for rows.Next() {
		tb, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tb)
	}
	return out, rows.Err()
}

func (r *textBlockRepository) CountByPage(ctx context.Context, pageID uuid.UUID) (int, error) {
	b := r.db.Builder()
	query, args := b.Select().Count().
		From(b.Table(tableTextBlocks)).
		Where(entsql.EQ("page_id", pageID)).
		Query()
	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		r.logger.Error("failed to count text blocks", "page_id", pageID, "error", err)
		return 0, err
	}
	return n, nil
}

func (r *textBlockRepository) CountIncludedByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	b := r.db.Builder()
	tb := b.Table(tableTextBlocks).As("tb")
	p := b.Table("pages").As("p")
	query, args := b.Select().Count(tb.C("id")).
		From(tb).
		Join(p).On(tb.C("page_id"), p.C("id")).
		Where(entsql.And(
			entsql.EQ(p.C("document_id"), documentID),
			entsql.EQ(tb.C("print_control"), string(constants.PrintInclude)),
		)).
		Query()
	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		r.logger.Error("failed to count included blocks", "document_id", documentID, "error", err)
		return 0, err
	}
	return n, nil
}

func (r *textBlockRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.TextBlock, error) {
	b := r.db.Builder()
	query, args := b.Select(blockColumns...).
		From(b.Table(tableTextBlocks)).
		Where(entsql.EQ("id", id)).
		Query()
	return r.one(ctx, query, args)
}

func (r *textBlockRepository) Get(ctx context.Context, ref entity.BlockRef) (*entity.TextBlock, error) {
	b := r.db.Builder()
	tb := b.Table(tableTextBlocks).As("tb")
	cols := make([]string, len(blockColumns))
	for i, c := range blockColumns {
		cols[i] = tb.C(c)
	}
	sel := b.Select(cols...).From(tb)
	sel = joinOwnership(b, sel, tb.C("page_id"), ref.OwnershipPath)
	sel.Where(entsql.EQ(tb.C("id"), ref.BlockID))
	query, args := sel.Query()
	return r.one(ctx, query, args)
}

func (r *textBlockRepository) PrecedingIncluded(ctx context.Context, blk *entity.TextBlock) (*entity.TextBlock, error) {
	b := r.db.Builder()
	query, args := b.Select(blockColumns...).
		From(b.Table(tableTextBlocks)).
		Where(entsql.And(
			entsql.EQ("page_id", blk.PageID),
			entsql.EQ("line", blk.Line),
			entsql.LT("number", blk.Number),
			entsql.EQ("print_control", string(constants.PrintInclude)),
		)).
		OrderBy(entsql.Desc("number")).
		Limit(1).
		Query()
	return r.one(ctx, query, args)
}

func (r *textBlockRepository) one(ctx context.Context, query string, args []any) (*entity.TextBlock, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("text block query failed", "error", err)
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, common.NotFound("text block")
	}
	return scanBlock(rows)
}

// CreateBatch inserts blocks in chunks of batchSize together with their creation history.
// Call it on a transaction-bound repository so the page's words appear atomically.
func (r *textBlockRepository) CreateBatch(ctx context.Context, blocks []*entity.TextBlock, reason string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	now := r.now().UTC()
	for _, blk := range blocks {
		r.stamp(blk, now, true)
	}
	for start := 0; start < len(blocks); start += batchSize {
		end := min(start+batchSize, len(blocks))
		chunk := blocks[start:end]

		ins := r.db.Builder().Insert(tableTextBlocks).Columns(blockColumns...)
		for _, blk := range chunk {
			vals, err := blockValues(blk)
			if err != nil {
				return err
			}
			ins.Values(vals...)
		}
		if err := r.exec(ctx, ins); err != nil {
			r.logger.Error("bulk insert text blocks failed", "page_id", chunk[0].PageID, "count", len(chunk), "error", err)
			return r.mapWriteErr(err)
		}
		if err := r.insertHistory(ctx, chunk, entity.HistoryCreated, reason, now); err != nil {
			return err
		}
	}
	r.logger.Debug("text blocks created", "count", len(blocks))
	return nil
}

func (r *textBlockRepository) Create(ctx context.Context, blk *entity.TextBlock, reason string) error {
	now := r.now().UTC()
	r.stamp(blk, now, true)
	vals, err := blockValues(blk)
	if err != nil {
		return err
	}
	ins := r.db.Builder().Insert(tableTextBlocks).Columns(blockColumns...).Values(vals...)
	if err := r.exec(ctx, ins); err != nil {
		r.logger.Error("insert text block failed", "block_id", blk.ID, "error", err)
		return r.mapWriteErr(err)
	}
	return r.insertHistory(ctx, []*entity.TextBlock{blk}, entity.HistoryCreated, reason, now)
}

// Save writes every mutable field of b and appends a "changed" history row.
func (r *textBlockRepository) Save(ctx context.Context, blk *entity.TextBlock, reason string) error {
	now := r.now().UTC()
	r.stamp(blk, now, false)
	sugg, err := encodeSuggestions(blk.Suggestions)
	if err != nil {
		return err
	}
	upd := r.db.Builder().Update(tableTextBlocks).
		Set("extraction_id", blk.ExtractionID).
		Set("text", blk.Text).
		Set("text_type", string(blk.TextType)).
		Set("line", blk.Line).
		Set("number", blk.Number).
		Set("confidence", blk.Confidence).
		Set("print_control", string(blk.PrintControl)).
		Set("geo_x_0", blk.GeoX0).
		Set("geo_y_0", blk.GeoY0).
		Set("geo_x_1", blk.GeoX1).
		Set("geo_y_1", blk.GeoY1).
		Set("suggestions", sugg).
		Set("review", blk.Review).
		Set("updated_at", blk.UpdatedAt).
		Where(entsql.EQ("id", blk.ID))
	query, args := upd.Query()
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("update text block failed", "block_id", blk.ID, "error", err)
		return r.mapWriteErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NotFound("text block")
	}
	return r.insertHistory(ctx, []*entity.TextBlock{blk}, entity.HistoryChanged, reason, now)
}

func (r *textBlockRepository) stamp(blk *entity.TextBlock, now time.Time, create bool) {
	if create {
		if blk.ID == uuid.Nil {
			blk.ID = uuid.New()
		}
		if blk.PrintControl == "" {
			blk.PrintControl = constants.PrintInclude
		}
		blk.CreatedAt = now
	}
	blk.UpdatedAt = now
}

func (r *textBlockRepository) insertHistory(ctx context.Context, blocks []*entity.TextBlock, typ entity.HistoryType, reason string, at time.Time) error {
	actor := common.ActorFromContext(ctx)
	cols := append([]string{"block_id", "page_id", "history_date", "history_type", "history_user", "history_change_reason"}, snapshotColumns...)
	ins := r.db.Builder().Insert(tableBlockHistory).Columns(cols...)
	for _, blk := range blocks {
		snap, err := snapshotValues(blk)
		if err != nil {
			return err
		}
		ins.Values(append([]any{blk.ID, blk.PageID, at, string(typ), actor, reason}, snap...)...)
	}
	if err := r.exec(ctx, ins); err != nil {
		r.logger.Error("insert text block history failed", "count", len(blocks), "error", err)
		return err
	}
	return nil
}

func (r *textBlockRepository) History(ctx context.Context, blockID uuid.UUID) ([]*entity.HistoryRecord, error) {
	return r.history(ctx, blockID, 0)
}

func (r *textBlockRepository) EarliestHistory(ctx context.Context, blockID uuid.UUID) (*entity.HistoryRecord, error) {
	recs, err := r.history(ctx, blockID, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// history returns snapshots oldest first; limit 0 means all.
func (r *textBlockRepository) history(ctx context.Context, blockID uuid.UUID, limit int) ([]*entity.HistoryRecord, error) {
	b := r.db.Builder()
	cols := append([]string{"history_id", "block_id", "page_id", "history_date", "history_type", "history_user", "history_change_reason"}, snapshotColumns...)
	sel := b.Select(cols...).
		From(b.Table(tableBlockHistory)).
		Where(entsql.EQ("block_id", blockID)).
		OrderBy("history_date", "history_id")
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to load text block history", "block_id", blockID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.HistoryRecord
	for rows.Next() {
		var (
			h       entity.HistoryRecord
			typ     string
			snapRaw rawSnapshot
		)
		dest := append([]any{&h.HistoryID, &h.BlockID, &h.Snapshot.PageID, &h.Date, &typ, &h.Actor, &h.ChangeReason}, snapRaw.dest(&h.Snapshot)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := snapRaw.finish(&h.Snapshot); err != nil {
			return nil, err
		}
		h.Type = entity.HistoryType(typ)
		h.Snapshot.ID = h.BlockID
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *textBlockRepository) exec(ctx context.Context, q entsql.Querier) error {
	query, args := q.Query()
	_, err := r.q.ExecContext(ctx, query, args...)
	return err
}

func (r *textBlockRepository) mapWriteErr(err error) error {
	if !IsUniqueViolation(err) {
		return err
	}
	r.logger.Warn("included slot already taken", "err", err)
	return common.NewAppError("CONFLICT", "Another included block already holds this position", &slotTakenError{driver: err})
}

// slotTakenError matches ErrSlotTaken and the driver error without printing the latter.
type slotTakenError struct {
	driver error
}

func (e *slotTakenError) Error() string { return ErrSlotTaken.Error() }

func (e *slotTakenError) Unwrap() []error { return []error{ErrSlotTaken, e.driver} }

// rawSnapshot holds the columns that need decoding after Scan.
type rawSnapshot struct {
	textType, printControl string
	suggestions            []byte
}

func (s *rawSnapshot) dest(tb *entity.TextBlock) []any {
	return []any{
		&tb.ExtractionID, &tb.Text, &s.textType, &tb.Line, &tb.Number, &tb.Confidence, &s.printControl,
		&tb.GeoX0, &tb.GeoY0, &tb.GeoX1, &tb.GeoY1, &s.suggestions, &tb.Review,
	}
}

func (s *rawSnapshot) finish(tb *entity.TextBlock) error {
	tb.TextType = constants.TextType(s.textType)
	tb.PrintControl = constants.PrintControl(s.printControl)
	tb.Suggestions = []suggest.Suggestion{}
	if len(s.suggestions) > 0 {
		if err := json.Unmarshal(s.suggestions, &tb.Suggestions); err != nil {
			return fmt.Errorf("decode suggestions: %w", err)
		}
	}
	return nil
}

func scanBlock(rows *sql.Rows) (*entity.TextBlock, error) {
	var (
		tb  entity.TextBlock
		raw rawSnapshot
	)
	dest := append([]any{&tb.ID, &tb.PageID}, raw.dest(&tb)...)
	dest = append(dest, &tb.CreatedAt, &tb.UpdatedAt)
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	if err := raw.finish(&tb); err != nil {
		return nil, err
	}
	return &tb, nil
}

func encodeSuggestions(s []suggest.Suggestion) (string, error) {
	if s == nil {
		s = []suggest.Suggestion{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode suggestions: %w", err)
	}
	return string(b), nil
}

func snapshotValues(tb *entity.TextBlock) ([]any, error) {
	sugg, err := encodeSuggestions(tb.Suggestions)
	if err != nil {
		return nil, err
	}
	return []any{
		tb.ExtractionID, tb.Text, string(tb.TextType), tb.Line, tb.Number, tb.Confidence, string(tb.PrintControl),
		tb.GeoX0, tb.GeoY0, tb.GeoX1, tb.GeoY1, sugg, tb.Review,
	}, nil
}

func blockValues(tb *entity.TextBlock) ([]any, error) {
	snap, err := snapshotValues(tb)
	if err != nil {
		return nil, err
	}
	vals := append([]any{tb.ID, tb.PageID}, snap...)
	return append(vals, tb.CreatedAt, tb.UpdatedAt), nil
}
