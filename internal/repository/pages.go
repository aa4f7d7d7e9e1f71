package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/entity"
)

type PageRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Page, error)
	// Resolve loads a page through its ownership path, with its document, organization
	// and configured cloud service.
	Resolve(ctx context.Context, path entity.OwnershipPath) (*entity.PageContext, error)
	// Context is Resolve by page id, for background work that has no caller path.
	Context(ctx context.Context, pageID uuid.UUID) (*entity.PageContext, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.Page, error)
	Create(ctx context.Context, documentID uuid.UUID, number int, imagePath string) (*entity.Page, error)
}

type pageRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewPageRepository(db *DB, logger *slog.Logger) PageRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &pageRepository{db: db, logger: logger}
}

var pageColumns = []string{"id", "document_id", "number", "image_path", "created_at"}

func (r *pageRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Page, error) {
	b := r.db.Builder()
	query, args := b.Select(pageColumns...).From(b.Table("pages")).Where(entsql.EQ("id", id)).Query()
	var p entity.Page
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.DocumentID, &p.Number, &p.ImagePath, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, common.NotFound("page")
	}
	if err != nil {
		r.logger.Error("failed to get page", "page_id", id, "error", err)
		return nil, err
	}
	return &p, nil
}

func (r *pageRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.Page, error) {
	b := r.db.Builder()
	query, args := b.Select(pageColumns...).
		From(b.Table("pages")).
		Where(entsql.EQ("document_id", documentID)).
		OrderBy("number").
		Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list pages", "document_id", documentID, "error", err)
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Page
	for rows.Next() {
		var p entity.Page
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Number, &p.ImagePath, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *pageRepository) Create(ctx context.Context, documentID uuid.UUID, number int, imagePath string) (*entity.Page, error) {
	if err := common.Validate(common.NewValidator().Field("number", number, common.Positive)); err != nil {
		return nil, err
	}
	p := &entity.Page{
		ID:         uuid.New(),
		DocumentID: documentID,
		Number:     number,
		ImagePath:  imagePath,
		CreatedAt:  time.Now().UTC(),
	}
	query, args := r.db.Builder().Insert("pages").
		Columns(pageColumns...).
		Values(p.ID, p.DocumentID, p.Number, p.ImagePath, p.CreatedAt).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to create page", "document_id", documentID, "number", number, "error", err)
		return nil, err
	}
	return p, nil
}

func (r *pageRepository) Resolve(ctx context.Context, path entity.OwnershipPath) (*entity.PageContext, error) {
	b := r.db.Builder()
	t := newOwnershipTables(b)
	sel := r.contextSelect(b, t)
	t.join(sel, t.p.C("id"))
	t.filter(sel, path)
	r.withCloudService(b, sel, t)
	return r.scanContext(ctx, sel, path.String())
}

func (r *pageRepository) Context(ctx context.Context, pageID uuid.UUID) (*entity.PageContext, error) {
	b := r.db.Builder()
	t := newOwnershipTables(b)
	sel := r.contextSelect(b, t)
	t.join(sel, t.p.C("id"))
	sel.Where(entsql.EQ(t.p.C("id"), pageID))
	r.withCloudService(b, sel, t)
	return r.scanContext(ctx, sel, pageID.String())
}

// contextSelect selects page, document, organization and cloud service columns from pages.
func (r *pageRepository) contextSelect(b *entsql.DialectBuilder, t ownershipTables) *entsql.Selector {
	cs := b.Table("cloud_services").As("cs")
	return b.Select(
		t.p.C("id"), t.p.C("document_id"), t.p.C("number"), t.p.C("image_path"), t.p.C("created_at"),
		t.d.C("id"), t.d.C("collection_id"), t.d.C("identifier"), t.d.C("use_long_s_detection"), t.d.C("created_at"),
		t.o.C("id"), t.o.C("name"), t.o.C("short_name"), t.o.C("created_at"),
		cs.C("id"), cs.C("service"), cs.C("client_id"), cs.C("client_secret"), cs.C("region"),
	).From(t.p)
}

func (r *pageRepository) withCloudService(b *entsql.DialectBuilder, sel *entsql.Selector, t ownershipTables) {
	cs := b.Table("cloud_services").As("cs")
	sel.LeftJoin(cs).On(t.o.C("id"), cs.C("organization_id"))
}

func (r *pageRepository) scanContext(ctx context.Context, sel *entsql.Selector, key string) (*entity.PageContext, error) {
	query, args := sel.Query()
	var (
		pc      entity.PageContext
		csID    uuid.NullUUID
		service sql.NullString
		client  sql.NullString
		secret  sql.NullString
		region  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&pc.Page.ID, &pc.Page.DocumentID, &pc.Page.Number, &pc.Page.ImagePath, &pc.Page.CreatedAt,
		&pc.Document.ID, &pc.Document.CollectionID, &pc.Document.Identifier, &pc.Document.UseLongSDetection, &pc.Document.CreatedAt,
		&pc.Organization.ID, &pc.Organization.Name, &pc.Organization.ShortName, &pc.Organization.CreatedAt,
		&csID, &service, &client, &secret, &region,
	)
	if err == sql.ErrNoRows {
		return nil, common.NotFound("page")
	}
	if err != nil {
		r.logger.Error("failed to resolve page", "page", key, "error", err)
		return nil, err
	}
	if csID.Valid {
		pc.CloudService = &entity.CloudService{
			ID:             csID.UUID,
			OrganizationID: pc.Organization.ID,
			Service:        constants.CloudService(service.String),
			ClientID:       client.String,
			ClientSecret:   secret.String,
			Region:         region.String,
		}
	}
	return &pc, nil
}

// ownershipTables are the aliased tables of the page ownership chain.
type ownershipTables struct {
	p, d, c, o *entsql.SelectTable
}

func newOwnershipTables(b *entsql.DialectBuilder) ownershipTables {
	return ownershipTables{
		p: b.Table("pages").As("p"),
		d: b.Table("documents").As("d"),
		c: b.Table("collections").As("c"),
		o: b.Table("organizations").As("o"),
	}
}

// join adds the chain to sel. pageIDCol is the column holding the page id; when it is
// the pages alias' own id, sel must already select from pages.
func (t ownershipTables) join(sel *entsql.Selector, pageIDCol string) {
	if pageIDCol != t.p.C("id") {
		sel.Join(t.p).On(pageIDCol, t.p.C("id"))
	}
	sel.Join(t.d).On(t.p.C("document_id"), t.d.C("id")).
		Join(t.c).On(t.d.C("collection_id"), t.c.C("id")).
		Join(t.o).On(t.c.C("organization_id"), t.o.C("id"))
}

// filter restricts sel to every segment of path.
func (t ownershipTables) filter(sel *entsql.Selector, path entity.OwnershipPath) {
	sel.Where(entsql.And(
		entsql.EQ(t.o.C("short_name"), path.Organization),
		entsql.EQ(t.c.C("slug"), path.Collection),
		entsql.EQ(t.d.C("identifier"), path.Document),
		entsql.EQ(t.p.C("number"), path.Page),
	))
}

// joinOwnership joins the ownership chain onto sel and filters it by path.
func joinOwnership(b *entsql.DialectBuilder, sel *entsql.Selector, pageIDCol string, path entity.OwnershipPath) *entsql.Selector {
	t := newOwnershipTables(b)
	t.join(sel, pageIDCol)
	t.filter(sel, path)
	return sel
}
