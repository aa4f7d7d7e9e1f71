package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/entity"
)

// OrganizationRepository manages the ownership chain above pages: organizations,
// their collections and documents, and the organization's extraction backend.
type OrganizationRepository interface {
	CreateOrganization(ctx context.Context, name, shortName string) (*entity.Organization, error)
	GetByShortName(ctx context.Context, shortName string) (*entity.Organization, error)
	SetCloudService(ctx context.Context, cs *entity.CloudService) error
	CreateCollection(ctx context.Context, orgID uuid.UUID, name, slug string) (*entity.Collection, error)
	CreateDocument(ctx context.Context, collectionID uuid.UUID, identifier string, useLongS bool) (*entity.Document, error)
	// GetDocument resolves a document through organization short name and collection slug.
	GetDocument(ctx context.Context, org, collection, identifier string) (*entity.Document, error)
}

type organizationRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewOrganizationRepository(db *DB, logger *slog.Logger) OrganizationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &organizationRepository{db: db, logger: logger}
}

func (r *organizationRepository) CreateOrganization(ctx context.Context, name, shortName string) (*entity.Organization, error) {
	v := common.NewValidator().
		Field("name", name, common.Required).
		Field("short_name", shortName, common.Required, common.Slug)
	if err := common.Validate(v); err != nil {
		return nil, err
	}
	org := &entity.Organization{ID: uuid.New(), Name: name, ShortName: shortName, CreatedAt: time.Now().UTC()}
	query, args := r.db.Builder().Insert("organizations").
		Columns("id", "name", "short_name", "created_at").
		Values(org.ID, org.Name, org.ShortName, org.CreatedAt).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to create organization", "short_name", shortName, "error", err)
		if IsUniqueViolation(err) {
			return nil, common.NewAppError("CONFLICT", "organization short name already in use", common.ErrConflict)
		}
		return nil, err
	}
	return org, nil
}

func (r *organizationRepository) GetByShortName(ctx context.Context, shortName string) (*entity.Organization, error) {
	b := r.db.Builder()
	query, args := b.Select("id", "name", "short_name", "created_at").
		From(b.Table("organizations")).
		Where(entsql.EQ("short_name", shortName)).
		Query()
	var org entity.Organization
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&org.ID, &org.Name, &org.ShortName, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, common.NotFound("organization")
	}
	if err != nil {
		r.logger.Error("failed to get organization", "short_name", shortName, "error", err)
		return nil, err
	}
	return &org, nil
}

// SetCloudService replaces the organization's backend configuration.
func (r *organizationRepository) SetCloudService(ctx context.Context, cs *entity.CloudService) error {
	if !cs.Service.Valid() {
		return common.Invalid("unknown cloud service " + string(cs.Service))
	}
	if cs.ID == uuid.Nil {
		cs.ID = uuid.New()
	}
	query, args := r.db.Builder().Insert("cloud_services").
		Columns("id", "organization_id", "service", "client_id", "client_secret", "region").
		Values(cs.ID, cs.OrganizationID, string(cs.Service), cs.ClientID, cs.ClientSecret, cs.Region).
		OnConflict(
			entsql.ConflictColumns("organization_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("service")
				u.SetExcluded("client_id")
				u.SetExcluded("client_secret")
				u.SetExcluded("region")
			}),
		).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to set cloud service", "organization_id", cs.OrganizationID, "error", err)
		return err
	}
	r.logger.Info("cloud service configured", "organization_id", cs.OrganizationID, "service", cs.Service.Display())
	return nil
}

func (r *organizationRepository) CreateCollection(ctx context.Context, orgID uuid.UUID, name, slug string) (*entity.Collection, error) {
	v := common.NewValidator().
		Field("name", name, common.Required).
		Field("slug", slug, common.Required, common.Slug)
	if err := common.Validate(v); err != nil {
		return nil, err
	}
	c := &entity.Collection{ID: uuid.New(), OrganizationID: orgID, Name: name, Slug: slug, CreatedAt: time.Now().UTC()}
	query, args := r.db.Builder().Insert("collections").
		Columns("id", "organization_id", "name", "slug", "created_at").
		Values(c.ID, c.OrganizationID, c.Name, c.Slug, c.CreatedAt).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to create collection", "organization_id", orgID, "slug", slug, "error", err)
		return nil, err
	}
	return c, nil
}

func (r *organizationRepository) CreateDocument(ctx context.Context, collectionID uuid.UUID, identifier string, useLongS bool) (*entity.Document, error) {
	v := common.NewValidator().Field("identifier", identifier, common.Required, common.Slug)
	if err := common.Validate(v); err != nil {
		return nil, err
	}
	d := &entity.Document{ID: uuid.New(), CollectionID: collectionID, Identifier: identifier, UseLongSDetection: useLongS, CreatedAt: time.Now().UTC()}
	query, args := r.db.Builder().Insert("documents").
		Columns("id", "collection_id", "identifier", "use_long_s_detection", "created_at").
		Values(d.ID, d.CollectionID, d.Identifier, d.UseLongSDetection, d.CreatedAt).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to create document", "collection_id", collectionID, "identifier", identifier, "error", err)
		return nil, err
	}
	return d, nil
}

func (r *organizationRepository) GetDocument(ctx context.Context, org, collection, identifier string) (*entity.Document, error) {
	b := r.db.Builder()
	d := b.Table("documents").As("d")
	c := b.Table("collections").As("c")
	o := b.Table("organizations").As("o")
	query, args := b.Select(d.C("id"), d.C("collection_id"), d.C("identifier"), d.C("use_long_s_detection"), d.C("created_at")).
		From(d).
		Join(c).On(d.C("collection_id"), c.C("id")).
		Join(o).On(c.C("organization_id"), o.C("id")).
		Where(entsql.And(
			entsql.EQ(o.C("short_name"), org),
			entsql.EQ(c.C("slug"), collection),
			entsql.EQ(d.C("identifier"), identifier),
		)).
		Query()
	var doc entity.Document
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&doc.ID, &doc.CollectionID, &doc.Identifier, &doc.UseLongSDetection, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, common.NotFound("document")
	}
	if err != nil {
		r.logger.Error("failed to get document", "document", identifier, "error", err)
		return nil, err
	}
	return &doc, nil
}
