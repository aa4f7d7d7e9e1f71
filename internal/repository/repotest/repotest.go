// Package repotest opens migrated in-memory databases for tests.
package repotest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/repository"
)

// Logger discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Open returns a migrated in-memory SQLite database private to t.
func Open(t testing.TB) *repository.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_time_format=sqlite", name, uuid.NewString()[:8])

	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: dsn}, Logger())
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(db, Logger()) })
	require.NoError(t, db.Migrate(ctx, Logger()))
	return db
}

// Fixture is one organization with a single document of one page.
type Fixture struct {
	Organization *entity.Organization
	Collection   *entity.Collection
	Document     *entity.Document
	Page         *entity.Page
}

// Path addresses the fixture page.
func (f *Fixture) Path() entity.OwnershipPath {
	return entity.OwnershipPath{
		Organization: f.Organization.ShortName,
		Collection:   f.Collection.Slug,
		Document:     f.Document.Identifier,
		Page:         f.Page.Number,
	}
}

// Seed creates a fixture whose organization uses service. An empty service leaves it unconfigured.
func Seed(t testing.TB, db *repository.DB, shortName string, service constants.CloudService) *Fixture {
	t.Helper()
	ctx := context.Background()
	orgs := repository.NewOrganizationRepository(db, Logger())
	pages := repository.NewPageRepository(db, Logger())

	org, err := orgs.CreateOrganization(ctx, "Org "+shortName, shortName)
	require.NoError(t, err)
	if service != "" {
		require.NoError(t, orgs.SetCloudService(ctx, &entity.CloudService{OrganizationID: org.ID, Service: service}))
	}
	coll, err := orgs.CreateCollection(ctx, org.ID, "Letters", "letters")
	require.NoError(t, err)
	doc, err := orgs.CreateDocument(ctx, coll.ID, "doc-1", true)
	require.NoError(t, err)
	page, err := pages.Create(ctx, doc.ID, 1, "")
	require.NoError(t, err)
	return &Fixture{Organization: org, Collection: coll, Document: doc, Page: page}
}

// AddPage appends another page to the fixture document.
func AddPage(t testing.TB, db *repository.DB, f *Fixture, number int) *entity.Page {
	t.Helper()
	page, err := repository.NewPageRepository(db, Logger()).Create(context.Background(), f.Document.ID, number, "")
	require.NoError(t, err)
	return page
}
