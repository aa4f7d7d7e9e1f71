package migrate

import (
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// OrganizationsColumns holds the columns for the "organizations" table.
	OrganizationsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "name", Type: field.TypeString, Size: 75},
		{Name: "short_name", Type: field.TypeString, Unique: true, Size: 10},
		{Name: "created_at", Type: field.TypeTime},
	}
	OrganizationsTable = &schema.Table{
		Name:       "organizations",
		Columns:    OrganizationsColumns,
		PrimaryKey: []*schema.Column{OrganizationsColumns[0]},
	}

	// CloudServicesColumns holds the columns for the "cloud_services" table.
	CloudServicesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "organization_id", Type: field.TypeUUID, Unique: true},
		{Name: "service", Type: field.TypeString, Size: 1},
		{Name: "client_id", Type: field.TypeString, Size: 100, Default: ""},
		{Name: "client_secret", Type: field.TypeString, Size: 100, Default: ""},
		{Name: "region", Type: field.TypeString, Size: 32, Default: ""},
	}
	CloudServicesTable = &schema.Table{
		Name:       "cloud_services",
		Columns:    CloudServicesColumns,
		PrimaryKey: []*schema.Column{CloudServicesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "cloud_services_organizations_cloud_service",
				Columns:    []*schema.Column{CloudServicesColumns[1]},
				RefColumns: []*schema.Column{OrganizationsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
	}

	// CollectionsColumns holds the columns for the "collections" table.
	CollectionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "organization_id", Type: field.TypeUUID},
		{Name: "name", Type: field.TypeString, Size: 50},
		{Name: "slug", Type: field.TypeString, Size: 50},
		{Name: "created_at", Type: field.TypeTime},
	}
	CollectionsTable = &schema.Table{
		Name:       "collections",
		Columns:    CollectionsColumns,
		PrimaryKey: []*schema.Column{CollectionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "collections_organizations_collections",
				Columns:    []*schema.Column{CollectionsColumns[1]},
				RefColumns: []*schema.Column{OrganizationsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "collection_organization_id_slug",
				Unique:  true,
				Columns: []*schema.Column{CollectionsColumns[1], CollectionsColumns[3]},
			},
		},
	}

	// DocumentsColumns holds the columns for the "documents" table.
	DocumentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "collection_id", Type: field.TypeUUID},
		{Name: "identifier", Type: field.TypeString, Size: 25},
		{Name: "use_long_s_detection", Type: field.TypeBool, Default: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	DocumentsTable = &schema.Table{
		Name:       "documents",
		Columns:    DocumentsColumns,
		PrimaryKey: []*schema.Column{DocumentsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "documents_collections_documents",
				Columns:    []*schema.Column{DocumentsColumns[1]},
				RefColumns: []*schema.Column{CollectionsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "document_collection_id_identifier",
				Unique:  true,
				Columns: []*schema.Column{DocumentsColumns[1], DocumentsColumns[2]},
			},
		},
	}

	// PagesColumns holds the columns for the "pages" table.
	PagesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "document_id", Type: field.TypeUUID},
		{Name: "number", Type: field.TypeInt},
		{Name: "image_path", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
	}
	PagesTable = &schema.Table{
		Name:       "pages",
		Columns:    PagesColumns,
		PrimaryKey: []*schema.Column{PagesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "pages_documents_pages",
				Columns:    []*schema.Column{PagesColumns[1]},
				RefColumns: []*schema.Column{DocumentsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "page_document_id_number",
				Unique:  true,
				Columns: []*schema.Column{PagesColumns[1], PagesColumns[2]},
			},
		},
	}

	// TextBlocksColumns holds the columns for the "text_blocks" table.
	TextBlocksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "page_id", Type: field.TypeUUID},
		{Name: "extraction_id", Type: field.TypeString, Size: 50, Default: ""},
		{Name: "text", Type: field.TypeString, Size: 255},
		{Name: "text_type", Type: field.TypeString, Size: 1},
		{Name: "line", Type: field.TypeInt},
		{Name: "number", Type: field.TypeInt},
		{Name: "confidence", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(5,3)"}},
		{Name: "print_control", Type: field.TypeString, Size: 1, Default: "I"},
		{Name: "geo_x_0", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(20,20)"}},
		{Name: "geo_y_0", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(20,20)"}},
		{Name: "geo_x_1", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(20,20)"}},
		{Name: "geo_y_1", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(20,20)"}},
		{Name: "suggestions", Type: field.TypeJSON},
		{Name: "review", Type: field.TypeBool, Default: false},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	TextBlocksTable = &schema.Table{
		Name:       "text_blocks",
		Columns:    TextBlocksColumns,
		PrimaryKey: []*schema.Column{TextBlocksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "text_blocks_pages_words",
				Columns:    []*schema.Column{TextBlocksColumns[1]},
				RefColumns: []*schema.Column{PagesColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "textblock_page_id_line_number",
				Unique:  false,
				Columns: []*schema.Column{TextBlocksColumns[1], TextBlocksColumns[5], TextBlocksColumns[6]},
			},
			{
				// one included word per reading position
				Name:       "textblock_page_id_line_number_included",
				Unique:     true,
				Columns:    []*schema.Column{TextBlocksColumns[1], TextBlocksColumns[5], TextBlocksColumns[6]},
				Annotation: &entsql.IndexAnnotation{Where: "print_control = 'I'"},
			},
		},
	}

	// TextBlockHistoryColumns holds the columns for the "text_block_history" table.
	TextBlockHistoryColumns = []*schema.Column{
		{Name: "history_id", Type: field.TypeInt64, Increment: true},
		{Name: "block_id", Type: field.TypeUUID},
		{Name: "page_id", Type: field.TypeUUID},
		{Name: "history_date", Type: field.TypeTime},
		{Name: "history_type", Type: field.TypeString, Size: 1},
		{Name: "history_user", Type: field.TypeString, Size: 150},
		{Name: "history_change_reason", Type: field.TypeString, Size: 100, Default: ""},
		{Name: "extraction_id", Type: field.TypeString, Size: 50, Default: ""},
		{Name: "text", Type: field.TypeString, Size: 255},
		{Name: "text_type", Type: field.TypeString, Size: 1},
		{Name: "line", Type: field.TypeInt},
		{Name: "number", Type: field.TypeInt},
		{Name: "confidence", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(5,3)"}},
		{Name: "print_control", Type: field.TypeString, Size: 1},
		{Name: "geo_x_0", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(20,20)"}},
		{Name: "geo_y_0", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(20,20)"}},
		{Name: "geo_x_1", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(20,20)"}},
		{Name: "geo_y_1", Type: field.TypeFloat64, SchemaType: map[string]string{dialect.Postgres: "numeric(20,20)"}},
		{Name: "suggestions", Type: field.TypeJSON},
		{Name: "review", Type: field.TypeBool, Default: false},
	}
	TextBlockHistoryTable = &schema.Table{
		Name:       "text_block_history",
		Columns:    TextBlockHistoryColumns,
		PrimaryKey: []*schema.Column{TextBlockHistoryColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "text_block_history_text_blocks_history",
				Columns:    []*schema.Column{TextBlockHistoryColumns[1]},
				RefColumns: []*schema.Column{TextBlocksColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "textblockhistory_block_id_history_date",
				Columns: []*schema.Column{TextBlockHistoryColumns[1], TextBlockHistoryColumns[3]},
			},
		},
	}

	// ExtractionJobsColumns holds the columns for the "extraction_jobs" table.
	ExtractionJobsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "page_id", Type: field.TypeUUID},
		{Name: "service", Type: field.TypeString, Size: 1},
		{Name: "status", Type: field.TypeString, Size: 16},
		{Name: "queued_at", Type: field.TypeTime},
		{Name: "started_at", Type: field.TypeTime, Nullable: true},
		{Name: "finished_at", Type: field.TypeTime, Nullable: true},
		{Name: "error_message", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "block_count", Type: field.TypeInt, Default: 0},
	}
	ExtractionJobsTable = &schema.Table{
		Name:       "extraction_jobs",
		Columns:    ExtractionJobsColumns,
		PrimaryKey: []*schema.Column{ExtractionJobsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "extraction_jobs_pages_jobs",
				Columns:    []*schema.Column{ExtractionJobsColumns[1]},
				RefColumns: []*schema.Column{PagesColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "extractionjob_page_id_queued_at",
				Columns: []*schema.Column{ExtractionJobsColumns[1], ExtractionJobsColumns[4]},
			},
			{
				Name:    "extractionjob_status",
				Columns: []*schema.Column{ExtractionJobsColumns[3]},
			},
		},
	}

	// ExtractionLeasesColumns holds the columns for the "extraction_leases" table.
	ExtractionLeasesColumns = []*schema.Column{
		{Name: "key", Type: field.TypeString, Size: 64},
		{Name: "started_at", Type: field.TypeTime},
	}
	ExtractionLeasesTable = &schema.Table{
		Name:       "extraction_leases",
		Columns:    ExtractionLeasesColumns,
		PrimaryKey: []*schema.Column{ExtractionLeasesColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		OrganizationsTable,
		CloudServicesTable,
		CollectionsTable,
		DocumentsTable,
		PagesTable,
		TextBlocksTable,
		TextBlockHistoryTable,
		ExtractionJobsTable,
		ExtractionLeasesTable,
	}
)

func init() {
	CloudServicesTable.ForeignKeys[0].RefTable = OrganizationsTable
	CollectionsTable.ForeignKeys[0].RefTable = OrganizationsTable
	DocumentsTable.ForeignKeys[0].RefTable = CollectionsTable
	PagesTable.ForeignKeys[0].RefTable = DocumentsTable
	TextBlocksTable.ForeignKeys[0].RefTable = PagesTable
	TextBlockHistoryTable.ForeignKeys[0].RefTable = TextBlocksTable
	ExtractionJobsTable.ForeignKeys[0].RefTable = PagesTable
}
