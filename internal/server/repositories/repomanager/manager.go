package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/extractions"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/outbox"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/preferences"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/uploads"
)

// RepositoryManager vends repositories bound to a DBTX so services can
// rebind them to a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Uploads(db dbx.DBTX) uploads.Repository
	Outbox(db dbx.DBTX) outbox.Repository
	Extractions(db dbx.DBTX) extractions.Repository
	Preferences(db dbx.DBTX) preferences.Repository
}
