package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/uploads"
)

// Decision is what the resolver tells the finalizer to do.
type Decision int

const (
	BecomeCanonical Decision = iota
	Deduplicate
)

func (d Decision) String() string {
	if d == Deduplicate {
		return "deduplicate"
	}
	return "become-canonical"
}

// Resolution carries the decision and the record it concerns: the canonical
// to point at (Deduplicate) or the one to replace, if any (BecomeCanonical).
type Resolution struct {
	Decision Decision
	Existing *models.Upload
}

// CanonicalResolver decides, per owner and content hash, whether a
// finalized upload becomes canonical or duplicates an existing one.
type CanonicalResolver struct{}

// Resolve looks up (and locks) the current canonical for u's owner and
// contentHash. It must run inside the finalize transaction.
func (CanonicalResolver) Resolve(ctx context.Context, repo uploads.Repository, u *models.Upload, contentHash string) (Resolution, error) {
	found, err := repo.FindCanonical(ctx, u.OwnerID, contentHash)
	if errors.Is(err, common.ErrorNotFound) {
		return Resolution{Decision: BecomeCanonical}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("find canonical: %w", err)
	}
	return decide(u, found)
}

func decide(u, found *models.Upload) (Resolution, error) {
	if found == nil || found.ID == u.ID {
		return Resolution{Decision: BecomeCanonical}, nil
	}

	class, ok := models.ClassifyCanonical(found.Status)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: canonical upload %s has unknown status %q", common.ErrInvariantViolation, found.ID, found.Status)
	}

	switch class {
	case models.ClassBlocking:
		return Resolution{Decision: Deduplicate, Existing: found}, nil
	case models.ClassReplaceable:
		return Resolution{Decision: BecomeCanonical, Existing: found}, nil
	default:
		// Never consulted. The claim itself is arbitrated by the unique index.
		return Resolution{Decision: BecomeCanonical}, nil
	}
}
