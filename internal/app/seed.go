package app

import (
	"context"
	"fmt"
	"os"

	"isi-import/internal/domain"
	"isi-import/internal/templates"
)

// seedTemplates loads the template directory into an empty metastore.
// Idempotent: nothing happens once any template exists.
func seedTemplates(ctx context.Context, repo domain.JobTemplateRepository, loader *templates.Loader, dir string) error {
	existing, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	if len(existing) > 0 {
		return nil // already seeded
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	_, err = loader.Sync(ctx, dir, false)
	return err
}
