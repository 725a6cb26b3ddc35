package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"isi-import/internal/domain"
	"isi-import/internal/service/deriver"
)

// restoreDerivedJobs recreates the jobs of active requests whose group is
// empty, e.g. after the derived_jobs table was restored from an older backup.
// Errors are logged but not fatal (best-effort).
func restoreDerivedJobs(
	ctx context.Context,
	requests domain.ImportRequestRepository,
	jobs domain.DerivedJobRepository,
	drv *deriver.Deriver,
	logger *slog.Logger,
) error {
	active := true
	filter := domain.ImportRequestFilter{Active: &active, Page: domain.PageRequest{Size: domain.MaxPageSize}}

	var errs []error
	for {
		page, total, err := requests.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("list active requests: %w", err)
		}
		for i := range page {
			req := &page[i]
			existing, err := jobs.ListByGroup(ctx, domain.GroupName(req))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if len(existing) > 0 {
				continue
			}
			logger.Info("restoring derived jobs", "request", req.ID)
			if _, err := drv.CreateAll(ctx, req); err != nil {
				logger.Warn("restore derived jobs failed", "request", req.ID, "error", err)
				errs = append(errs, err)
			}
		}
		next := domain.NextPageToken(filter.Page.Offset(), filter.Page.Limit(), total)
		if next == "" || len(page) == 0 {
			break
		}
		filter.Page.Token = next
	}
	return errors.Join(errs...)
}
