package audit

import (
	"context"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// RepositoryPort defines data access for the audit timeline.
type RepositoryPort interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service serves audit timeline pages.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit entries. It fetches one row past the
// page boundary to compute HasNext without a count query.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	size := filters.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	rows, err := s.repo.TimelineWindow(ctx, filters, size+1, (page-1)*size)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	return Result{
		Rows:   rows,
		Paging: PagingInfo{Page: page, PageSize: size, HasNext: hasNext},
	}, nil
}

// Prune removes audit entries older than the retention cutoff.
func (s *Service) Prune(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, now.Add(-retention))
}
