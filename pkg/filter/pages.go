package filter

import (
	"context"
	"errors"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

// ErrNoMorePages is returned by NextPage once the listing is exhausted.
var ErrNoMorePages = errors.New("no more pages")

// MetricsLister is the paginated listing collaborator. It is satisfied by
// cloudwatch.Client.
type MetricsLister interface {
	ListMetrics(ctx context.Context, params *model.ListMetricsParams, nextToken *string) (*model.MetricsPage, error)
}

// PageSequence walks a ListMetrics listing one page at a time, following
// continuation tokens until a page arrives without one. A sequence is single
// use; call Pages again to restart from the first page.
type PageSequence struct {
	lister    MetricsLister
	params    *model.ListMetricsParams
	nextToken *string
	done      bool
	fetched   int
}

// Pages returns a sequence positioned before the first page of the listing
// described by params. A nil params lists every metric.
func Pages(lister MetricsLister, params *model.ListMetricsParams) *PageSequence {
	if params == nil {
		params = &model.ListMetricsParams{}
	}
	return &PageSequence{
		lister: lister,
		params: params,
	}
}

func (s *PageSequence) HasMorePages() bool {
	return !s.done
}

// Fetched is the number of pages returned so far.
func (s *PageSequence) Fetched() int {
	return s.fetched
}

// NextPage issues one ListMetrics call. The first call carries no token.
// Errors from the lister are returned as is and end the sequence.
func (s *PageSequence) NextPage(ctx context.Context) (*model.MetricsPage, error) {
	if s.done {
		return nil, ErrNoMorePages
	}

	page, err := s.lister.ListMetrics(ctx, s.params, s.nextToken)
	if err != nil {
		s.done = true
		return nil, err
	}
	if page == nil {
		page = &model.MetricsPage{}
	}

	s.fetched++
	if page.HasNextPage() {
		s.nextToken = page.NextToken
	} else {
		s.nextToken = nil
		s.done = true
	}
	return page, nil
}
