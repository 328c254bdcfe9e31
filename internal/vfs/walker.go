package vfs

import (
	"context"
	"time"
)

// ObjectInfo is one key as reported by the object store's list operation.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Page is one page of a paginated store listing. When Truncated is true
// the store has more pages and NextToken fetches the next one.
type Page struct {
	Objects   []ObjectInfo
	Truncated bool
	NextToken string
}

// PageLister is the store-side paginated list primitive. The first page is
// requested with an empty continuation token.
type PageLister interface {
	ListPage(ctx context.Context, prefix, continuationToken string) (Page, error)
}

// Walk visits every key under prefix, page by page, calling fn once per
// non-empty page in the order the store returns them. Termination is
// driven by the store's truncation flag; the carried state is the
// continuation token. Any page-level error, from the store or from fn,
// aborts the walk: partial failure never silently skips remaining pages.
// No isolation is provided against concurrent writers under the prefix.
func Walk(ctx context.Context, lister PageLister, prefix string, fn func(objects []ObjectInfo) error) error {
	token := ""
	hasMore := true
	for hasMore {
		page, err := lister.ListPage(ctx, prefix, token)
		if err != nil {
			return err
		}
		if len(page.Objects) > 0 {
			if err := fn(page.Objects); err != nil {
				return err
			}
		}
		hasMore = page.Truncated
		token = page.NextToken
	}
	return nil
}
