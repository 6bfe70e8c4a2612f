package collect

import (
	"context"

	"seoul-housing-ingest/internal/domain"
)

// PageFunc загружает страницу по номеру, начиная с 1.
type PageFunc func(ctx context.Context, pageNo int) (domain.ListingPage, error)

// PageCursor обходит постраничный листинг, скрывая номера страниц.
// После пустой страницы курсор остаётся завершённым.
type PageCursor struct {
	fetch    PageFunc
	pageNo   int
	finished bool
}

// NewPageCursor создаёт курсор с первой страницы.
func NewPageCursor(fetch PageFunc) *PageCursor {
	return &PageCursor{fetch: fetch, pageNo: 1}
}

// Next возвращает следующую непустую страницу. ok равен false, когда листинг закончился.
func (c *PageCursor) Next(ctx context.Context) (page domain.ListingPage, ok bool, err error) {
	if c.finished {
		return domain.ListingPage{}, false, nil
	}
	page, err = c.fetch(ctx, c.pageNo)
	if err != nil {
		return domain.ListingPage{}, false, err
	}
	if len(page.Items) == 0 {
		c.finished = true
		return domain.ListingPage{}, false, nil
	}
	c.pageNo++
	return page, true, nil
}

// PageNo номер страницы для следующего вызова.
func (c *PageCursor) PageNo() int {
	return c.pageNo
}

// Finished сообщает, была ли пустая страница.
func (c *PageCursor) Finished() bool {
	return c.finished
}
