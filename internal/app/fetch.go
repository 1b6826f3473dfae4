package app

import (
	"context"
	"fmt"
	"time"

	"bookchain/pkg/domain"
	"bookchain/pkg/optimistic"
)

// fetch is the scheduler's FetchFunc. Results reach the stores and the
// snapshot cache only through the returned apply, so a discarded completion
// changes nothing.
func (a *App) fetch(ctx context.Context, collection string) (func(), error) {
	fetchedAt := a.now()
	switch {
	case collection == domain.CollectionBooks:
		books, err := a.books.All(ctx)
		if err != nil {
			return nil, err
		}
		return observe(a, a.bookStore, collection, books, fetchedAt), nil
	case collection == domain.CollectionPosts:
		posts, err := a.posts.All(ctx, 0)
		if err != nil {
			return nil, err
		}
		return observe(a, a.postStore, collection, posts, fetchedAt), nil
	default:
		isbn, ok := domain.ReviewsISBN(collection)
		if !ok {
			return nil, fmt.Errorf("unknown collection %q", collection)
		}
		reviews, err := a.reviews.ForBook(ctx, isbn)
		if err != nil {
			return nil, err
		}
		return observe(a, a.reviewStore, collection, reviews, fetchedAt), nil
	}
}

func observe[T any](a *App, st *optimistic.Store[T], collection string, items []T, fetchedAt time.Time) func() {
	return func() {
		st.ObserveSnapshot(optimistic.Snapshot[T]{
			Collection: collection,
			Items:      items,
			FetchedAt:  fetchedAt,
		})
		a.saveSnapshot(collection, fetchedAt, items)
	}
}

// cacheWriteTimeout bounds a cache write made while the scheduler applies a
// completion.
const cacheWriteTimeout = 3 * time.Second

func (a *App) saveSnapshot(collection string, fetchedAt time.Time, items any) {
	if a.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := a.cache.SaveSnapshot(ctx, collection, fetchedAt, items); err != nil {
		a.logger.Warn("cache snapshot", "collection", collection, "err", err)
	}
}

// warmStart seeds the stores with cached snapshots. Any live snapshot is
// newer and replaces them.
func (a *App) warmStart(ctx context.Context) {
	if a.cache == nil {
		return
	}
	var books []domain.Book
	if at, ok := a.loadSnapshot(ctx, domain.CollectionBooks, &books); ok {
		a.bookStore.ObserveSnapshot(optimistic.Snapshot[domain.Book]{Collection: domain.CollectionBooks, Items: books, FetchedAt: at})
	}
	var posts []domain.Post
	if at, ok := a.loadSnapshot(ctx, domain.CollectionPosts, &posts); ok {
		a.postStore.ObserveSnapshot(optimistic.Snapshot[domain.Post]{Collection: domain.CollectionPosts, Items: posts, FetchedAt: at})
	}
	if isbn := a.Viewing(); isbn != "" {
		collection := domain.ReviewsCollection(isbn)
		var reviews []domain.Review
		if at, ok := a.loadSnapshot(ctx, collection, &reviews); ok {
			a.reviewStore.ObserveSnapshot(optimistic.Snapshot[domain.Review]{Collection: collection, Items: reviews, FetchedAt: at})
		}
	}
}

func (a *App) loadSnapshot(ctx context.Context, collection string, out any) (time.Time, bool) {
	at, ok, err := a.cache.LoadSnapshot(ctx, collection, out)
	if err != nil {
		a.logger.Warn("load cached snapshot", "collection", collection, "err", err)
		return time.Time{}, false
	}
	return at, ok
}
