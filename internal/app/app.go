package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bookchain/pkg/domain"
	"bookchain/pkg/ledger"
	"bookchain/pkg/optimistic"
	"bookchain/pkg/session"
	"bookchain/pkg/store"
	"bookchain/pkg/syncer"
	"bookchain/pkg/wallet"
)

const (
	// MaxPostRunes is the longest post the ledger accepts.
	MaxPostRunes = 255
	MinRating    = 1
	MaxRating    = 5
)

// Config holds runtime configuration for the client engine.
type Config struct {
	Ledger         ledger.Client
	Wallet         wallet.Provider
	Pointers       session.PointerStore
	Codec          session.PointerCodec
	Cache          store.SnapshotCache
	SessionTTL     time.Duration
	SessionFlags   []string
	MaxPasses      int
	RefreshTimeout time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

// App wires authentication, sessions, ledger access and the optimistic
// stores together and exposes the intents a user interface emits.
type App struct {
	ledger  ledger.Client
	books   ledger.Books
	reviews ledger.Reviews
	posts   ledger.Posts
	users   ledger.Users

	auth     *wallet.Authenticator
	sessions *session.Store
	pointers session.PointerStore
	cache    store.SnapshotCache
	sched    *syncer.Scheduler

	bookStore   *optimistic.Store[domain.Book]
	reviewStore *optimistic.Store[domain.Review]
	postStore   *optimistic.Store[domain.Post]

	now    func() time.Time
	logger *slog.Logger

	mu          sync.Mutex
	viewing     string
	userName    string
	unsubscribe func()
}

// New constructs the application. cfg.Ledger is required; everything else
// has a usable default.
func New(cfg Config) (*App, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("ledger client required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Pointers == nil {
		cfg.Pointers = session.NewMemoryPointerStore()
	}
	if cfg.Codec == nil {
		cfg.Codec = session.JSONCodec{}
	}

	a := &App{
		ledger:   cfg.Ledger,
		books:    ledger.Books{Client: cfg.Ledger},
		reviews:  ledger.Reviews{Client: cfg.Ledger},
		posts:    ledger.Posts{Client: cfg.Ledger},
		users:    ledger.Users{Client: cfg.Ledger},
		pointers: cfg.Pointers,
		cache:    cfg.Cache,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	a.auth = wallet.NewAuthenticator(wallet.Config{
		Provider: cfg.Wallet,
		TTL:      cfg.SessionTTL,
		Flags:    cfg.SessionFlags,
		Now:      cfg.Now,
		Logger:   cfg.Logger,
	})
	a.sessions = session.NewStore(session.Config{
		Pointers: cfg.Pointers,
		Codec:    cfg.Codec,
		Now:      cfg.Now,
		Logger:   cfg.Logger,
	})
	a.bookStore = optimistic.NewStore(optimistic.Config[domain.Book]{
		Key: domain.BookKey, MaxPasses: cfg.MaxPasses, Now: cfg.Now, Logger: cfg.Logger,
	})
	a.reviewStore = optimistic.NewStore(optimistic.Config[domain.Review]{
		Key: domain.ReviewKey, MaxPasses: cfg.MaxPasses, Now: cfg.Now, Logger: cfg.Logger,
	})
	a.postStore = optimistic.NewStore(optimistic.Config[domain.Post]{
		Key: domain.PostKey, MaxPasses: cfg.MaxPasses, Now: cfg.Now, Logger: cfg.Logger,
	})
	a.sched = syncer.New(syncer.Config{
		Fetch:   a.fetch,
		Timeout: cfg.RefreshTimeout,
		Now:     cfg.Now,
		Logger:  cfg.Logger,
	})
	a.unsubscribe = a.sessions.Subscribe(a.onSessionChange)
	return a, nil
}

// Start restores the persisted session and last viewed book, seeds the stores
// from the snapshot cache and triggers the first refreshes. It does not wait
// for them.
func (a *App) Start(ctx context.Context) error {
	isbn, ok, err := a.pointers.Get(ctx, session.LastViewedKey)
	if err != nil {
		return fmt.Errorf("read last viewed book: %w", err)
	}
	if ok && isbn != "" {
		a.mu.Lock()
		a.viewing = isbn
		a.mu.Unlock()
	}
	a.warmStart(ctx)

	sess, restored, err := a.sessions.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if restored {
		a.logger.Info("session restored", "publicKey", sess.PublicKeyHex, "expiresAt", sess.ExpiresAt)
		return nil
	}
	// onSessionChange already refreshed for a restored session.
	a.triggerAll()
	return nil
}

// Close stops background refreshes.
func (a *App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.sched.Close()
}

// Connect logs in through the wallet and publishes the new session.
func (a *App) Connect(ctx context.Context) (domain.Session, error) {
	sess, err := a.auth.Connect(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	if err := a.sessions.Set(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// Disconnect drops the session.
func (a *App) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	a.userName = ""
	a.mu.Unlock()
	return a.sessions.Clear(ctx)
}

// Session returns the active session, if any.
func (a *App) Session() (domain.Session, bool) {
	return a.sessions.Current()
}

// EnsureUser returns the ledger user name for the session's key, registering
// the key under a generated name when the ledger does not know it yet.
func (a *App) EnsureUser(ctx context.Context) (string, error) {
	sess, err := a.requireSession()
	if err != nil {
		return "", err
	}
	name, err := a.users.Name(ctx, sess.PublicKeyHex)
	if err == nil {
		a.setUserName(name)
		return name, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	name = fmt.Sprintf("User%04d", rand.IntN(10000))
	if _, err := a.users.Create(ledger.WithSigner(ctx, sess.PublicKeyHex), name, sess.PublicKeyHex); err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	a.logger.Info("registered ledger user", "publicKey", sess.PublicKeyHex, "name", name)
	a.setUserName(name)
	return name, nil
}

// CreateBook submits a new book. A missing ISBN is generated.
func (a *App) CreateBook(ctx context.Context, book domain.Book) (domain.Book, string, error) {
	book.Title = strings.TrimSpace(book.Title)
	book.Author = strings.TrimSpace(book.Author)
	book.ISBN = strings.TrimSpace(book.ISBN)
	if book.Title == "" || book.Author == "" {
		return domain.Book{}, "", ErrInvalidBook
	}
	if book.ISBN == "" {
		book.ISBN = uuid.NewString()
	}
	id, err := submit(a.signed(ctx), a, a.bookStore, optimistic.Mutation[domain.Book]{
		Collection: domain.CollectionBooks,
		Operation:  ledger.OpCreateBook,
		Args:       ledger.CreateBookArgs(book),
		Value:      book,
	}, func(ctx context.Context) (ledger.Ack, error) {
		return a.books.Create(ctx, book)
	})
	return book, id, err
}

// AddReview submits a review of the book with isbn. A blank reviewer name
// falls back to the session's key.
func (a *App) AddReview(ctx context.Context, isbn string, review domain.Review) (string, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return "", ErrInvalidBook
	}
	review.Review = strings.TrimSpace(review.Review)
	review.ReviewerName = strings.TrimSpace(review.ReviewerName)
	if review.Review == "" {
		return "", ErrEmptyReview
	}
	if review.Rating < MinRating || review.Rating > MaxRating {
		return "", ErrInvalidRating
	}
	if review.ReviewerName == "" {
		sess, err := a.requireSession()
		if err != nil {
			return "", err
		}
		review.ReviewerName = shortKey(sess.PublicKeyHex)
	}
	return submit(a.signed(ctx), a, a.reviewStore, optimistic.Mutation[domain.Review]{
		Collection: domain.ReviewsCollection(isbn),
		Operation:  ledger.OpCreateReview,
		Args:       ledger.CreateReviewArgs(isbn, review),
		Value:      review,
	}, func(ctx context.Context) (ledger.Ack, error) {
		return a.reviews.Create(ctx, isbn, review)
	})
}

// MakePost submits a post signed by the session's key.
func (a *App) MakePost(ctx context.Context, content string) (string, error) {
	sess, err := a.requireSession()
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyPost
	}
	if utf8.RuneCountInString(content) > MaxPostRunes {
		return "", ErrPostTooLong
	}
	a.mu.Lock()
	name := a.userName
	a.mu.Unlock()
	post := domain.Post{
		Content: content,
		User:    domain.PostUser{ID: sess.PublicKeyHex, Name: name},
	}
	return submit(ledger.WithSigner(ctx, sess.PublicKeyHex), a, a.postStore, optimistic.Mutation[domain.Post]{
		Collection: domain.CollectionPosts,
		Operation:  ledger.OpMakePost,
		Args:       []any{content},
		Value:      post,
	}, func(ctx context.Context) (ledger.Ack, error) {
		return a.posts.Make(ctx, content)
	})
}

// ViewBook opens the detail view of a book: the choice is persisted and its
// reviews refreshed.
func (a *App) ViewBook(ctx context.Context, isbn string) (*syncer.Flight, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil, ErrInvalidBook
	}
	a.mu.Lock()
	prev := a.viewing
	a.viewing = isbn
	a.mu.Unlock()
	if prev != "" && prev != isbn {
		a.sched.Forget(domain.ReviewsCollection(prev))
	}
	if err := a.pointers.Set(ctx, session.LastViewedKey, isbn); err != nil {
		return nil, fmt.Errorf("persist last viewed book: %w", err)
	}
	return a.sched.TriggerRefresh(domain.ReviewsCollection(isbn)), nil
}

// BackToBooks leaves the detail view. A review refresh still running for it
// is discarded when it completes.
func (a *App) BackToBooks(ctx context.Context) (*syncer.Flight, error) {
	a.mu.Lock()
	prev := a.viewing
	a.viewing = ""
	a.mu.Unlock()
	if prev != "" {
		a.sched.Forget(domain.ReviewsCollection(prev))
	}
	if err := a.pointers.Delete(ctx, session.LastViewedKey); err != nil {
		return nil, fmt.Errorf("clear last viewed book: %w", err)
	}
	return a.sched.TriggerRefresh(domain.CollectionBooks), nil
}

// Viewing returns the ISBN of the open detail view, or "".
func (a *App) Viewing() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewing
}

// RefreshAll refreshes every visible collection and waits for the results.
func (a *App) RefreshAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, collection := range a.visibleCollections() {
		f := a.sched.TriggerRefresh(collection)
		g.Go(func() error {
			if err := f.Wait(ctx); err != nil && !errors.Is(err, syncer.ErrDiscarded) {
				return fmt.Errorf("refresh %s: %w", collection, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Refresh triggers a refresh of one collection.
func (a *App) Refresh(collection string) *syncer.Flight {
	return a.sched.TriggerRefresh(collection)
}

// OnBlock is a ledger.BlockFunc: every new block refreshes the visible
// collections.
func (a *App) OnBlock(ctx context.Context, height int64) {
	a.logger.Debug("new block", "height", height)
	if err := a.RefreshAll(ctx); err != nil {
		a.logger.Warn("refresh after block", "height", height, "err", err)
	}
}

// Status returns the refresh state of collection.
func (a *App) Status(collection string) syncer.Status {
	return a.sched.Status(collection)
}

// Books projects the book list.
func (a *App) Books() []optimistic.Item[domain.Book] {
	return a.bookStore.Project(domain.CollectionBooks)
}

// Reviews projects the reviews of the book with isbn.
func (a *App) Reviews(isbn string) []optimistic.Item[domain.Review] {
	return a.reviewStore.Project(domain.ReviewsCollection(isbn))
}

// Posts projects the post feed.
func (a *App) Posts() []optimistic.Item[domain.Post] {
	return a.postStore.Project(domain.CollectionPosts)
}

// Dismiss removes a failed mutation from whichever store holds it.
func (a *App) Dismiss(localID string) error {
	for _, dismiss := range []func(string) error{
		a.bookStore.Dismiss,
		a.reviewStore.Dismiss,
		a.postStore.Dismiss,
	} {
		err := dismiss(localID)
		if !errors.Is(err, optimistic.ErrUnknownMutation) {
			return err
		}
	}
	return optimistic.ErrUnknownMutation
}

func (a *App) onSessionChange(sess domain.Session, ok bool) {
	if ok {
		a.logger.Info("session changed", "publicKey", sess.PublicKeyHex)
	} else {
		a.logger.Info("session cleared")
	}
	a.triggerAll()
}

func (a *App) triggerAll() {
	for _, collection := range a.visibleCollections() {
		a.sched.TriggerRefresh(collection)
	}
}

func (a *App) visibleCollections() []string {
	out := []string{domain.CollectionBooks, domain.CollectionPosts}
	if isbn := a.Viewing(); isbn != "" {
		out = append(out, domain.ReviewsCollection(isbn))
	}
	return out
}

func (a *App) requireSession() (domain.Session, error) {
	sess, err := a.sessions.Require()
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return sess, nil
}

func (a *App) setUserName(name string) {
	a.mu.Lock()
	a.userName = name
	a.mu.Unlock()
}

// signed attaches the session's key as signer when there is one.
func (a *App) signed(ctx context.Context) context.Context {
	if sess, ok := a.sessions.Current(); ok {
		return ledger.WithSigner(ctx, sess.PublicKeyHex)
	}
	return ctx
}

func shortKey(pubkey string) string {
	if len(pubkey) > 8 {
		return pubkey[:8]
	}
	return pubkey
}

// submit overlays m, sends it and records the outcome. Submits are never
// retried; the error goes back to the caller.
func submit[T any](ctx context.Context, a *App, st *optimistic.Store[T], m optimistic.Mutation[T], send func(context.Context) (ledger.Ack, error)) (string, error) {
	id := st.ApplyLocal(m)
	ack, err := send(ctx)
	if err != nil {
		if markErr := st.MarkFailed(id, err); markErr != nil && !errors.Is(markErr, optimistic.ErrUnknownMutation) {
			a.logger.Error("mark mutation failed", "localId", id, "err", markErr)
		}
		return id, fmt.Errorf("%s: %w", m.Operation, err)
	}
	// A snapshot may already have confirmed it, in which case it is gone.
	if err := st.MarkAcked(id); err != nil && !errors.Is(err, optimistic.ErrUnknownMutation) {
		a.logger.Error("mark mutation acked", "localId", id, "err", err)
	}
	a.logger.Debug("mutation acked", "op", m.Operation, "localId", id, "tx", ack.TxRID)
	a.sched.TriggerRefresh(m.Collection)
	return id, nil
}
