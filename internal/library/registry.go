package library

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"shivuk/internal/blobstore"
	"shivuk/internal/dataurl"
	"shivuk/internal/docstore"
	"shivuk/internal/logging"
	"shivuk/internal/services"
	"shivuk/internal/syncstate"
)

const (
	itemsCollection   = "library"
	foldersCollection = "folders"
)

// Options wires a Registry to its collaborators.
type Options struct {
	Store  docstore.Store
	Blobs  blobstore.Uploader
	Logger *slog.Logger
	Now    func() time.Time
}

// Registry is the library registry for one process.
type Registry struct {
	store  docstore.Store
	blobs  blobstore.Uploader
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	uid           string
	gen           int
	itemSub       docstore.Subscription
	folderSub     docstore.Subscription
	items         *syncstate.Overlay[Item]
	folders       *syncstate.Overlay[Folder]
	itemsLoaded   bool
	foldersLoaded bool
	ready         chan struct{}
	listeners     []func()
}

// New creates a registry with no identity.
func New(opts Options) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		store:  opts.Store,
		blobs:  opts.Blobs,
		logger: logging.NewComponentLogger(opts.Logger, "library"),
		now:    now,
		items: syncstate.New(
			func(i Item) string { return i.ID },
			func(i *Item, id string) { i.ID = id },
			syncstate.Prepend,
		),
		folders: syncstate.New(
			func(f Folder) string { return f.ID },
			func(f *Folder, id string) { f.ID = id },
			syncstate.Prepend,
		),
		ready: make(chan struct{}),
	}
}

// OnChange registers fn to run after every state change.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) changed() {
	r.mu.Lock()
	listeners := append([]func(){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// SetIdentity re-subscribes both collections under uid and discards all
// state held for the previous identity. An empty uid logs out.
func (r *Registry) SetIdentity(ctx context.Context, uid string) error {
	r.mu.Lock()
	if uid == r.uid && (uid == "" || r.itemSub != nil) {
		r.mu.Unlock()
		return nil
	}
	oldItems, oldFolders := r.itemSub, r.folderSub
	r.itemSub, r.folderSub = nil, nil
	r.gen++
	gen := r.gen
	r.uid = uid
	r.items.Reset()
	r.folders.Reset()
	r.itemsLoaded, r.foldersLoaded = false, false
	r.ready = make(chan struct{})
	r.mu.Unlock()

	closeSub(oldItems)
	closeSub(oldFolders)
	defer r.changed()
	if uid == "" {
		r.logger.Info("library registry signed out")
		return nil
	}

	itemSub, err := r.store.Subscribe(docstore.CollectionPath(uid, itemsCollection),
		docstore.Query{OrderBy: "timestamp", Descending: true},
		func(docs []docstore.Document, err error) { r.handleItems(gen, docs, err) },
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, "library", "subscribe items", uid, err)
	}
	folderSub, err := r.store.Subscribe(docstore.CollectionPath(uid, foldersCollection),
		docstore.Query{OrderBy: "createdAt", Descending: true},
		func(docs []docstore.Document, err error) { r.handleFolders(gen, docs, err) },
	)
	if err != nil {
		itemSub.Close()
		return services.Wrap(services.ErrTransient, "library", "subscribe folders", uid, err)
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		itemSub.Close()
		folderSub.Close()
		return nil
	}
	r.itemSub, r.folderSub = itemSub, folderSub
	r.mu.Unlock()

	logging.WithContext(services.WithIdentity(ctx, uid), r.logger).Info("library registry subscribed")
	return nil
}

// Close stops both subscriptions.
func (r *Registry) Close() {
	r.mu.Lock()
	items, folders := r.itemSub, r.folderSub
	r.itemSub, r.folderSub = nil, nil
	r.gen++
	r.mu.Unlock()
	closeSub(items)
	closeSub(folders)
}

func closeSub(sub docstore.Subscription) {
	if sub != nil {
		sub.Close()
	}
}

// WaitReady blocks until the first item and folder snapshots have arrived.
func (r *Registry) WaitReady(ctx context.Context) error {
	r.mu.Lock()
	if r.uid == "" {
		r.mu.Unlock()
		return services.ErrNoIdentity
	}
	ready := r.ready
	r.mu.Unlock()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) handleItems(gen int, docs []docstore.Document, err error) {
	if err != nil {
		r.snapshotFailed(itemsCollection, err)
		return
	}
	items := docstore.DecodeAll(docs,
		func(i *Item, id string) { i.ID = id },
		func(doc docstore.Document, err error) {
			r.logger.Warn("skipping undecodable item", logging.String(logging.FieldItemID, doc.ID), logging.Error(err))
		},
	)
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.items.Apply(items)
	r.itemsLoaded = true
	r.markReadyLocked()
	r.mu.Unlock()
	r.changed()
}

func (r *Registry) handleFolders(gen int, docs []docstore.Document, err error) {
	if err != nil {
		r.snapshotFailed(foldersCollection, err)
		return
	}
	folders := docstore.DecodeAll(docs,
		func(f *Folder, id string) { f.ID = id },
		func(doc docstore.Document, err error) {
			r.logger.Warn("skipping undecodable folder", logging.String("folder_id", doc.ID), logging.Error(err))
		},
	)
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.folders.Apply(folders)
	r.foldersLoaded = true
	r.markReadyLocked()
	r.mu.Unlock()
	r.changed()
}

func (r *Registry) markReadyLocked() {
	if !r.itemsLoaded || !r.foldersLoaded {
		return
	}
	select {
	case <-r.ready:
	default:
		close(r.ready)
	}
}

func (r *Registry) snapshotFailed(collection string, err error) {
	logging.WarnWithContext(r.logger, "library snapshot failed", "library_snapshot_failed",
		logging.String(logging.FieldCollection, collection),
		logging.Error(err),
		logging.String(logging.FieldImpact, "library keeps its previous state"),
	)
}

// Items returns every item, newest first, including provisional additions.
func (r *Registry) Items() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items.View()
}

// Folders returns every folder, newest first.
func (r *Registry) Folders() []Folder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.folders.View()
}

// EffectiveFolderID returns the item's folder, or "" when the item is at the
// root or its folder no longer exists.
func (r *Registry) EffectiveFolderID(item Item) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.effectiveFolderLocked(item)
}

func (r *Registry) effectiveFolderLocked(item Item) string {
	if item.FolderID == "" {
		return ""
	}
	for _, f := range r.folders.View() {
		if f.ID == item.FolderID {
			return item.FolderID
		}
	}
	return ""
}

// ItemsInFolder lists the items whose effective folder is folderID. An empty
// folderID selects root-level items, orphans included.
func (r *Registry) ItemsInFolder(folderID string) []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Item
	for _, item := range r.items.View() {
		if r.effectiveFolderLocked(item) == folderID {
			out = append(out, item)
		}
	}
	return out
}

// AddItem persists a new item stamped with the current time. An inline
// image is uploaded first; if that fails the item is written without it.
func (r *Registry) AddItem(ctx context.Context, in NewItem) (string, error) {
	r.mu.Lock()
	gen, uid := r.gen, r.uid
	r.mu.Unlock()
	if uid == "" {
		return "", nil
	}
	log := logging.WithContext(ctx, r.logger)

	image := in.ImageURL
	if dataurl.IsEncoded(image) {
		image = r.promote(ctx, log, uid, in.Title, image)
	}
	overlay := in.OverlayImageURL
	if dataurl.IsEncoded(overlay) {
		overlay = r.promote(ctx, log, uid, in.Title+" overlay", overlay)
	}

	item := Item{
		Title:           in.Title,
		Content:         in.Content,
		Hashtags:        in.Hashtags,
		ImageSearchTerm: in.ImageSearchTerm,
		ImageURL:        optional(image),
		OverlayImageURL: optional(overlay),
		BrandName:       in.BrandName,
		BrandColor:      in.BrandColor,
		PlatformID:      in.PlatformID,
		PersonaID:       in.PersonaID,
		FolderID:        in.FolderID,
		Timestamp:       r.now().UnixMilli(),
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return "", nil
	}
	temp := r.items.Add(item)
	r.mu.Unlock()
	r.changed()

	id, err := r.store.Create(ctx, docstore.CollectionPath(uid, itemsCollection), item)

	r.mu.Lock()
	if gen == r.gen {
		if err != nil {
			r.items.Discard(temp)
		} else {
			r.items.Confirm(temp, id)
		}
	}
	r.mu.Unlock()
	r.changed()

	if err != nil {
		err = services.Wrap(services.ErrTransient, "library", "add item", in.Title, err)
		logging.ErrorWithContext(log, "library item not saved", "library_add_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.UserMessage(err)),
		)
		return "", err
	}
	log.Info("library item saved",
		logging.String(logging.FieldItemID, id),
		logging.Bool("has_image", item.ImageURL != nil),
	)
	return id, nil
}

func (r *Registry) promote(ctx context.Context, log *slog.Logger, uid, label, encoded string) string {
	if r.blobs == nil {
		log.Warn("no blob store configured; saving item without image")
		return ""
	}
	name := blobstore.UniqueName("library/"+uid, label, encoded, r.now())
	url, err := r.blobs.Upload(ctx, name, encoded)
	if err != nil {
		logging.WarnWithContext(log, "image upload failed", "library_upload_failed",
			logging.String("path", name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "item saved without its image"),
		)
		return ""
	}
	return url
}

// RemoveItem deletes one item. On failure the item reappears and the error
// is returned.
func (r *Registry) RemoveItem(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.uid == "" {
		r.mu.Unlock()
		return nil
	}
	gen, uid := r.gen, r.uid
	token := r.items.Remove(id)
	r.mu.Unlock()
	r.changed()

	if err := r.store.Delete(ctx, docstore.CollectionPath(uid, itemsCollection), id); err != nil {
		r.mu.Lock()
		if gen == r.gen {
			r.items.Discard(token)
		}
		r.mu.Unlock()
		r.changed()
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "library item not removed", "library_remove_failed",
			logging.String(logging.FieldItemID, id),
			logging.Error(err),
		)
		return services.Wrap(services.ErrTransient, "library", "remove item", id, err)
	}
	return nil
}

// ClearLibrary deletes every item that has a store id, including additions
// no snapshot has shown yet. Stores that support batch
// deletes clear atomically; otherwise items are deleted one by one and a
// partial failure leaves the survivors in place.
func (r *Registry) ClearLibrary(ctx context.Context) (ClearResult, error) {
	r.mu.Lock()
	if r.uid == "" {
		r.mu.Unlock()
		return ClearResult{}, nil
	}
	gen, uid := r.gen, r.uid
	ids := r.items.StoredIDs()
	r.mu.Unlock()

	if len(ids) == 0 {
		return ClearResult{}, nil
	}
	log := logging.WithContext(ctx, r.logger)

	batch, ok := r.store.(docstore.BatchDeleter)
	if !ok {
		var result ClearResult
		var firstErr error
		for _, id := range ids {
			if err := r.RemoveItem(ctx, id); err != nil {
				result.Failed++
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			result.Deleted++
		}
		log.Info("library cleared", logging.Int("deleted", result.Deleted), logging.Int("failed", result.Failed))
		return result, firstErr
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return ClearResult{}, nil
	}
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		tokens = append(tokens, r.items.Remove(id))
	}
	r.mu.Unlock()
	r.changed()

	deleted, err := batch.DeleteMany(ctx, docstore.CollectionPath(uid, itemsCollection), ids)
	if err != nil {
		r.mu.Lock()
		if gen == r.gen {
			for _, token := range tokens {
				r.items.Discard(token)
			}
		}
		r.mu.Unlock()
		r.changed()
		logging.ErrorWithContext(log, "library clear failed", "library_clear_failed",
			logging.Int("items", len(ids)),
			logging.Error(err),
		)
		return ClearResult{Failed: len(ids)}, services.Wrap(services.ErrTransient, "library", "clear", uid, err)
	}
	log.Info("library cleared", logging.Int("deleted", deleted))
	return ClearResult{Deleted: deleted}, nil
}

// CreateFolder creates a folder. brandID is optional and not validated.
func (r *Registry) CreateFolder(ctx context.Context, name, brandID string) (string, error) {
	r.mu.Lock()
	gen, uid := r.gen, r.uid
	if uid == "" {
		r.mu.Unlock()
		return "", nil
	}
	folder := Folder{Name: name, BrandID: brandID, CreatedAt: r.now().UnixMilli()}
	temp := r.folders.Add(folder)
	r.mu.Unlock()
	r.changed()

	id, err := r.store.Create(ctx, docstore.CollectionPath(uid, foldersCollection), folder)

	r.mu.Lock()
	if gen == r.gen {
		if err != nil {
			r.folders.Discard(temp)
		} else {
			r.folders.Confirm(temp, id)
		}
	}
	r.mu.Unlock()
	r.changed()

	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "folder creation failed", "folder_create_failed",
			logging.String("name", name),
			logging.Error(err),
		)
		return "", services.Wrap(services.ErrTransient, "library", "create folder", name, err)
	}
	r.logger.Info("folder created", logging.String("folder_id", id), logging.String("name", name))
	return id, nil
}

// DeleteFolder deletes the folder document only. Its items become root-level.
func (r *Registry) DeleteFolder(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.uid == "" {
		r.mu.Unlock()
		return nil
	}
	gen, uid := r.gen, r.uid
	token := r.folders.Remove(id)
	r.mu.Unlock()
	r.changed()

	if err := r.store.Delete(ctx, docstore.CollectionPath(uid, foldersCollection), id); err != nil {
		r.mu.Lock()
		if gen == r.gen {
			r.folders.Discard(token)
		}
		r.mu.Unlock()
		r.changed()
		logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "folder removal failed", "folder_delete_failed",
			logging.String("folder_id", id),
			logging.Error(err),
		)
		return services.Wrap(services.ErrTransient, "library", "delete folder", id, err)
	}
	return nil
}
