package brands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shivuk/internal/blobstore"
	"shivuk/internal/config"
	"shivuk/internal/dataurl"
	"shivuk/internal/docstore"
	"shivuk/internal/logging"
	"shivuk/internal/services"
	"shivuk/internal/syncstate"
)

const collectionName = "brands"

// Preferences is the scalar cache holding the active selection per identity.
type Preferences interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Options wires a Registry to its collaborators.
type Options struct {
	Store    docstore.Store
	Blobs    blobstore.Uploader
	Prefs    Preferences
	Defaults config.Brands
	Logger   *slog.Logger
	Now      func() time.Time
}

// Registry is the brand registry for one process.
type Registry struct {
	store    docstore.Store
	blobs    blobstore.Uploader
	prefs    Preferences
	defaults config.Brands
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	uid       string
	gen       int
	sub       docstore.Subscription
	overlay   *syncstate.Overlay[Profile]
	activeID  string
	loaded    bool
	seeded    bool
	ready     chan struct{}
	listeners []func()
}

// New creates a registry with no identity. Call SetIdentity to start syncing.
func New(opts Options) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	defaults := opts.Defaults
	if defaults.DefaultName == "" {
		defaults = config.Default().Brands
	}
	return &Registry{
		store:    opts.Store,
		blobs:    opts.Blobs,
		prefs:    opts.Prefs,
		defaults: defaults,
		logger:   logging.NewComponentLogger(opts.Logger, "brands"),
		now:      now,
		overlay: syncstate.New(
			func(p Profile) string { return p.ID },
			func(p *Profile, id string) { p.ID = id },
			syncstate.Append,
		),
		ready: make(chan struct{}),
	}
}

// OnChange registers fn to run after every state change. fn runs without
// the registry lock held.
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

// SetIdentity switches the registry to uid, discarding every profile held
// for the previous identity. An empty uid logs out.
func (r *Registry) SetIdentity(ctx context.Context, uid string) error {
	r.mu.Lock()
	if uid == r.uid && (uid == "" || r.sub != nil) {
		r.mu.Unlock()
		return nil
	}
	old := r.sub
	r.sub = nil
	r.gen++
	gen := r.gen
	r.uid = uid
	r.overlay.Reset()
	r.activeID = ""
	r.loaded = false
	r.seeded = false
	r.ready = make(chan struct{})
	if uid != "" && r.prefs != nil {
		if cached, ok := r.prefs.Get(prefKey(uid)); ok {
			r.activeID = cached
		}
	}
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
	defer r.changed()
	if uid == "" {
		r.logger.Info("brand registry signed out")
		return nil
	}

	sub, err := r.store.Subscribe(docstore.CollectionPath(uid, collectionName),
		docstore.Query{OrderBy: "createdAt"},
		func(docs []docstore.Document, err error) { r.handleSnapshot(gen, docs, err) },
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, "brands", "subscribe", uid, err)
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		sub.Close()
		return nil
	}
	r.sub = sub
	r.mu.Unlock()

	logging.WithContext(services.WithIdentity(ctx, uid), r.logger).Info("brand registry subscribed")
	return nil
}

// Close stops the subscription.
func (r *Registry) Close() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.gen++
	r.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// WaitReady blocks until the first snapshot for the current identity has
// been applied.
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

func (r *Registry) handleSnapshot(gen int, docs []docstore.Document, err error) {
	if err != nil {
		logging.WarnWithContext(r.logger, "brand snapshot failed", "brand_snapshot_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "brand list keeps its previous state"),
		)
		return
	}
	profiles := docstore.DecodeAll(docs,
		func(p *Profile, id string) { p.ID = id },
		func(doc docstore.Document, err error) {
			r.logger.Warn("skipping undecodable brand", logging.String(logging.FieldBrandID, doc.ID), logging.Error(err))
		},
	)

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.overlay.Apply(profiles)
	first := !r.loaded
	r.loaded = true
	seed := first && len(profiles) == 0 && !r.seeded
	if seed {
		r.seeded = true
	}
	r.repairActiveLocked()
	ready := r.ready
	uid := r.uid
	r.mu.Unlock()

	if seed {
		r.logger.Info("creating default brand for new identity", logging.String(logging.FieldUserID, uid))
		if _, err := r.create(context.Background(), gen, r.defaults.DefaultName, true); err != nil {
			logging.WarnWithContext(r.logger, "default brand creation failed", "brand_seed_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "identity has no brand until one is added"),
			)
		}
	}
	if first {
		close(ready)
	}
	r.changed()
}

// repairActiveLocked reselects the active brand when it no longer names a
// known profile. Pending additions count as known.
func (r *Registry) repairActiveLocked() {
	view := r.overlay.View()
	if len(view) == 0 {
		return
	}
	if r.activeID != "" && (containsID(view, r.activeID) || r.overlay.Pending(r.activeID)) {
		return
	}
	next := view[0].ID
	if r.prefs != nil {
		if cached, ok := r.prefs.Get(prefKey(r.uid)); ok && containsID(view, cached) {
			next = cached
		}
	}
	if next != r.activeID {
		r.logger.Debug("active brand reselected",
			logging.String("previous", r.activeID),
			logging.String(logging.FieldBrandID, next),
		)
	}
	r.setActiveLocked(next)
}

func (r *Registry) setActiveLocked(id string) {
	r.activeID = id
	if r.prefs == nil || r.uid == "" {
		return
	}
	if err := r.prefs.Set(prefKey(r.uid), id); err != nil {
		logging.WarnWithContext(r.logger, "active brand not cached", "prefs_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "selection resets on next start"),
		)
	}
}

// Brands returns the profiles in arrival order, including provisional ones.
func (r *Registry) Brands() []Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlay.View()
}

// ActiveID returns the active selection, which may briefly name a profile
// that is not yet present.
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// Active returns the active profile, falling back to the first profile.
func (r *Registry) Active() (Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	view := r.overlay.View()
	for _, p := range view {
		if p.ID == r.activeID {
			return p, true
		}
	}
	if len(view) > 0 {
		return view[0], true
	}
	return Profile{}, false
}

// Activate selects id without checking that it exists.
func (r *Registry) Activate(id string) {
	r.mu.Lock()
	if r.uid == "" {
		r.mu.Unlock()
		return
	}
	r.setActiveLocked(id)
	r.mu.Unlock()
	r.changed()
}

// Add creates a profile with the default name and palette and activates it.
func (r *Registry) Add(ctx context.Context) (string, error) {
	r.mu.Lock()
	gen, uid := r.gen, r.uid
	r.mu.Unlock()
	if uid == "" {
		return "", nil
	}
	id, err := r.create(ctx, gen, r.defaults.NewName, true)
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "brand creation failed", "brand_create_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the document store"),
		)
		return "", err
	}
	return id, nil
}

func (r *Registry) create(ctx context.Context, gen int, name string, activate bool) (string, error) {
	profile := Profile{
		Name: name,
		Colors: Colors{
			Primary:   r.defaults.Primary,
			Secondary: r.defaults.Secondary,
			Accent:    r.defaults.Accent,
		},
		LogoVariants: []string{},
		CreatedAt:    r.now().UnixMilli(),
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return "", nil
	}
	uid := r.uid
	temp := r.overlay.Add(profile)
	r.mu.Unlock()
	r.changed()

	id, err := r.store.Create(ctx, docstore.CollectionPath(uid, collectionName), profile)

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return id, err
	}
	if err != nil {
		r.overlay.Discard(temp)
		r.mu.Unlock()
		r.changed()
		return "", services.Wrap(services.ErrTransient, "brands", "create", name, err)
	}
	r.overlay.Confirm(temp, id)
	if activate {
		r.setActiveLocked(id)
	}
	r.mu.Unlock()
	r.changed()

	r.logger.Info("brand created", logging.String(logging.FieldBrandID, id), logging.String("name", name))
	return id, nil
}

// Remove deletes a profile. The last remaining profile cannot be removed.
// Removing the active profile reselects one once the delete commits.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.uid == "" {
		r.mu.Unlock()
		return nil
	}
	view := r.overlay.View()
	if len(view) <= 1 {
		r.mu.Unlock()
		return services.Wrap(services.ErrValidation, "", "", "at least one brand is required", nil)
	}
	if !containsID(view, id) {
		r.mu.Unlock()
		return services.Wrap(services.ErrNotFound, "brands", "remove", id, nil)
	}
	gen, uid := r.gen, r.uid
	token := r.overlay.Remove(id)
	r.mu.Unlock()
	r.changed()

	err := r.store.Delete(ctx, docstore.CollectionPath(uid, collectionName), id)
	if err != nil {
		r.mu.Lock()
		if gen == r.gen {
			r.overlay.Discard(token)
		}
		r.mu.Unlock()
		r.changed()
		logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "brand removal failed", "brand_remove_failed",
			logging.String(logging.FieldBrandID, id),
			logging.Error(err),
		)
		return services.Wrap(services.ErrTransient, "brands", "remove", id, err)
	}

	r.mu.Lock()
	if gen == r.gen {
		r.repairActiveLocked()
	}
	r.mu.Unlock()
	r.changed()

	r.logger.Info("brand removed", logging.String(logging.FieldBrandID, id))
	return nil
}

// Update merges patch into profile id. Inline-encoded logos are uploaded
// first and replaced by their durable URLs; an upload failure aborts the
// write. The registry does not clear an active logo that is no longer among
// the variants.
func (r *Registry) Update(ctx context.Context, id string, patch Patch) error {
	r.mu.Lock()
	if r.uid == "" {
		r.mu.Unlock()
		return nil
	}
	var current Profile
	found := false
	for _, p := range r.overlay.View() {
		if p.ID == id {
			current, found = p, true
			break
		}
	}
	gen, uid := r.gen, r.uid
	r.mu.Unlock()
	if !found {
		return services.Wrap(services.ErrNotFound, "brands", "update", id, nil)
	}
	if patch.Empty() {
		return nil
	}

	promoted, err := r.promoteLogos(ctx, uid, current.Name, patch)
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "logo upload failed", "logo_upload_failed",
			logging.String(logging.FieldBrandID, id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "brand left unchanged; retry the update"),
		)
		return err
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return nil
	}
	token := r.overlay.Patch(id, promoted.apply)
	r.mu.Unlock()
	r.changed()

	err = r.store.Update(ctx, docstore.CollectionPath(uid, collectionName), id, promoted.fields())

	r.mu.Lock()
	if gen == r.gen {
		if err != nil {
			r.overlay.Discard(token)
		} else {
			r.overlay.Settle(token)
		}
	}
	r.mu.Unlock()
	r.changed()

	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "brand update failed", "brand_update_failed",
			logging.String(logging.FieldBrandID, id),
			logging.Error(err),
		)
		return services.Wrap(services.ErrTransient, "brands", "update", id, err)
	}
	return nil
}

func (r *Registry) promoteLogos(ctx context.Context, uid, label string, patch Patch) (Patch, error) {
	if patch.ActiveLogo != nil && dataurl.IsEncoded(*patch.ActiveLogo) {
		url, err := r.upload(ctx, uid, label, *patch.ActiveLogo)
		if err != nil {
			return patch, err
		}
		patch.ActiveLogo = &url
	}
	if patch.LogoVariants != nil {
		variants := make([]string, len(*patch.LogoVariants))
		for i, variant := range *patch.LogoVariants {
			if dataurl.IsEncoded(variant) {
				url, err := r.upload(ctx, uid, label, variant)
				if err != nil {
					return patch, err
				}
				variant = url
			}
			variants[i] = variant
		}
		patch.LogoVariants = &variants
	}
	return patch, nil
}

func (r *Registry) upload(ctx context.Context, uid, label, encoded string) (string, error) {
	if r.blobs == nil {
		return "", services.Wrap(services.ErrConfiguration, "brands", "upload", "blob store not configured", nil)
	}
	name := blobstore.UniqueName("brands/"+uid, label, encoded, r.now())
	url, err := r.blobs.Upload(ctx, name, encoded)
	if err != nil {
		return "", fmt.Errorf("upload logo %s: %w", name, err)
	}
	return url, nil
}

func prefKey(uid string) string {
	return "active_brand/" + uid
}

func containsID(profiles []Profile, id string) bool {
	for _, p := range profiles {
		if p.ID == id {
			return true
		}
	}
	return false
}
