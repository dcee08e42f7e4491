package library_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shivuk/internal/config"
	"shivuk/internal/dataurl"
	"shivuk/internal/docstore"
	"shivuk/internal/library"
	"shivuk/internal/services"
	"shivuk/internal/testsupport"
)

// plainStore hides DeleteMany so ClearLibrary falls back to single deletes.
type plainStore struct {
	docstore.Store
	failDelete atomic.Bool
}

func (p *plainStore) Delete(ctx context.Context, collection, id string) error {
	if p.failDelete.Load() {
		return errors.New("store unavailable")
	}
	return p.Store.Delete(ctx, collection, id)
}

type failingUploader struct{}

func (failingUploader) Upload(context.Context, string, string) (string, error) {
	return "", errors.New("blob service down")
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newRegistry(t *testing.T, cfg *config.Config, opts library.Options) *library.Registry {
	t.Helper()
	if opts.Store == nil {
		opts.Store = testsupport.MustOpenStore(t, cfg)
	}
	reg := library.New(opts)
	t.Cleanup(reg.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := reg.SetIdentity(ctx, "u1"); err != nil {
		t.Fatalf("SetIdentity failed: %v", err)
	}
	if err := reg.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady failed: %v", err)
	}
	return reg
}

func titles(items []library.Item) string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Title)
	}
	return strings.Join(out, ",")
}

func settled(items []library.Item) bool {
	for _, item := range items {
		if item.ID == "" || strings.HasPrefix(item.ID, "pending:") {
			return false
		}
	}
	return true
}

func TestItemsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	reg := newRegistry(t, cfg, library.Options{Now: clk.Now})

	for _, title := range []string{"a", "b", "c"} {
		if _, err := reg.AddItem(context.Background(), library.NewItem{Title: title}); err != nil {
			t.Fatalf("AddItem failed: %v", err)
		}
	}
	if got := titles(reg.Items()); got != "c,b,a" {
		t.Fatalf("expected provisional items newest first, got %q", got)
	}
	testsupport.Eventually(t, time.Second, func() bool {
		items := reg.Items()
		return len(items) == 3 && titles(items) == "c,b,a"
	}, "confirmed items newest first, got %q", titles(reg.Items()))

	items := reg.Items()
	for i := 1; i < len(items); i++ {
		if items[i-1].Timestamp <= items[i].Timestamp {
			t.Fatalf("timestamps not strictly descending: %d then %d", items[i-1].Timestamp, items[i].Timestamp)
		}
	}
}

func TestEqualTimestampsKeepInsertionOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fixed := time.UnixMilli(1_700_000_000_000)
	reg := newRegistry(t, cfg, library.Options{Now: func() time.Time { return fixed }})

	for _, title := range []string{"first", "second"} {
		if _, err := reg.AddItem(context.Background(), library.NewItem{Title: title}); err != nil {
			t.Fatalf("AddItem failed: %v", err)
		}
	}
	testsupport.Eventually(t, time.Second, func() bool {
		items := reg.Items()
		return settled(items) && titles(items) == "first,second"
	}, "tied items in insertion order, got %q", titles(reg.Items()))
}

func TestAddItemPromotesInlineImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	reg := newRegistry(t, cfg, library.Options{Store: store, Blobs: testsupport.MustOpenBlobs(t, cfg)})

	inline := dataurl.Encode("image/jpeg", []byte{0xff, 0xd8, 0xff, 0xe0})
	id, err := reg.AddItem(context.Background(), library.NewItem{
		Title:      "Launch",
		ImageURL:   inline,
		BrandName:  "Acme",
		BrandColor: "#F1B701",
	})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	docs, err := store.List(context.Background(), docstore.CollectionPath("u1", "library"), docstore.Query{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != id {
		t.Fatalf("unexpected documents: %+v", docs)
	}
	var item library.Item
	if err := docs[0].Decode(&item); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !strings.HasPrefix(item.Image(), cfg.Blobs.BaseURL+"/library/u1/") {
		t.Fatalf("expected durable image URL, got %q", item.Image())
	}
	if !strings.HasSuffix(item.Image(), ".jpg") {
		t.Fatalf("expected jpeg extension, got %q", item.Image())
	}
	if item.Timestamp == 0 {
		t.Fatal("expected timestamp to be stamped")
	}
}

func TestAddItemKeepsTextWhenUploadFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := newRegistry(t, cfg, library.Options{Blobs: failingUploader{}})

	inline := dataurl.Encode("image/png", []byte{1, 2, 3})
	if _, err := reg.AddItem(context.Background(), library.NewItem{Title: "Text only", ImageURL: inline}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	testsupport.Eventually(t, time.Second, func() bool {
		items := reg.Items()
		return len(items) == 1 && settled(items)
	}, "item persisted")
	if img := reg.Items()[0].ImageURL; img != nil {
		t.Fatalf("expected no image, got %q", *img)
	}
}

func TestAddItemTooLargeIsStorageQuota(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxDocumentBytes(256))
	reg := newRegistry(t, cfg, library.Options{})

	_, err := reg.AddItem(context.Background(), library.NewItem{Title: "big", Content: strings.Repeat("x", 1024)})
	if err == nil {
		t.Fatal("expected size limit failure")
	}
	if !services.IsStorageQuota(err) {
		t.Fatalf("expected storage quota classification, got %v", err)
	}
	if msg := services.UserMessage(err); !strings.Contains(msg, "Reduce the image size") {
		t.Fatalf("unexpected user message %q", msg)
	}
	if len(reg.Items()) != 0 {
		t.Fatalf("rejected item still visible")
	}
}

func TestDeletedFolderOrphansItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	reg := newRegistry(t, cfg, library.Options{Now: clk.Now})
	ctx := context.Background()

	folderID, err := reg.CreateFolder(ctx, "Campaign", "brand-1")
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	if _, err := reg.AddItem(ctx, library.NewItem{Title: "filed", FolderID: folderID}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := reg.AddItem(ctx, library.NewItem{Title: "loose"}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	testsupport.Eventually(t, time.Second, func() bool {
		return len(reg.ItemsInFolder(folderID)) == 1
	}, "item filed under folder")
	if got := titles(reg.ItemsInFolder("")); got != "loose" {
		t.Fatalf("unexpected root items %q", got)
	}

	if err := reg.DeleteFolder(ctx, folderID); err != nil {
		t.Fatalf("DeleteFolder failed: %v", err)
	}
	testsupport.Eventually(t, time.Second, func() bool { return len(reg.Folders()) == 0 }, "folder gone")

	if len(reg.Items()) != 2 {
		t.Fatalf("deleting a folder removed items")
	}
	if got := titles(reg.ItemsInFolder("")); got != "loose,filed" {
		t.Fatalf("expected orphan treated as root-level, got %q", got)
	}
	for _, item := range reg.Items() {
		if reg.EffectiveFolderID(item) != "" {
			t.Fatalf("item %q still reports a folder", item.Title)
		}
	}
}

func TestFoldersNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	reg := newRegistry(t, cfg, library.Options{Now: clk.Now})

	for _, name := range []string{"old", "new"} {
		if _, err := reg.CreateFolder(context.Background(), name, ""); err != nil {
			t.Fatalf("CreateFolder failed: %v", err)
		}
	}
	testsupport.Eventually(t, time.Second, func() bool {
		folders := reg.Folders()
		return len(folders) == 2 && folders[0].Name == "new" && folders[1].Name == "old"
	}, "folders newest first")
}

func TestClearLibraryBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := newRegistry(t, cfg, library.Options{})
	for i := 0; i < 3; i++ {
		if _, err := reg.AddItem(context.Background(), library.NewItem{Title: "x"}); err != nil {
			t.Fatalf("AddItem failed: %v", err)
		}
	}
	testsupport.Eventually(t, time.Second, func() bool {
		items := reg.Items()
		return len(items) == 3 && settled(items)
	}, "items confirmed")

	result, err := reg.ClearLibrary(context.Background())
	if err != nil {
		t.Fatalf("ClearLibrary failed: %v", err)
	}
	if result.Deleted != 3 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	testsupport.Eventually(t, time.Second, func() bool { return len(reg.Items()) == 0 }, "library empty")
}

func TestClearLibraryIncludesUnsyncedAdditions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := newRegistry(t, cfg, library.Options{})
	if _, err := reg.AddItem(context.Background(), library.NewItem{Title: "fresh"}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	result, err := reg.ClearLibrary(context.Background())
	if err != nil {
		t.Fatalf("ClearLibrary failed: %v", err)
	}
	if result.Deleted != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(reg.Items()) != 0 {
		t.Fatalf("expected cleared item hidden immediately, got %d", len(reg.Items()))
	}
	time.Sleep(200 * time.Millisecond)
	if len(reg.Items()) != 0 {
		t.Fatalf("expected library to stay empty, got %d items", len(reg.Items()))
	}
}

func TestClearLibraryReportsPartialFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := &plainStore{Store: testsupport.MustOpenStore(t, cfg)}
	reg := newRegistry(t, cfg, library.Options{Store: store})
	for i := 0; i < 2; i++ {
		if _, err := reg.AddItem(context.Background(), library.NewItem{Title: "x"}); err != nil {
			t.Fatalf("AddItem failed: %v", err)
		}
	}
	testsupport.Eventually(t, time.Second, func() bool {
		items := reg.Items()
		return len(items) == 2 && settled(items)
	}, "items confirmed")

	store.failDelete.Store(true)
	result, err := reg.ClearLibrary(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if result.Deleted != 0 || result.Failed != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(reg.Items()) != 2 {
		t.Fatalf("failed deletions should leave items visible")
	}
}

func TestLoggedOutLibraryIsInert(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reg := library.New(library.Options{Store: testsupport.MustOpenStore(t, cfg)})
	t.Cleanup(reg.Close)

	id, err := reg.AddItem(context.Background(), library.NewItem{Title: "x"})
	if err != nil || id != "" {
		t.Fatalf("expected no-op, got id=%q err=%v", id, err)
	}
	if result, err := reg.ClearLibrary(context.Background()); err != nil || result != (library.ClearResult{}) {
		t.Fatalf("expected no-op clear, got %+v %v", result, err)
	}
	if err := reg.WaitReady(context.Background()); !errors.Is(err, services.ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}

func TestStatsCountsTags(t *testing.T) {
	stats := library.Summarize([]library.Item{
		{PlatformID: "instagram", PersonaID: "kai", BrandName: "Acme"},
		{PlatformID: "instagram", BrandName: "Acme"},
		{PersonaID: "nyx", BrandName: "Other"},
	})
	if stats.Total != 3 {
		t.Fatalf("unexpected total %d", stats.Total)
	}
	if stats.ByPlatform["instagram"] != 2 || stats.ByPlatform[library.UnknownPlatform] != 1 {
		t.Fatalf("unexpected platform counts %v", stats.ByPlatform)
	}
	if len(stats.ByPersona) != 2 || stats.ByPersona["kai"] != 1 {
		t.Fatalf("unexpected persona counts %v", stats.ByPersona)
	}
	if keys := library.SortedKeys(stats.ByBrand); strings.Join(keys, ",") != "Acme,Other" {
		t.Fatalf("unexpected brand order %v", keys)
	}
	if share := stats.Share(2); share < 66.6 || share > 66.7 {
		t.Fatalf("unexpected share %f", share)
	}
}
