package generation_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"shivuk/internal/brands"
	"shivuk/internal/dataurl"
	"shivuk/internal/docstore"
	"shivuk/internal/generation"
	"shivuk/internal/library"
	"shivuk/internal/services"
	"shivuk/internal/services/gemini"
	"shivuk/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, testsupport.LeakOptions()...)
}

type fakeGenerator struct {
	mu      sync.Mutex
	block   chan struct{}
	content gemini.Content
	err     error
	videoErr   error
	captionErr error

	prompts        []string
	videoPrompts   []string
	captionPrompts []string
}

func (f *fakeGenerator) wait(ctx context.Context) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, prompt, image string) (gemini.Content, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return gemini.Content{}, err
	}
	return f.content, f.err
}

func (f *fakeGenerator) GenerateCaption(ctx context.Context, image, extra string) (gemini.Content, error) {
	if err := f.wait(ctx); err != nil {
		return gemini.Content{}, err
	}
	c := f.content
	c.GeneratedImageURL = image
	return c, f.err
}

func (f *fakeGenerator) EditImage(ctx context.Context, image, instruction string) (string, error) {
	return dataurl.Encode("image/png", []byte(instruction)), f.err
}

func (f *fakeGenerator) GenerateVideo(ctx context.Context, prompt, image string) (string, error) {
	f.mu.Lock()
	f.videoPrompts = append(f.videoPrompts, prompt)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	return "file:///videos/clip.mp4", f.videoErr
}

func (f *fakeGenerator) GenerateVideoCaption(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.captionPrompts = append(f.captionPrompts, prompt)
	f.mu.Unlock()
	return "Watch now", f.captionErr
}

type fakeLibrary struct {
	mu    sync.Mutex
	items []library.NewItem
	err   error
}

func (f *fakeLibrary) AddItem(_ context.Context, item library.NewItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	if f.err != nil {
		return "", f.err
	}
	return "item-1", nil
}

func (f *fakeLibrary) calls() []library.NewItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]library.NewItem(nil), f.items...)
}

type fixedBrand struct{ profile brands.Profile }

func (b fixedBrand) Active() (brands.Profile, bool) { return b.profile, true }

var acme = brands.Profile{ID: "b1", Name: "Acme", Colors: brands.Colors{Primary: "#112233", Secondary: "#445566", Accent: "#778899"}}

func newSession(gen generation.Generator, lib generation.Library, interval time.Duration) *generation.Session {
	return generation.New(generation.Options{
		Generator:             gen,
		Library:               lib,
		Brands:                fixedBrand{profile: acme},
		ProgressInterval:      interval,
		VideoProgressInterval: interval,
	})
}

func TestSecondStartWhileRunningIsRejected(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{}), content: gemini.Content{Title: "T"}}
	lib := &fakeLibrary{}
	s := newSession(gen, lib, time.Hour)
	s.SetPrompt("Launch sale")

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()
	testsupport.Eventually(t, time.Second, func() bool { return s.Snapshot().Generating }, "generation running")

	before := s.Snapshot()
	s.SetPrompt("second request")
	for i := 0; i < 3; i++ {
		if err := s.Start(context.Background()); !errors.Is(err, services.ErrBusy) {
			t.Fatalf("expected ErrBusy, got %v", err)
		}
	}
	s.SetPrompt("")
	if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected starts changed state:\nbefore %+v\nafter  %+v", before, after)
	}

	close(gen.block)
	if err := <-done; err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if n := len(lib.calls()); n != 1 {
		t.Fatalf("expected exactly one library save, got %d", n)
	}
	gen.mu.Lock()
	defer gen.mu.Unlock()
	if len(gen.prompts) != 1 {
		t.Fatalf("expected one backend call, got %d", len(gen.prompts))
	}
}

func TestFailureRestoresDraft(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("backend exploded")}
	lib := &fakeLibrary{}
	s := newSession(gen, lib, time.Hour)
	s.SetPrompt("Launch sale")

	err := s.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "backend exploded") {
		t.Fatalf("expected backend error, got %v", err)
	}
	st := s.Snapshot()
	if st.Prompt != "Launch sale" || st.AttachedImage != "" {
		t.Fatalf("draft not restored: prompt=%q image=%q", st.Prompt, st.AttachedImage)
	}
	if st.Generating || st.Step != 0 {
		t.Fatalf("expected idle state, got generating=%v step=%d", st.Generating, st.Step)
	}
	if len(st.Posts) != 0 || len(lib.calls()) != 0 {
		t.Fatal("failed generation produced results")
	}
}

func TestSuccessClearsDraftAndPersists(t *testing.T) {
	gen := &fakeGenerator{content: gemini.Content{Title: "T", Content: "C", Hashtags: "#x", ImagePrompt: "P"}}
	lib := &fakeLibrary{}
	s := newSession(gen, lib, time.Hour)
	if err := s.SetPersona("kai"); err != nil {
		t.Fatalf("SetPersona failed: %v", err)
	}
	if err := s.SetPlatform("instagram"); err != nil {
		t.Fatalf("SetPlatform failed: %v", err)
	}
	s.SetTargetFolder("folder-1")
	s.SetPrompt("Launch sale")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	st := s.Snapshot()
	if st.Prompt != "" || st.Generating || st.Step != 0 {
		t.Fatalf("unexpected state after success: %+v", st)
	}
	if len(st.Posts) != 1 || st.Posts[0].Title != "T" {
		t.Fatalf("expected post at index 0, got %+v", st.Posts)
	}

	calls := lib.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one AddItem call, got %d", len(calls))
	}
	got := calls[0]
	want := library.NewItem{
		Title:           "T",
		Content:         "C",
		Hashtags:        "#x",
		ImageSearchTerm: "P",
		BrandName:       "Acme",
		BrandColor:      "#112233",
		PlatformID:      "instagram",
		PersonaID:       "kai",
		FolderID:        "folder-1",
	}
	if got != want {
		t.Fatalf("unexpected saved item:\n got %+v\nwant %+v", got, want)
	}

	gen.mu.Lock()
	defer gen.mu.Unlock()
	wantPrompt := "MARCA: Acme. PERSONA: Kai — Hype & Trends. ESTILO: Minimalista (Apple Style). PEDIDO: Launch sale"
	if gen.prompts[0] != wantPrompt {
		t.Fatalf("unexpected composite prompt %q", gen.prompts[0])
	}
}

func TestNewestPostFirst(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession(gen, &fakeLibrary{}, time.Hour)
	for _, title := range []string{"first", "second"} {
		gen.content = gemini.Content{Title: title}
		s.SetPrompt(title)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}
	posts := s.Snapshot().Posts
	if len(posts) != 2 || posts[0].Title != "second" || posts[1].Title != "first" {
		t.Fatalf("unexpected history order %+v", posts)
	}
}

func TestVideoIsNotPersisted(t *testing.T) {
	gen := &fakeGenerator{}
	lib := &fakeLibrary{}
	s := newSession(gen, lib, time.Hour)
	if err := s.SetMode(generation.ModeVideo); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	s.SetPrompt("drone shot over the beach")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	st := s.Snapshot()
	if len(st.Videos) != 1 || st.Videos[0].URL != "file:///videos/clip.mp4" || st.Videos[0].Caption != "Watch now" {
		t.Fatalf("unexpected videos %+v", st.Videos)
	}
	if n := len(lib.calls()); n != 0 {
		t.Fatalf("expected zero library saves, got %d", n)
	}

	gen.mu.Lock()
	defer gen.mu.Unlock()
	if gen.videoPrompts[0] != "Minimalista (Apple Style) style. drone shot over the beach" {
		t.Fatalf("unexpected video prompt %q", gen.videoPrompts[0])
	}
	if gen.captionPrompts[0] != "drone shot over the beach. Estilo: Minimalista (Apple Style). Persona: Joshua — Analítico. Plataforma: LinkedIn" {
		t.Fatalf("unexpected caption prompt %q", gen.captionPrompts[0])
	}
}

func TestVideoCaptionFailureFailsRequest(t *testing.T) {
	gen := &fakeGenerator{captionErr: errors.New("caption failed")}
	s := newSession(gen, &fakeLibrary{}, time.Hour)
	_ = s.SetMode(generation.ModeVideo)
	s.SetPrompt("clip")

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected failure when the caption call fails")
	}
	st := s.Snapshot()
	if len(st.Videos) != 0 {
		t.Fatal("video surfaced without caption")
	}
	if st.Prompt != "clip" {
		t.Fatalf("draft not restored, got %q", st.Prompt)
	}
}

func TestCaptionModeRequiresImage(t *testing.T) {
	gen := &fakeGenerator{content: gemini.Content{Title: "Cap"}}
	lib := &fakeLibrary{}
	s := newSession(gen, lib, time.Hour)
	_ = s.SetMode(generation.ModeCaption)
	s.SetPrompt("summer")

	before := s.Snapshot()
	if err := s.Start(context.Background()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatal("validation failure changed state")
	}

	image := dataurl.Encode("image/png", []byte{1, 2, 3})
	s.AttachImage(image)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	calls := lib.calls()
	if len(calls) != 1 || calls[0].ImageURL != image {
		t.Fatalf("expected caption saved with the original image, got %+v", calls)
	}
	st := s.Snapshot()
	if len(st.Captions) != 1 || len(st.Posts) != 0 || st.AttachedImage != "" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestEmptyDraftRejected(t *testing.T) {
	s := newSession(&fakeGenerator{}, &fakeLibrary{}, time.Hour)
	s.SetPrompt("   ")
	if err := s.Start(context.Background()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestImageOnlyPostAllowed(t *testing.T) {
	gen := &fakeGenerator{content: gemini.Content{Title: "From image"}}
	s := newSession(gen, &fakeLibrary{}, time.Hour)
	s.AttachImage(dataurl.Encode("image/png", []byte{9}))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func TestResetResultIsIdempotent(t *testing.T) {
	gen := &fakeGenerator{content: gemini.Content{Title: "T"}}
	s := newSession(gen, &fakeLibrary{}, time.Hour)
	s.SetPrompt("x")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.ResetResult()
	once := s.Snapshot()
	s.ResetResult()
	twice := s.Snapshot()
	for _, st := range []generation.State{once, twice} {
		if len(st.Posts) != 0 || len(st.Captions) != 0 || len(st.Videos) != 0 {
			t.Fatalf("expected empty history, got %+v", st)
		}
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatal("second reset changed state")
	}
}

func TestProgressStopsAtCeiling(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	s := newSession(gen, &fakeLibrary{}, time.Millisecond)
	s.SetPrompt("x")

	var (
		mu    sync.Mutex
		steps []int
	)
	s.OnChange(func() {
		st := s.Snapshot()
		mu.Lock()
		steps = append(steps, st.Step)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()
	testsupport.Eventually(t, time.Second, func() bool { return s.Snapshot().Step == generation.MaxStep }, "step reaches ceiling")
	time.Sleep(20 * time.Millisecond)
	if step := s.Snapshot().Step; step != generation.MaxStep {
		t.Fatalf("step moved past ceiling: %d", step)
	}

	close(gen.block)
	if err := <-done; err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if step := s.Snapshot().Step; step != 0 {
		t.Fatalf("expected step reset, got %d", step)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, step := range steps {
		if step > generation.MaxStep {
			t.Fatalf("observed step %d", step)
		}
	}
}

func TestPersistFailureDoesNotFailGeneration(t *testing.T) {
	gen := &fakeGenerator{content: gemini.Content{Title: "T"}}
	lib := &fakeLibrary{err: docstore.ErrDocumentTooLarge}
	s := newSession(gen, lib, time.Hour)
	s.SetPrompt("x")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	st := s.Snapshot()
	if len(st.Posts) != 1 {
		t.Fatal("expected result in session history")
	}
	if !strings.Contains(st.LastPersistError, "Reduce the image size") {
		t.Fatalf("unexpected persist error %q", st.LastPersistError)
	}
}

type picker struct{}

func (picker) HasCredential(context.Context) bool      { return true }
func (picker) RequestCredential(context.Context) error { return nil }

func TestRecovery(t *testing.T) {
	quota := services.Wrap(services.ErrQuota, "gemini", "generate content", "429", nil)

	plain := newSession(&fakeGenerator{}, nil, time.Hour)
	if r := plain.Recovery(quota); r.Kind != services.KindQuota || r.Action != generation.ActionNone {
		t.Fatalf("unexpected recovery without picker: %+v", r)
	}

	withPicker := generation.New(generation.Options{Generator: &fakeGenerator{}, Credentials: picker{}})
	if r := withPicker.Recovery(quota); r.Action != generation.ActionSelectKey || !strings.Contains(r.Message, "429") {
		t.Fatalf("unexpected recovery with picker: %+v", r)
	}
	if r := withPicker.Recovery(errors.New("boom")); r.Action != generation.ActionRetry {
		t.Fatalf("expected retry for transient failures, got %+v", r)
	}
}

func TestSettersValidate(t *testing.T) {
	s := newSession(&fakeGenerator{}, nil, time.Hour)
	if err := s.SetMode("audio"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for mode, got %v", err)
	}
	if err := s.SetPersona("nobody"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for persona, got %v", err)
	}
	if err := s.SetPlatform("myspace"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for platform, got %v", err)
	}
}

func TestEditImage(t *testing.T) {
	s := newSession(&fakeGenerator{}, nil, time.Hour)
	if _, err := s.EditImage(context.Background(), "", "brighter"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	edited, err := s.EditImage(context.Background(), dataurl.Encode("image/png", []byte{1}), "brighter")
	if err != nil {
		t.Fatalf("EditImage failed: %v", err)
	}
	if !dataurl.IsEncoded(edited) {
		t.Fatalf("expected data URL, got %q", edited)
	}
}
