package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shivuk/internal/brands"
	"shivuk/internal/config"
	"shivuk/internal/credentials"
	"shivuk/internal/library"
	"shivuk/internal/logging"
	"shivuk/internal/services"
	"shivuk/internal/services/gemini"
)

// MaxStep is the progress ceiling.
const MaxStep = 4

// Generator is the generation service contract.
type Generator interface {
	GenerateContent(ctx context.Context, prompt, image string) (gemini.Content, error)
	GenerateCaption(ctx context.Context, image, extra string) (gemini.Content, error)
	EditImage(ctx context.Context, image, instruction string) (string, error)
	GenerateVideo(ctx context.Context, prompt, image string) (string, error)
	GenerateVideoCaption(ctx context.Context, prompt string) (string, error)
}

// Library receives post and caption results.
type Library interface {
	AddItem(ctx context.Context, item library.NewItem) (string, error)
}

// BrandSource supplies the brand stamped on new content.
type BrandSource interface {
	Active() (brands.Profile, bool)
}

// Notifier is told about finished requests. Implementations must not block
// for long.
type Notifier interface {
	NotifyGenerationCompleted(ctx context.Context, mode, title string) error
	NotifyGenerationFailed(ctx context.Context, mode string, err error) error
}

// Options wires a Session.
type Options struct {
	Generator   Generator
	Library     Library
	Brands      BrandSource
	Notifier    Notifier
	Credentials credentials.Provider
	Logger      *slog.Logger
	Now         func() time.Time

	// ProgressInterval and VideoProgressInterval pace the progress step.
	ProgressInterval      time.Duration
	VideoProgressInterval time.Duration
	DefaultStyle          string
}

// OptionsFromConfig fills the pacing and style fields from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ProgressInterval:      cfg.ProgressInterval(false),
		VideoProgressInterval: cfg.ProgressInterval(true),
		DefaultStyle:          cfg.Generation.DefaultStyle,
	}
}

// Post is a generated post or caption kept in the session history.
type Post struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Hashtags  string          `json:"hashtags"`
	ImageTerm string          `json:"imageTerm"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	Sources   []gemini.Source `json:"sources,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Video is a generated video kept in the session history.
type Video struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Caption   string `json:"caption"`
	Timestamp int64  `json:"timestamp"`
}

// State is a point-in-time copy of the session.
type State struct {
	Mode           Mode
	Persona        Persona
	Platform       Platform
	Style          string
	Prompt         string
	AttachedImage  string
	TargetFolderID string

	Generating bool
	Step       int

	Posts    []Post
	Captions []Post
	Videos   []Video

	// LastPersistError describes the most recent library save failure.
	LastPersistError string
}

// Session is one person's generation session.
type Session struct {
	gen         Generator
	lib         Library
	brands      BrandSource
	notifier    Notifier
	credentials credentials.Provider
	logger      *slog.Logger
	now         func() time.Time
	interval    time.Duration
	videoEvery  time.Duration

	mu        sync.Mutex
	state     State
	listeners []func()
}

// New creates an idle session with the default persona, platform, and style.
func New(opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	videoEvery := opts.VideoProgressInterval
	if videoEvery <= 0 {
		videoEvery = 5 * time.Second
	}
	style := opts.DefaultStyle
	if style == "" {
		style = config.Default().Generation.DefaultStyle
	}
	creds := opts.Credentials
	if creds == nil {
		creds = credentials.Noop{}
	}
	return &Session{
		gen:         opts.Generator,
		lib:         opts.Library,
		brands:      opts.Brands,
		notifier:    opts.Notifier,
		credentials: creds,
		logger:      logging.NewComponentLogger(opts.Logger, "generation"),
		now:         now,
		interval:    interval,
		videoEvery:  videoEvery,
		state: State{
			Mode:     ModePost,
			Persona:  Personas[0],
			Platform: Platforms[0],
			Style:    style,
		},
	}
}

// OnChange registers fn to run after every state change, including each
// progress step. fn runs without the session lock held.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) changed() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	out.Posts = append([]Post(nil), s.state.Posts...)
	out.Captions = append([]Post(nil), s.state.Captions...)
	out.Videos = append([]Video(nil), s.state.Videos...)
	return out
}

func (s *Session) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
	s.changed()
}

// SetMode selects the pipeline for the next Start.
func (s *Session) SetMode(mode Mode) error {
	parsed, err := ParseMode(string(mode))
	if err != nil {
		return err
	}
	s.update(func(st *State) { st.Mode = parsed })
	return nil
}

// SetPersona selects a persona by id.
func (s *Session) SetPersona(id string) error {
	p, ok := PersonaByID(id)
	if !ok {
		return services.Wrap(services.ErrValidation, "", "", fmt.Sprintf("unknown persona %q", id), nil)
	}
	s.update(func(st *State) { st.Persona = p })
	return nil
}

// SetPlatform selects a platform by id.
func (s *Session) SetPlatform(id string) error {
	p, ok := PlatformByID(id)
	if !ok {
		return services.Wrap(services.ErrValidation, "", "", fmt.Sprintf("unknown platform %q", id), nil)
	}
	s.update(func(st *State) { st.Platform = p })
	return nil
}

// SetStyle sets the visual style description.
func (s *Session) SetStyle(style string) {
	s.update(func(st *State) { st.Style = style })
}

// SetPrompt sets the free-text request.
func (s *Session) SetPrompt(prompt string) {
	s.update(func(st *State) { st.Prompt = prompt })
}

// AttachImage sets the reference image as a data URL. An empty value detaches it.
func (s *Session) AttachImage(image string) {
	s.update(func(st *State) { st.AttachedImage = image })
}

// SetTargetFolder selects the folder new library items are filed under.
func (s *Session) SetTargetFolder(id string) {
	s.update(func(st *State) { st.TargetFolderID = id })
}

// ResetResult clears the three history lists.
func (s *Session) ResetResult() {
	s.update(func(st *State) {
		st.Posts = nil
		st.Captions = nil
		st.Videos = nil
	})
}

type request struct {
	mode     Mode
	persona  Persona
	platform Platform
	style    string
	prompt   string
	image    string
	folderID string
	brand    brands.Profile
}

// Start runs one generation request and blocks until it settles. It fails
// with services.ErrBusy, leaving the state untouched, while another request
// is running, and with a validation error when the draft does not satisfy
// the mode. A failed request restores the draft and returns the service error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Generating {
		s.mu.Unlock()
		return services.Wrap(services.ErrBusy, "", "", "a generation is already running", nil)
	}
	st := s.state
	if st.Mode == ModeCaption && st.AttachedImage == "" {
		s.mu.Unlock()
		return services.Wrap(services.ErrValidation, "", "", "attach an image to generate a caption", nil)
	}
	if strings.TrimSpace(st.Prompt) == "" && st.AttachedImage == "" {
		s.mu.Unlock()
		return services.Wrap(services.ErrValidation, "", "", "enter a prompt or attach an image", nil)
	}
	req := request{
		mode:     st.Mode,
		persona:  st.Persona,
		platform: st.Platform,
		style:    st.Style,
		prompt:   st.Prompt,
		image:    st.AttachedImage,
		folderID: st.TargetFolderID,
	}
	s.state.Prompt = ""
	s.state.AttachedImage = ""
	s.state.Generating = true
	s.state.Step = 1
	s.mu.Unlock()
	s.changed()

	if s.brands != nil {
		if b, ok := s.brands.Active(); ok {
			req.brand = b
		}
	}

	ctx = services.WithMode(services.WithRequestID(ctx, uuid.NewString()), string(req.mode))
	log := logging.WithContext(ctx, s.logger)
	log.Info("generation started",
		logging.String("persona", req.persona.ID),
		logging.String("platform", req.platform.ID),
		logging.Bool("has_image", req.image != ""),
	)
	started := s.now()

	every := s.interval
	if req.mode == ModeVideo {
		every = s.videoEvery
	}
	stop := s.startProgress(every)
	err := s.run(ctx, log, req)
	stop()

	s.mu.Lock()
	s.state.Generating = false
	s.state.Step = 0
	if err != nil {
		s.state.Prompt = req.prompt
		s.state.AttachedImage = req.image
	}
	s.mu.Unlock()
	s.changed()

	if err != nil {
		logging.ErrorWithContext(log, "generation failed", "generation_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.UserMessage(err)),
			logging.Duration("elapsed", s.now().Sub(started)),
		)
		s.notifyFailed(ctx, req.mode, err)
		return err
	}
	log.Info("generation finished", logging.Duration("elapsed", s.now().Sub(started)))
	return nil
}

// startProgress advances the step once per interval until MaxStep. The
// returned func stops the ticker and waits for it to exit.
func (s *Session) startProgress(every time.Duration) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.state.Generating {
					s.mu.Unlock()
					return
				}
				advanced := s.state.Step < MaxStep
				if advanced {
					s.state.Step++
				}
				atCeiling := s.state.Step >= MaxStep
				s.mu.Unlock()
				if advanced {
					s.changed()
				}
				if atCeiling {
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}

func (s *Session) run(ctx context.Context, log *slog.Logger, req request) error {
	if s.gen == nil {
		return services.Wrap(services.ErrConfiguration, "generation", string(req.mode), "generation service not configured", nil)
	}
	switch req.mode {
	case ModeVideo:
		return s.runVideo(ctx, req)
	case ModeCaption:
		content, err := s.gen.GenerateCaption(ctx, req.image, req.prompt)
		if err != nil {
			return err
		}
		if content.GeneratedImageURL == "" {
			content.GeneratedImageURL = req.image
		}
		s.persist(ctx, log, req, content)
		post := s.newPost(content)
		s.update(func(st *State) { st.Captions = append([]Post{post}, st.Captions...) })
		s.notifyCompleted(ctx, req.mode, post.Title)
		return nil
	default:
		prompt := fmt.Sprintf("MARCA: %s. PERSONA: %s. ESTILO: %s. PEDIDO: %s", req.brand.Name, req.persona.Label, req.style, req.prompt)
		content, err := s.gen.GenerateContent(ctx, prompt, req.image)
		if err != nil {
			return err
		}
		s.persist(ctx, log, req, content)
		post := s.newPost(content)
		s.update(func(st *State) { st.Posts = append([]Post{post}, st.Posts...) })
		s.notifyCompleted(ctx, req.mode, post.Title)
		return nil
	}
}

// runVideo generates the clip and its caption concurrently. Either failure
// fails the request.
func (s *Session) runVideo(ctx context.Context, req request) error {
	var videoURL, caption string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		videoURL, err = s.gen.GenerateVideo(gctx, fmt.Sprintf("%s style. %s", req.style, req.prompt), req.image)
		return err
	})
	g.Go(func() error {
		var err error
		caption, err = s.gen.GenerateVideoCaption(gctx,
			fmt.Sprintf("%s. Estilo: %s. Persona: %s. Plataforma: %s", req.prompt, req.style, req.persona.Label, req.platform.Label))
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	video := Video{ID: uuid.NewString(), URL: videoURL, Caption: caption, Timestamp: s.now().UnixMilli()}
	s.update(func(st *State) { st.Videos = append([]Video{video}, st.Videos...) })
	s.notifyCompleted(ctx, req.mode, caption)
	return nil
}

func (s *Session) newPost(c gemini.Content) Post {
	return Post{
		ID:        uuid.NewString(),
		Title:     c.Title,
		Content:   c.Content,
		Hashtags:  c.Hashtags,
		ImageTerm: c.ImagePrompt,
		ImageURL:  c.GeneratedImageURL,
		Sources:   c.Sources,
		Timestamp: s.now().UnixMilli(),
	}
}

// persist saves a result to the library. A failed save does not fail the
// request; it is logged and recorded in LastPersistError.
func (s *Session) persist(ctx context.Context, log *slog.Logger, req request, c gemini.Content) {
	if s.lib == nil {
		return
	}
	_, err := s.lib.AddItem(ctx, library.NewItem{
		Title:           c.Title,
		Content:         c.Content,
		Hashtags:        c.Hashtags,
		ImageSearchTerm: c.ImagePrompt,
		ImageURL:        c.GeneratedImageURL,
		BrandName:       req.brand.Name,
		BrandColor:      req.brand.Colors.Primary,
		PlatformID:      req.platform.ID,
		PersonaID:       req.persona.ID,
		FolderID:        req.folderID,
	})
	message := ""
	if err != nil {
		message = services.UserMessage(err)
		logging.WarnWithContext(log, "generated content not saved to library", "library_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, message),
			logging.String(logging.FieldImpact, "result stays in the session history only"),
		)
	}
	s.update(func(st *State) { st.LastPersistError = message })
}

// EditImage applies instruction to image through the generation service.
// It does not touch the session state.
func (s *Session) EditImage(ctx context.Context, image, instruction string) (string, error) {
	if strings.TrimSpace(image) == "" || strings.TrimSpace(instruction) == "" {
		return "", services.Wrap(services.ErrValidation, "", "", "an image and an edit instruction are required", nil)
	}
	if s.gen == nil {
		return "", services.Wrap(services.ErrConfiguration, "generation", "edit image", "generation service not configured", nil)
	}
	edited, err := s.gen.EditImage(ctx, image, instruction)
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, s.logger), "image edit failed", "image_edit_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.UserMessage(err)),
		)
		return "", err
	}
	return edited, nil
}

func (s *Session) notifyCompleted(ctx context.Context, mode Mode, title string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyGenerationCompleted(ctx, string(mode), title); err != nil {
		s.logger.Debug("completion notification failed", logging.Error(err))
	}
}

func (s *Session) notifyFailed(ctx context.Context, mode Mode, cause error) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyGenerationFailed(ctx, string(mode), cause); err != nil {
		s.logger.Debug("failure notification failed", logging.Error(err))
	}
}
