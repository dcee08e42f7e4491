package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"shivuk/internal/app"
	"shivuk/internal/dataurl"
	"shivuk/internal/generation"
)

const (
	ansiReset = "\x1b[0m"
	ansiBlue  = "\x1b[34m"
)

type generateFlags struct {
	prompt    string
	image     string
	persona   string
	platform  string
	style     string
	folder    string
	saveImage string
	asJSON    bool
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate posts, captions, and videos with the active brand",
	}
	generateCmd.AddCommand(newGenerateModeCommand(ctx, generation.ModePost, "post [prompt]", "Write a post with a generated image and save it to the library"))
	generateCmd.AddCommand(newGenerateModeCommand(ctx, generation.ModeCaption, "caption [context]", "Caption an existing image and save it to the library"))
	generateCmd.AddCommand(newGenerateModeCommand(ctx, generation.ModeVideo, "video [prompt]", "Render a short video and its caption (not saved to the library)"))
	return generateCmd
}

func newGenerateModeCommand(ctx *commandContext, mode generation.Mode, use, short string) *cobra.Command {
	var flags generateFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && strings.TrimSpace(flags.prompt) == "" {
				flags.prompt = strings.Join(args, " ")
			}
			return ctx.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runGenerate(ctx, cmd, a, mode, flags)
			})
		},
	}
	cmd.Flags().StringVarP(&flags.prompt, "prompt", "p", "", "What to create")
	cmd.Flags().StringVarP(&flags.image, "image", "i", "", "Reference image file")
	cmd.Flags().StringVar(&flags.persona, "persona", "", "Persona id (see `shivuk catalog`)")
	cmd.Flags().StringVar(&flags.platform, "platform", "", "Platform id (see `shivuk catalog`)")
	cmd.Flags().StringVar(&flags.style, "style", "", "Visual style description")
	cmd.Flags().StringVar(&flags.folder, "folder", "", "Library folder for the saved result")
	cmd.Flags().StringVar(&flags.saveImage, "save-image", "", "Directory to write the generated image into")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Output as JSON")
	if mode == generation.ModeCaption {
		_ = cmd.MarkFlagRequired("image")
	}
	return cmd
}

func runGenerate(ctx context.Context, cmd *cobra.Command, a *app.App, mode generation.Mode, flags generateFlags) error {
	session := a.Session
	if err := session.SetMode(mode); err != nil {
		return err
	}
	if flags.persona != "" {
		if err := session.SetPersona(flags.persona); err != nil {
			return err
		}
	}
	if flags.platform != "" {
		if err := session.SetPlatform(flags.platform); err != nil {
			return err
		}
	}
	if flags.style != "" {
		session.SetStyle(flags.style)
	}
	if flags.image != "" {
		encoded, err := dataurl.ReadFile(flags.image)
		if err != nil {
			return err
		}
		session.AttachImage(encoded)
	}
	session.SetTargetFolder(strings.TrimSpace(flags.folder))
	session.SetPrompt(flags.prompt)

	stopProgress := watchProgress(cmd.ErrOrStderr(), session)
	err := session.Start(ctx)
	stopProgress()
	if err != nil {
		recovery := session.Recovery(err)
		switch recovery.Action {
		case generation.ActionSelectKey:
			return fmt.Errorf("%s\nSet generation.api_key (or GEMINI_API_KEY) to a key with available quota", recovery.Message)
		case generation.ActionRetry:
			return fmt.Errorf("%s\nThe request can be retried", recovery.Message)
		}
		return fmt.Errorf("%s", recovery.Message)
	}

	st := session.Snapshot()
	if mode == generation.ModeVideo {
		if len(st.Videos) == 0 {
			return fmt.Errorf("no video produced")
		}
		v := st.Videos[0]
		if flags.asJSON {
			return writeJSON(cmd, v)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Video: %s\n\n%s\n", v.URL, v.Caption)
		return nil
	}

	list := st.Posts
	if mode == generation.ModeCaption {
		list = st.Captions
	}
	if len(list) == 0 {
		return fmt.Errorf("no content produced")
	}
	post := list[0]
	if flags.saveImage != "" && dataurl.IsEncoded(post.ImageURL) {
		path, err := dataurl.WriteFile(flags.saveImage, post.ID, post.ImageURL)
		if err != nil {
			return err
		}
		post.ImageURL = path
	}
	if flags.asJSON {
		return writeJSON(cmd, post)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n\n%s\n\n%s\n", post.Title, post.Content, post.Hashtags)
	if post.ImageTerm != "" {
		fmt.Fprintf(out, "\nImage prompt: %s\n", post.ImageTerm)
	}
	if post.ImageURL != "" && !dataurl.IsEncoded(post.ImageURL) {
		fmt.Fprintf(out, "Image: %s\n", post.ImageURL)
	}
	for _, src := range post.Sources {
		fmt.Fprintf(out, "Source: %s <%s>\n", src.Title, src.URI)
	}
	if st.LastPersistError != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: not saved to the library: %s\n", st.LastPersistError)
	}
	return nil
}

var stepLabels = [...]string{
	"",
	"Researching",
	"Writing",
	"Designing",
	"Finishing",
}

// watchProgress renders the session step on w while a request runs. It only
// draws on terminals.
func watchProgress(w io.Writer, session *generation.Session) func() {
	if !isTerminal(w) {
		return func() {}
	}
	var (
		mu      sync.Mutex
		last    = -1
		stopped bool
	)
	session.OnChange(func() {
		st := session.Snapshot()
		mu.Lock()
		defer mu.Unlock()
		if stopped || !st.Generating || st.Step == last {
			return
		}
		last = st.Step
		label := ""
		if st.Step < len(stepLabels) {
			label = stepLabels[st.Step]
		}
		fmt.Fprintf(w, "\r%s[%d/%d] %s...%s", ansiBlue, st.Step, generation.MaxStep, label, ansiReset)
	})
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if !stopped && last >= 0 {
			fmt.Fprint(w, "\r\x1b[K")
		}
		stopped = true
	}
}

func newImageCommand(ctx *commandContext) *cobra.Command {
	imageCmd := &cobra.Command{
		Use:   "image",
		Short: "Image utilities",
	}
	imageCmd.AddCommand(newImageEditCommand(ctx))
	return imageCmd
}

func newImageEditCommand(ctx *commandContext) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "edit <image> <instruction>",
		Short: "Apply an instruction to an image",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			encoded, err := dataurl.ReadFile(args[0])
			if err != nil {
				return err
			}
			instruction := strings.Join(args[1:], " ")
			return ctx.withApp(cmd, func(ctx context.Context, a *app.App) error {
				edited, err := a.Session.EditImage(ctx, encoded, instruction)
				if err != nil {
					return fmt.Errorf("%s", a.Session.Recovery(err).Message)
				}
				dir := outDir
				if dir == "" {
					dir = a.Config.Paths.DataDir
				}
				path, err := dataurl.WriteFile(dir, "edited-"+dataurl.Slug(instruction), edited)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (defaults to the data directory)")
	return cmd
}

func newCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "catalog",
		Short:       "List personas and platforms",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			personaRows := make([][]string, 0, len(generation.Personas))
			for _, p := range generation.Personas {
				personaRows = append(personaRows, []string{p.ID, p.Label, p.Description})
			}
			fmt.Fprintln(out, renderTable([]string{"Persona", "Label", "Voice"}, personaRows, nil))

			platformRows := make([][]string, 0, len(generation.Platforms))
			for _, p := range generation.Platforms {
				platformRows = append(platformRows, []string{p.ID, p.Icon + " " + p.Label})
			}
			fmt.Fprintln(out, renderTable([]string{"Platform", "Label"}, platformRows, nil))
			return nil
		},
	}
}
