package config

const (
	defaultDataDir                  = "~/.local/share/shivuk"
	defaultLogDir                   = "~/.local/share/shivuk/logs"
	defaultVideoDir                 = "~/.local/share/shivuk/videos"
	defaultUserID                   = "local"
	defaultMaxDocumentBytes         = 1 << 20
	defaultBlobBaseURL              = "http://127.0.0.1:7488/blobs"
	defaultBlobBind                 = "127.0.0.1:7488"
	defaultTextModel                = "gemini-3-pro-preview"
	defaultImageModel               = "gemini-2.5-flash-image"
	defaultCaptionModel             = "gemini-3-flash-preview"
	defaultVideoModel               = "veo-3.1-fast-generate-preview"
	defaultLanguage                 = "pt-BR"
	defaultStyle                    = "Minimalista (Apple Style)"
	defaultImageAspectRatio         = "4:5"
	defaultVideoResolution          = "1080p"
	defaultVideoAspectRatio         = "16:9"
	defaultVideoPollIntervalSeconds = 5
	defaultProgressIntervalMS       = 2000
	defaultVideoProgressIntervalMS  = 5000
	defaultBrandName                = "Cliente Principal"
	defaultNewBrandName             = "Novo Cliente"
	defaultPrimaryColor             = "#F1B701"
	defaultSecondaryColor           = "#F8851A"
	defaultAccentColor              = "#FFB020"
	defaultNotifyRequestTimeout     = 10
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			VideoDir: defaultVideoDir,
		},
		Identity: Identity{
			UserID: defaultUserID,
		},
		Store: Store{
			MaxDocumentBytes:     defaultMaxDocumentBytes,
			WatchExternalChanges: true,
		},
		Blobs: Blobs{
			BaseURL: defaultBlobBaseURL,
			Bind:    defaultBlobBind,
		},
		Generation: Generation{
			TextModel:                defaultTextModel,
			ImageModel:               defaultImageModel,
			CaptionModel:             defaultCaptionModel,
			VideoModel:               defaultVideoModel,
			Language:                 defaultLanguage,
			DefaultStyle:             defaultStyle,
			ImageAspectRatio:         defaultImageAspectRatio,
			VideoResolution:          defaultVideoResolution,
			VideoAspectRatio:         defaultVideoAspectRatio,
			VideoPollIntervalSeconds: defaultVideoPollIntervalSeconds,
			ProgressIntervalMS:       defaultProgressIntervalMS,
			VideoProgressIntervalMS:  defaultVideoProgressIntervalMS,
		},
		Brands: Brands{
			DefaultName: defaultBrandName,
			NewName:     defaultNewBrandName,
			Primary:     defaultPrimaryColor,
			Secondary:   defaultSecondaryColor,
			Accent:      defaultAccentColor,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Generation:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
