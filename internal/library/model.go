package library

// Item is one generated piece of content. Items are never updated after
// creation.
type Item struct {
	ID              string  `json:"-"`
	Title           string  `json:"title"`
	Content         string  `json:"content"`
	Hashtags        string  `json:"hashtags"`
	ImageSearchTerm string  `json:"imageSearchTerm"`
	ImageURL        *string `json:"imageUrl"`
	OverlayImageURL *string `json:"overlayImageUrl,omitempty"`
	BrandName       string  `json:"brandName"`
	BrandColor      string  `json:"brandColor"`
	PlatformID      string  `json:"platformId,omitempty"`
	PersonaID       string  `json:"personaId,omitempty"`
	FolderID        string  `json:"folderId,omitempty"`
	Timestamp       int64   `json:"timestamp"`
}

// Image returns the image URL, or "" when the item has none.
func (i Item) Image() string {
	if i.ImageURL == nil {
		return ""
	}
	return *i.ImageURL
}

// NewItem carries every Item field the caller supplies. ImageURL may be an
// inline data URL.
type NewItem struct {
	Title           string
	Content         string
	Hashtags        string
	ImageSearchTerm string
	ImageURL        string
	OverlayImageURL string
	BrandName       string
	BrandColor      string
	PlatformID      string
	PersonaID       string
	FolderID        string
}

// Folder groups items. BrandID is informational only.
type Folder struct {
	ID        string `json:"-"`
	Name      string `json:"name"`
	BrandID   string `json:"brandId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// ClearResult reports the outcome of ClearLibrary.
type ClearResult struct {
	Deleted int
	Failed  int
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
