package brands

import "regexp"

// Colors is the three-slot brand palette, each a #RRGGBB string.
type Colors struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`
}

// Profile is one brand as stored in the document store.
type Profile struct {
	ID           string   `json:"-"`
	Name         string   `json:"name"`
	Colors       Colors   `json:"colors"`
	ActiveLogo   *string  `json:"activeLogo"`
	LogoVariants []string `json:"logoVariants"`
	CreatedAt    int64    `json:"createdAt"`
}

// Logo returns the active logo URL, or "" when none is set.
func (p Profile) Logo() string {
	if p.ActiveLogo == nil {
		return ""
	}
	return *p.ActiveLogo
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name   *string
	Colors *Colors
	// ActiveLogo replaces the active logo; ClearActiveLogo stores null instead.
	ActiveLogo      *string
	ClearActiveLogo bool
	// LogoVariants replaces the whole variant list.
	LogoVariants *[]string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Colors == nil && p.ActiveLogo == nil && !p.ClearActiveLogo && p.LogoVariants == nil
}

func (p Patch) apply(profile Profile) Profile {
	if p.Name != nil {
		profile.Name = *p.Name
	}
	if p.Colors != nil {
		profile.Colors = *p.Colors
	}
	if p.ClearActiveLogo {
		profile.ActiveLogo = nil
	} else if p.ActiveLogo != nil {
		logo := *p.ActiveLogo
		profile.ActiveLogo = &logo
	}
	if p.LogoVariants != nil {
		profile.LogoVariants = append([]string{}, (*p.LogoVariants)...)
	}
	return profile
}

func (p Patch) fields() map[string]any {
	fields := map[string]any{}
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Colors != nil {
		fields["colors"] = *p.Colors
	}
	if p.ClearActiveLogo {
		fields["activeLogo"] = nil
	} else if p.ActiveLogo != nil {
		fields["activeLogo"] = *p.ActiveLogo
	}
	if p.LogoVariants != nil {
		variants := append([]string{}, (*p.LogoVariants)...)
		fields["logoVariants"] = variants
	}
	return fields
}

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ValidColor reports whether value is a #RRGGBB color.
func ValidColor(value string) bool {
	return hexColor.MatchString(value)
}
