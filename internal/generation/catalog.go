package generation

import (
	"fmt"
	"strings"

	"shivuk/internal/services"
)

// Mode selects the generation pipeline.
type Mode string

const (
	ModePost    Mode = "post"
	ModeVideo   Mode = "video"
	ModeCaption Mode = "caption"
)

// ParseMode validates a mode name.
func ParseMode(value string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(value))); m {
	case ModePost, ModeVideo, ModeCaption:
		return m, nil
	default:
		return "", services.Wrap(services.ErrValidation, "", "", fmt.Sprintf("unknown mode %q (want post, video or caption)", value), nil)
	}
}

// Persona is a writing voice applied to generated content.
type Persona struct {
	ID          string
	Label       string
	Description string
}

// Platform is the social network the content targets.
type Platform struct {
	ID    string
	Label string
	Icon  string
}

// Personas lists the available voices. The first is the default.
var Personas = []Persona{
	{ID: "joshua", Label: "Joshua — Analítico", Description: "Focado em dados, lógica, métricas e growth hacking."},
	{ID: "gabriel", Label: "Gabriel — Estratégia de Funil", Description: "Especialista em etapas de consciência e conversão."},
	{ID: "caelum", Label: "Caelum — Conexão Humana", Description: "Empático, focado em storytelling, branding e comunidade."},
	{ID: "nyx", Label: "Nyx — Vendas (Hard Sell)", Description: "Persuasiva, agressiva, uso de gatilhos mentais e fechamento."},
	{ID: "ziggy", Label: "Ziggy — Humor & Entretenimento", Description: "Engraçada, usa memes, sarcasmo leve e situações relacionáveis."},
	{ID: "kai", Label: "Kai — Hype & Trends", Description: "Conectado, linguagem Gen-Z, focado em virais e tendências."},
	{ID: "solara", Label: "Solara — Sofisticação & Luxo", Description: "Elegante, minimalista, focada em exclusividade e alto padrão."},
}

// Platforms lists the supported targets. The first is the default.
var Platforms = []Platform{
	{ID: "linkedin", Label: "LinkedIn", Icon: "💼"},
	{ID: "instagram", Label: "Instagram", Icon: "📸"},
	{ID: "tiktok", Label: "TikTok", Icon: "🎵"},
	{ID: "twitter", Label: "Twitter/X", Icon: "🐦"},
}

// PersonaByID looks up a persona.
func PersonaByID(id string) (Persona, bool) {
	for _, p := range Personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// PlatformByID looks up a platform.
func PlatformByID(id string) (Platform, bool) {
	for _, p := range Platforms {
		if p.ID == id {
			return p, true
		}
	}
	return Platform{}, false
}
