package prompt

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Style is one entry of the portrait style catalog.
type Style struct {
	ID     string
	Name   string
	Prompt string
}

var styles = map[string]Style{
	"royal": {
		ID:   "royal",
		Name: "Royal Portrait",
		Prompt: "Convert the uploaded photo of the pet into a Renaissance-era regal oil painting portrait. " +
			"Maintain the exact and recognizable likeness of the pet: eye shape, fur pattern, mouth and expression. " +
			"Dramatic chiaroscuro lighting, rich deep colors, opulent chamber with dark ornate paneling and velvet drapes in jewel tones. " +
			"Dignified, noble, timeless.",
	},
	"fantasy": {
		ID:   "fantasy",
		Name: "Fantasy",
		Prompt: "Render the pet in a tasteful fantasy scene with subtle magical ambience and dramatic but soft lighting. " +
			"Preserve exact likeness; avoid cluttered props.",
	},
	"impressionist": {
		ID:   "impressionist",
		Name: "Impressionist Garden",
		Prompt: "Convert the uploaded photo of the pet into a vibrant Impressionist painting with visible loose brushstrokes, " +
			"set outdoors in a sun-drenched blooming garden in late afternoon light. " +
			"The pet's unique features must remain clearly identifiable.",
	},
	"watercolor": {
		ID:   "watercolor",
		Name: "Watercolor",
		Prompt: "Paint the pet as a delicate watercolor with soft washes and gentle color bleeds on textured paper. " +
			"Keep the likeness precise and the background airy.",
	},
	"popart": {
		ID:   "popart",
		Name: "Pop Art",
		Prompt: "Transform the pet photo into a bold pop-art portrait with flat saturated color blocks and clean outlines. " +
			"The face must stay instantly recognizable.",
	},
	"surrealist": {
		ID:   "surrealist",
		Name: "Surrealist",
		Prompt: "Depict the pet in a dreamlike surrealist composition with unexpected yet tasteful imagery. " +
			"Preserve the pet's exact facial features and expression.",
	},
	"pencil": {
		ID:   "pencil",
		Name: "Pencil Sketch",
		Prompt: "Draw the pet as a fine graphite pencil sketch with careful shading and crisp detail in the eyes and fur. " +
			"Likeness has priority over stylization.",
	},
}

// catalogOrder fixes the display order of the style catalog.
var catalogOrder = []string{"royal", "fantasy", "impressionist", "watercolor", "popart", "surrealist", "pencil"}

// Catalog returns the style catalog in display order.
func Catalog() []Style {
	out := make([]Style, 0, len(catalogOrder))
	for _, id := range catalogOrder {
		out = append(out, styles[id])
	}
	return out
}

// StyleByID returns the catalog entry for the given id.
func StyleByID(id string) (Style, bool) {
	s, ok := styles[strings.ToLower(strings.TrimSpace(id))]
	return s, ok
}

// Resolve builds the full generation prompt from a style, the pet's name and
// an optional background hint. The result is stored on the Job at creation so
// regenerations are reproducible.
func Resolve(styleID, petName, background string) (string, error) {
	style, ok := StyleByID(styleID)
	if !ok {
		return "", fmt.Errorf("prompt: unknown style %q", styleID)
	}

	var b strings.Builder
	b.WriteString(style.Prompt)
	if name := strings.TrimSpace(petName); name != "" {
		c := cases.Title(language.English)
		b.WriteString(fmt.Sprintf(" The pet's name is %s.", c.String(name)))
	}
	if bg := strings.TrimSpace(background); bg != "" {
		b.WriteString(" Background: ")
		b.WriteString(bg)
		b.WriteString(".")
	}
	return b.String(), nil
}

// AppendRefinement extends an existing prompt with user-supplied adjustment
// text. The base prompt is never replaced, only extended, so every refinement
// builds on the full history.
func AppendRefinement(base, refinement string) string {
	refinement = strings.TrimSpace(refinement)
	if refinement == "" {
		return base
	}
	return base + " Adjustment: " + refinement + "."
}
