package handlers

import (
	"net/http"

	"server/internal/prompt"
)

type styleEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Styles lists the portrait style catalog. Prompt text stays server-side.
func (a *App) Styles(w http.ResponseWriter, r *http.Request) {
	catalog := prompt.Catalog()
	items := make([]styleEntry, 0, len(catalog))
	for _, s := range catalog {
		items = append(items, styleEntry{ID: s.ID, Name: s.Name})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
