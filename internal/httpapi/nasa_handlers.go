package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/leonardcser/nasa-proxy/internal/auth"
	"github.com/leonardcser/nasa-proxy/internal/logger"
	"github.com/leonardcser/nasa-proxy/internal/nasa"
	"github.com/leonardcser/nasa-proxy/internal/sanitize"
	"github.com/leonardcser/nasa-proxy/internal/store"
	"github.com/leonardcser/nasa-proxy/internal/validate"
)

// search proxies a NASA image/video search through the response cache.
// GET /api/v1/nasa/search?q={q}&page={page}&limit={limit}
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intParam(q.Get("page"), nasa.DefaultPage)
	limit := intParam(q.Get("limit"), nasa.DefaultLimit)

	res, err := s.searcher.Search(r.Context(), q.Get("q"), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "count": res.Count, "data": res.Items})
}

// searchAssets searches the caller's saved favorites.
// GET /api/v1/nasa/searchAssets?q={q}
func (s *Server) searchAssets(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, errorf(http.StatusBadRequest, "Please provide a search query"))
		return
	}
	id, _ := auth.UserID(r.Context())
	assets, err := s.users.SearchFavorites(id, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "count": len(assets), "data": assets})
}

// addToFavorite saves a NASA asset to the user's favorites.
// POST /api/v1/nasa/addToFavorite/user/{userId}/nasa/{nasaId}
func (s *Server) addToFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.owner(w, r)
	if !ok {
		return
	}
	var body validate.Favorite
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	body.NasaID = r.PathValue("nasaId")
	body.Title = sanitize.Text(body.Title)
	body.Description = sanitize.Markdown(body.Description)
	body.Photographer = sanitize.Text(body.Photographer)
	body.MediaType = sanitize.Text(body.MediaType)
	body.URL = strings.TrimSpace(body.URL)
	if err := body.Validate(); err != nil {
		writeError(w, err)
		return
	}

	a, err := s.users.AddFavorite(userID, store.Asset{
		Title:        body.Title,
		Description:  body.Description,
		Photographer: body.Photographer,
		NasaID:       body.NasaID,
		URL:          body.URL,
		MediaType:    body.MediaType,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "data": a})
}

// removeFromFavorite drops a NASA asset from the user's favorites; the asset
// itself is deleted once nobody references it.
// DELETE /api/v1/nasa/removeFromFavorite/user/{userId}/nasa/{nasaId}
func (s *Server) removeFromFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.owner(w, r)
	if !ok {
		return
	}
	nasaID := r.PathValue("nasaId")
	deleted, err := s.users.RemoveFavorite(userID, nasaID)
	if err != nil {
		writeError(w, err)
		return
	}
	if deleted {
		logger.Debugf("deleted orphan asset %s", nasaID)
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Asset removed from favorites"})
}

// owner returns the {userId} path value after checking that it exists and
// belongs to the caller.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.PathValue("userId")
	if _, err := s.users.FindUserByID(userID); err != nil {
		writeError(w, err)
		return "", false
	}
	if caller, _ := auth.UserID(r.Context()); caller != userID {
		writeError(w, errorf(http.StatusForbidden, "Not authorized to modify another user's favorites"))
		return "", false
	}
	return userID, true
}

// intParam parses a positive integer query value, falling back to def.
func intParam(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return def
	}
	return n
}
