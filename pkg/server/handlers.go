package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/app"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/geo"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/places"
)

const (
	defaultNearest = 5
	maxNearest     = 100
)

type placeView struct {
	Place     models.Place `json:"place"`
	Favourite bool         `json:"favourite"`
	MapsURL   string       `json:"maps_url"`
	Emoji     string       `json:"emoji"`
	Color     string       `json:"color,omitempty"`
}

type placesResponse struct {
	Status        app.LoadStatus `json:"status"`
	Stale         bool           `json:"stale,omitempty"`
	Error         string         `json:"error,omitempty"`
	LocationError string         `json:"location_error,omitempty"`
	Count         int            `json:"count"`
	Places        []placeView    `json:"places"`
}

type categoryView struct {
	Name    string `json:"name"`
	Emoji   string `json:"emoji"`
	Color   string `json:"color,omitempty"`
	Present bool   `json:"present"`
}

type favouritesResponse struct {
	Favourites models.FavouritesSet `json:"favourites"`
	Pending    bool                 `json:"pending"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	st, index := s.session.View()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"places_status": st.Status,
		"places":        len(st.Places),
		"indexed":       index.Size(),
	})
}

func (s *Server) meta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":        s.cfg.App.Name,
		"suggest_url": s.cfg.App.SuggestURL,
	})
}

// listPlaces answers the list view: filters and location come from the query
// string, falling back to the session's own location.
func (s *Server) listPlaces(w http.ResponseWriter, r *http.Request) {
	st := s.session.State()
	st, err := applyQuery(st, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.placesResponse(st, st.Visible()))
}

func (s *Server) placesInBox(w http.ResponseWriter, r *http.Request) {
	var coords [4]float64
	for i, key := range []string{"min_lat", "min_lon", "max_lat", "max_lon"} {
		v, ok, err := floatParam(r, key)
		if err == nil && !ok {
			err = fmt.Errorf("%s is required", key)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		coords[i] = v
	}
	box := models.BoundingBox{
		BottomLeft: models.Location{Lat: coords[0], Lon: coords[1]},
		TopRight:   models.Location{Lat: coords[2], Lon: coords[3]},
	}

	st, index := s.session.View()
	positions, err := index.QueryBox(box)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err = applyQuery(st, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// markers carry no distance
	st.UserLocation = nil
	st.Places = pick(st.Places, positions)
	writeJSON(w, http.StatusOK, s.placesResponse(st, st.Visible()))
}

func (s *Server) nearestPlaces(w http.ResponseWriter, r *http.Request) {
	loc, ok, err := locationParam(r)
	if err == nil && !ok {
		err = fmt.Errorf("lat and lon are required")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	k := defaultNearest
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err = strconv.Atoi(raw)
		if err != nil || k <= 0 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		if k > maxNearest {
			k = maxNearest
		}
	}

	st, index := s.session.View()
	nearest := pick(st.Places, index.Nearest(loc, k))
	for i := range nearest {
		d := geo.DistanceBetween(loc, nearest[i].Location())
		nearest[i].Distance = &d
	}
	st = st.WithUserLocation(loc)
	writeJSON(w, http.StatusOK, s.placesResponse(st, nearest))
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	present := make(map[string]bool)
	for _, c := range places.CategoriesIn(s.session.State().Places) {
		present[c] = true
	}

	views := make([]categoryView, 0, len(present)+len(places.Categories))
	for _, name := range places.KnownCategories() {
		style := places.StyleFor(name)
		views = append(views, categoryView{Name: name, Emoji: style.Emoji, Color: style.Color, Present: present[name]})
		delete(present, name)
	}
	// categories in the sheet without a style of their own
	for _, name := range places.CategoriesIn(s.session.State().Places) {
		if present[name] {
			views = append(views, categoryView{Name: name, Emoji: places.DefaultStyle.Emoji, Present: true})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"all_label":  places.AllCategoriesLabel,
		"categories": views,
	})
}

func (s *Server) listFavourites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, favouritesResponse{
		Favourites: s.session.State().Favourites,
		Pending:    s.session.FavouritesPending(),
	})
}

func (s *Server) toggleFavourite(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid name")
		return
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	favs := s.session.ToggleFavourite(r.Context(), name)
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       name,
		"favourite":  favs.Contains(name),
		"favourites": favs,
		"pending":    s.session.FavouritesPending(),
	})
}

func (s *Server) placesResponse(st app.State, list []models.Place) placesResponse {
	resp := placesResponse{
		Status: st.Status,
		Stale:  st.Stale,
		Count:  len(list),
		Places: make([]placeView, 0, len(list)),
	}
	if st.LoadErr != nil {
		resp.Error = st.LoadErr.Error()
	}
	if st.LocationErr != nil {
		resp.LocationError = st.LocationErr.Error()
	}
	for _, p := range list {
		style := places.StyleFor(p.Category)
		resp.Places = append(resp.Places, placeView{
			Place:     p,
			Favourite: st.Favourites.Contains(p.Name),
			MapsURL:   geo.MapsURL(p),
			Emoji:     style.Emoji,
			Color:     style.Color,
		})
	}
	return resp
}

// applyQuery layers category, favourites and lat/lon query parameters onto st
func applyQuery(st app.State, r *http.Request) (app.State, error) {
	q := r.URL.Query()

	category := q.Get("category")
	if category == places.AllCategoriesLabel {
		category = ""
	}
	st = st.WithCategory(places.NormalizeCategory(category))

	if raw := q.Get("favourites"); raw != "" {
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return st, fmt.Errorf("favourites must be true or false")
		}
		st = st.WithFavouritesOnly(on)
	}

	loc, ok, err := locationParam(r)
	if err != nil {
		return st, err
	}
	if ok {
		st = st.WithUserLocation(loc)
	}
	return st, nil
}

func locationParam(r *http.Request) (models.Location, bool, error) {
	lat, hasLat, err := floatParam(r, "lat")
	if err != nil {
		return models.Location{}, false, err
	}
	lon, hasLon, err := floatParam(r, "lon")
	if err != nil {
		return models.Location{}, false, err
	}
	if hasLat != hasLon {
		return models.Location{}, false, fmt.Errorf("lat and lon must be given together")
	}
	loc := models.Location{Lat: lat, Lon: lon}
	if hasLat && !loc.Valid() {
		return models.Location{}, false, fmt.Errorf("invalid location %v,%v", lat, lon)
	}
	return loc, hasLat, nil
}

func floatParam(r *http.Request, key string) (float64, bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be a number", key)
	}
	return v, true, nil
}

func pick(all []models.Place, positions []int) []models.Place {
	out := make([]models.Place, 0, len(positions))
	for _, pos := range positions {
		if pos >= 0 && pos < len(all) {
			out = append(out, all[pos])
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
