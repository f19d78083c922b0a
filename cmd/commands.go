package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/app"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/geo"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/places"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/server"
	"github.com/spf13/cobra"
)

// startSession loads favourites, places and location, reporting degraded results
func startSession(ctx context.Context, cmd *cobra.Command, d *deps) (*app.Session, error) {
	session := d.session(cmd)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}

	st := session.State()
	if st.Status == app.StatusFailed {
		if st.Stale {
			printWarning("Could not refresh places, showing the last saved list: %v", st.LoadErr)
		} else {
			printError("Could not load places: %v", st.LoadErr)
		}
	}
	return session, nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	session, err := startSession(ctx, cmd, d)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	if category == places.AllCategoriesLabel {
		category = ""
	}
	session.SetCategory(places.NormalizeCategory(category))
	st := session.SetFavouritesOnly(favouritesOnly)
	visible := st.Visible()

	summary := fmt.Sprintf("%d of %d places", len(visible), len(st.Places))
	if st.UserLocation == nil {
		summary += ", pass --lat and --lon to sort by distance"
	}
	printHeader(d.cfg.App.Name, summary)
	return printPlaces(visible, st.Favourites)
}

func runNearest(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
		return fmt.Errorf("--lat and --lon are required")
	}
	center := models.Location{Lat: userLat, Lon: userLon}
	if numNeighbors <= 0 {
		return fmt.Errorf("--neighbors must be positive")
	}

	ctx := cmd.Context()
	d, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	session, err := startSession(ctx, cmd, d)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	st, index := session.View()
	var positions []int
	if searchRadius > 0 {
		positions, err = index.QueryRadius(center, searchRadius)
		if err != nil {
			return err
		}
	} else {
		positions = index.Nearest(center, numNeighbors)
	}

	found := make([]models.Place, 0, len(positions))
	for _, pos := range positions {
		p := st.Places[pos]
		dist := geo.DistanceBetween(center, p.Location())
		p.Distance = &dist
		found = append(found, p)
	}
	sort.SliceStable(found, func(i, j int) bool {
		return *found[i].Distance < *found[j].Distance
	})
	if len(found) > numNeighbors {
		found = found[:numNeighbors]
	}

	printHeader(d.cfg.App.Name, fmt.Sprintf("Nearest to %.4f, %.4f", center.Lat, center.Lon))
	return printPlaces(found, st.Favourites)
}

func runFavouritesList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	favs := d.store.Load(ctx)
	if err := d.store.LastError(); err != nil {
		printWarning("Favourites could not be read: %v", err)
	}
	if jsonOutput {
		return printJSON(favs)
	}
	if favs.Len() == 0 {
		printWarning("No favourites yet")
		return nil
	}
	for _, name := range favs.Names() {
		fmt.Printf("⭐ %s\n", name)
	}
	return nil
}

func runFavouritesToggle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	name := args[0]
	d.store.Load(ctx)
	favs := d.store.Toggle(ctx, name)
	if err := d.store.Flush(ctx); err != nil {
		return fmt.Errorf("favourite changed but not saved: %w", err)
	}

	if favs.Contains(name) {
		fmt.Printf("%s⭐ %s added to favourites%s\n", colorGreen, name, colorReset)
	} else {
		fmt.Printf("☆ %s removed from favourites\n", name)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	startTime := time.Now()
	session, err := startSession(ctx, cmd, d)
	if err != nil {
		return err
	}
	defer session.Close(context.Background())
	st := session.State()
	log.Printf("Loaded %d places (%s) in %v", len(st.Places), st.Status, time.Since(startTime))

	if ttl := d.cfg.CacheTTL(); ttl > 0 {
		go refreshLoop(ctx, d, session, ttl)
	}

	port := d.cfg.Server.Port
	if listenPort != "" {
		port = listenPort
	}
	return server.New(session, d.cfg).Run(ctx, ":"+port)
}

// refreshLoop re-reads the sheet every ttl so edits show up without a restart
func refreshLoop(ctx context.Context, d *deps, session *app.Session, ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.cache != nil {
				d.cache.Invalidate()
			}
			if err := session.Refresh(ctx); err != nil {
				return
			}
			log.Printf("Refreshed places: %d (%s)", len(session.State().Places), session.State().Status)
		}
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	fetched, err := d.source.FetchPlaces(ctx)
	if err != nil {
		return err
	}

	db, err := d.database(ctx)
	if err != nil {
		return err
	}
	mirror, err := db.Mirror(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := mirror.Replace(ctx, fetched); err != nil {
		return err
	}
	report, err := checkMirror(ctx, mirror, fetched)
	if err != nil {
		return err
	}

	fmt.Printf("%s✓ Mirrored %d places in %v%s\n", colorGreen, report.total, time.Since(start), colorReset)
	if outside := report.located - report.inPoland; outside > 0 {
		printWarning("%d places lie outside Poland, check their coordinates", outside)
	}
	if report.skipped > 0 {
		printWarning("%d places have no coordinates and are stored without a location", report.skipped)
	}
	return nil
}

// polandBounds is a rough box around the country
var polandBounds = models.BoundingBox{
	BottomLeft: models.Location{Lat: 49.0, Lon: 14.1},
	TopRight:   models.Location{Lat: 54.9, Lon: 24.2},
}

// mirrorReader is the read side of postgis.PlaceMirror
type mirrorReader interface {
	Count(ctx context.Context) (int64, error)
	QueryBox(ctx context.Context, box models.BoundingBox) ([]models.Place, error)
}

type mirrorReport struct {
	total    int64
	located  int
	inPoland int
	skipped  int
}

// checkMirror reads back what sync stored and counts rows that look misplaced
func checkMirror(ctx context.Context, mirror mirrorReader, fetched []models.Place) (mirrorReport, error) {
	var report mirrorReport
	total, err := mirror.Count(ctx)
	if err != nil {
		return report, err
	}
	report.total = total

	inside, err := mirror.QueryBox(ctx, polandBounds)
	if err != nil {
		return report, err
	}
	report.inPoland = len(inside)

	for _, p := range fetched {
		if p.Location().Valid() {
			report.located++
		} else {
			report.skipped++
		}
	}
	return report, nil
}
