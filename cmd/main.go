package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	userLat    float64
	userLon    float64
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "halal-mapa",
	Short: "Halal places in Poland: mosques, shops, restaurants and cemeteries",
	Long: `Browse the community-maintained sheet of halal places, sorted by distance
from you, filtered by category or by your favourites.`,
	SilenceUsage: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List places, nearest first when a location is given",
	RunE:  runList,
}

var nearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Show the places closest to --lat/--lon",
	RunE:  runNearest,
}

var favouritesCmd = &cobra.Command{
	Use:   "favourites",
	Short: "Inspect or change favourite places",
}

var favouritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the favourite place names",
	RunE:  runFavouritesList,
}

var favouritesToggleCmd = &cobra.Command{
	Use:   "toggle <name>",
	Short: "Add a place to favourites, or remove it if already there",
	Args:  cobra.ExactArgs(1),
	RunE:  runFavouritesToggle,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the place list and favourites over HTTP",
	RunE:  runServe,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the place sheet into PostGIS",
	RunE:  runSync,
}

var (
	category       string
	favouritesOnly bool
	numNeighbors   int
	searchRadius   float64
	listenPort     string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Config file path")
	rootCmd.PersistentFlags().Float64Var(&userLat, "lat", 0, "Your latitude")
	rootCmd.PersistentFlags().Float64Var(&userLon, "lon", 0, "Your longitude")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")

	listCmd.Flags().StringVar(&category, "category", "", "Only this category (e.g. Meczet)")
	listCmd.Flags().BoolVarP(&favouritesOnly, "favourites", "f", false, "Only favourite places")

	nearestCmd.Flags().IntVarP(&numNeighbors, "neighbors", "n", 5, "Number of places to show")
	nearestCmd.Flags().Float64VarP(&searchRadius, "radius", "r", 0, "Only places within this many km (0 for no limit)")

	serveCmd.Flags().StringVarP(&listenPort, "port", "p", "", "Listen port (overrides config)")

	favouritesCmd.AddCommand(favouritesListCmd, favouritesToggleCmd)
	rootCmd.AddCommand(listCmd, nearestCmd, favouritesCmd, serveCmd, syncCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
