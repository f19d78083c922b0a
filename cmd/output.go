package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/places"
	"github.com/mattn/go-isatty"
)

var (
	// ANSI color codes
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#2E7D32")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))
)

func init() {
	// Disable colors if not in a terminal
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		colorReset = ""
		colorRed = ""
		colorGreen = ""
		colorYellow = ""
		colorCyan = ""
		colorBold = ""
	}
}

// diagnostics go to stderr so --json output stays parseable
var stderr io.Writer = os.Stderr

func printWarning(format string, args ...any) {
	fmt.Fprintf(stderr, "%s%s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printError(format string, args ...any) {
	fmt.Fprintf(stderr, "%s%s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

// formatPlace renders one list row: emoji, name, category, distance and star
func formatPlace(p models.Place, favourite bool) string {
	var b strings.Builder
	b.WriteString(places.StyleFor(p.Category).Emoji)
	b.WriteString(" ")
	b.WriteString(colorBold + p.Name + colorReset)
	if p.Category != "" {
		b.WriteString("  " + colorCyan + p.Category + colorReset)
	}
	if p.Distance != nil {
		if d := *p.Distance; math.IsInf(d, 0) || math.IsNaN(d) {
			b.WriteString(" (? km)")
		} else {
			fmt.Fprintf(&b, " %s(%.1f km)%s", colorGreen, d, colorReset)
		}
	}
	if favourite {
		b.WriteString(" ⭐")
	} else {
		b.WriteString(" ☆")
	}
	if p.Address != "" {
		b.WriteString("\n   " + p.Address)
	}
	return b.String()
}

// printHeader shows the list title and how much of the data it covers
func printHeader(title, summary string) {
	if jsonOutput {
		return
	}
	fmt.Println(titleStyle.Render(title))
	fmt.Println(dimStyle.Render(summary))
	fmt.Println()
}

func printPlaces(list []models.Place, favs models.FavouritesSet) error {
	if jsonOutput {
		return printJSON(list)
	}
	if len(list) == 0 {
		printWarning("No places to show")
		return nil
	}
	for _, p := range list {
		fmt.Println(formatPlace(p, favs.Contains(p.Name)))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
