package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/orb"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stateLabel renders a state in its orb color.
func stateLabel(s cognition.State) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(orb.SatelliteColor(s))).Render(s.String())
}

func header(format string, args ...any) {
	fmt.Println(headerStyle.Render(fmt.Sprintf(format, args...)))
}
