package window

import (
	"context"
	"testing"

	"github.com/Atharva-Kanherkar/echo/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHyprland(t *testing.T) {
	info, err := parseHyprland([]byte(`{"address":"0x1","class":"Slack","title":"Alice | Acme - Slack","pid":42}`))
	require.NoError(t, err)
	assert.Equal(t, "Slack", info.Class)
	assert.Equal(t, "Alice | Acme - Slack", info.Title)

	_, err = parseHyprland([]byte("not json"))
	assert.Error(t, err)
}

func TestParseSwayTree(t *testing.T) {
	tree := `{
		"name": "root", "focused": false,
		"nodes": [{
			"name": "output", "focused": false,
			"nodes": [
				{"name": "term", "focused": false, "app_id": "kitty"},
				{"name": "main.go - echo - Visual Studio Code", "focused": false, "nodes": [],
				 "floating_nodes": [{"name": "Chat with Bob | Microsoft Teams", "focused": true,
				   "window_properties": {"class": "Microsoft Teams"}}]}
			]
		}]
	}`
	info, err := parseSwayTree([]byte(tree))
	require.NoError(t, err)
	assert.Equal(t, "Microsoft Teams", info.Class)
	assert.Equal(t, "Chat with Bob | Microsoft Teams", info.Title)

	_, err = parseSwayTree([]byte(`{"name":"root","focused":false}`))
	assert.Error(t, err)
}

func TestInfoApp(t *testing.T) {
	assert.Equal(t, "code", Info{Class: "code", Title: "x"}.App())
	assert.Equal(t, "x", Info{Title: "x"}.App())
}

func TestActiveUnsupported(t *testing.T) {
	c := New(&platform.Platform{DisplayServer: platform.DisplayServerUnknown})
	assert.False(t, c.Available())
	_, err := c.Active(context.Background())
	assert.Error(t, err)
}
