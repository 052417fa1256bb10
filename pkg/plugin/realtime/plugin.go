package realtime

import (
	"os"

	"github.com/cadencevoice/duplex-go/pkg/plugin"
)

func newTranscriber(cfg map[string]any) (any, error) {
	c := Config{}
	if u, ok := cfg["url"].(string); ok {
		c.URL = u
	} else {
		c.URL = os.Getenv("DUPLEX_REALTIME_URL")
	}
	if tok, ok := cfg["token"].(string); ok {
		c.Token = tok
	} else {
		c.Token = os.Getenv("DUPLEX_REALTIME_TOKEN")
	}
	return NewTranscriber(c)
}

func init() {
	plugin.RegisterProvider(&plugin.Provider{
		Kind:        plugin.KindTranscriber,
		Name:        "realtime",
		Factory:     newTranscriber,
		Description: "Websocket gateway transcription with partial results",
		Version:     "1.0.0",
		Config: map[string]any{
			"url":   "gateway websocket URL (or DUPLEX_REALTIME_URL)",
			"token": "bearer token (or DUPLEX_REALTIME_TOKEN)",
		},
	})
}
