package endpoints

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/api"
	"github.com/jackzampolin/scanline/internal/svcctx"
)

// EventsResponse lists recent analytics events, oldest first.
type EventsResponse struct {
	Events []analytics.Event `json:"events"`
}

// EventsEndpoint handles GET /api/events.
type EventsEndpoint struct{}

func (e *EventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/events", e.handler
}

func (e *EventsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Recent OCR attempt events
//	@Description	Returns events from the in-memory ring, oldest first
//	@Tags			analytics
//	@Produce		json
//	@Param			limit	query		int		false	"Most recent N events (default all)"
//	@Param			name	query		string	false	"Only events with this name"
//	@Success		200		{object}	EventsResponse
//	@Router			/api/events [get]
func (e *EventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sink := svcctx.EventsFrom(r.Context())
	if sink == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics not initialized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	name := r.URL.Query().Get("name")

	events := sink.Recent(0)
	if name != "" {
		filtered := events[:0]
		for _, ev := range events {
			if ev.Name == name {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []analytics.Event{}
	}

	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

func (e *EventsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var limit int
	var name string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent OCR attempt events",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/events?limit=%d", limit)
			if name != "" {
				path += "&name=" + name
			}
			client := api.NewClient(getServerURL())
			var resp EventsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Most recent N events")
	cmd.Flags().StringVar(&name, "name", "", "Filter by event name, e.g. ocr.failure.compressed")
	return cmd
}
