// Package agenda pages calendar events one month at a time through the query
// cache. Unlike post lists, an empty month does not end the agenda; paging stops
// once the configured horizon of months has been loaded.
package agenda

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/fetcher"
)

// Event is a calendar entry.
type Event struct {
	ID         string    `json:"id"`
	CalendarID string    `json:"calendarId"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Source lists the events starting in [from, to).
type Source interface {
	EventsBetween(ctx context.Context, from, to time.Time) ([]Event, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, from, to time.Time) ([]Event, error)

// EventsBetween calls f.
func (f SourceFunc) EventsBetween(ctx context.Context, from, to time.Time) ([]Event, error) {
	return f(ctx, from, to)
}

// MonthStart truncates t to midnight on the first day of its month, keeping its location.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// Key identifies the agenda of calendarID starting at the month of start.
func Key(calendarID string, start time.Time, horizon int) cache.QueryKey {
	return cache.BuildKey("agenda", calendarID, map[string]any{
		"from":    MonthStart(start).Format("2006-01"),
		"horizon": horizon,
	})
}

// Query builds the month-paged agenda of calendarID. Page params are month
// starts; the first page is the month of start and paging ends after horizon
// months. A horizon below 1 loads a single month.
func Query(calendarID string, src Source, start time.Time, horizon int) cache.Operation {
	if horizon < 1 {
		horizon = 1
	}

	fetch := func(ctx context.Context, param any) ([]Event, error) {
		from, ok := param.(time.Time)
		if !ok {
			return nil, fmt.Errorf("agenda page param must be a time.Time, got %T", param)
		}
		events, err := src.EventsBetween(ctx, from, from.AddDate(0, 1, 0))
		if err != nil {
			return nil, err
		}
		sorted := append([]Event(nil), events...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
		return sorted, nil
	}

	next := func(last cache.Page, pages []cache.Page) (any, bool) {
		if len(pages) >= horizon {
			return nil, false
		}
		month, ok := last.Param.(time.Time)
		if !ok {
			return nil, false
		}
		return month.AddDate(0, 1, 0), true
	}

	return cache.InfiniteQuery(Key(calendarID, start, horizon), MonthStart(start), fetch,
		cache.WithNextPageParam(next),
		cache.KeepEmptyPages(),
		cache.WithName("agenda.month"),
	)
}

// Day groups the events starting on one calendar day.
type Day struct {
	Date   time.Time
	Events []Event
}

// Days groups the loaded events of an agenda entry by start day, in order.
func Days(e cache.Entry) []Day {
	var out []Day
	for _, ev := range cache.ItemsOf[Event](e) {
		y, m, d := ev.Start.Date()
		date := time.Date(y, m, d, 0, 0, 0, 0, ev.Start.Location())
		if n := len(out); n > 0 && out[n-1].Date.Equal(date) {
			out[n-1].Events = append(out[n-1].Events, ev)
			continue
		}
		out = append(out, Day{Date: date, Events: []Event{ev}})
	}
	return out
}

// HTTPSource reads events from GET /calendars/{id}/events?from=...&to=...
type HTTPSource struct {
	Client     *fetcher.Client
	CalendarID string
}

// EventsBetween implements Source.
func (s HTTPSource) EventsBetween(ctx context.Context, from, to time.Time) ([]Event, error) {
	q := url.Values{
		"from": {from.Format(time.RFC3339)},
		"to":   {to.Format(time.RFC3339)},
	}
	var out []Event
	if err := s.Client.Get(ctx, "/calendars/"+url.PathEscape(s.CalendarID)+"/events", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}
