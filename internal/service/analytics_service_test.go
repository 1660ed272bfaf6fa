package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-platform/internal/clock"
	"github.com/iliyamo/ticketing-platform/internal/model"
	"github.com/iliyamo/ticketing-platform/internal/repository"
)

type memViews struct {
	keys []string
	at   []time.Time
}

func (m *memViews) Record(ctx context.Context, eventID uint64, viewerKey string, at time.Time) error {
	m.keys = append(m.keys, viewerKey)
	m.at = append(m.at, at)
	return nil
}

func (m *memViews) TimestampsSince(ctx context.Context, eventID uint64, since time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, ts := range m.at {
		if !ts.Before(since) {
			out = append(out, ts)
		}
	}
	return out, nil
}

type fixedSales repository.EventSales

func (f fixedSales) SalesByEvent(ctx context.Context, eventID uint64) (repository.EventSales, error) {
	return repository.EventSales(f), nil
}

type fixedCheckins int64

func (f fixedCheckins) CheckedInByEvent(ctx context.Context, eventID uint64) (int64, error) {
	return int64(f), nil
}

type ownedEvents map[uint64]model.Event

func (o ownedEvents) GetByIDAndOrganizer(ctx context.Context, id, organizerID uint64) (model.Event, error) {
	ev, ok := o[id]
	if !ok || ev.OrganizerID != organizerID {
		return model.Event{}, repository.ErrEventNotFound
	}
	return ev, nil
}

func TestViewerKeyHidesIdentity(t *testing.T) {
	k := ViewerKey("203.0.113.7")
	assert.Len(t, k, 32)
	assert.NotContains(t, k, "203")
	assert.Equal(t, k, ViewerKey("203.0.113.7"))
	assert.NotEqual(t, k, ViewerKey("203.0.113.8"))
}

func TestEventReport(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC))
	views := &memViews{}
	svc := NewAnalyticsService(
		ownedEvents{1: {ID: 1, OrganizerID: 50}},
		views,
		fixedSales{Orders: 3, TicketsSold: 5, RevenueCents: 25000},
		fixedCheckins(2),
		clk,
	)
	ctx := context.Background()

	require.NoError(t, svc.RecordView(ctx, 1, "a"))
	require.NoError(t, svc.RecordView(ctx, 1, "b"))
	clk.Advance(-48 * time.Hour)
	require.NoError(t, svc.RecordView(ctx, 1, "a"))
	clk.Advance(48 * time.Hour)

	rep, err := svc.EventReport(ctx, 50, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, rep.Days)
	require.Len(t, rep.Daily, 7)
	assert.Equal(t, "2026-03-10", rep.Daily[6].Date)
	assert.Equal(t, 2, rep.Daily[6].Views)
	assert.Equal(t, 1, rep.Daily[4].Views)
	assert.Equal(t, 3, rep.Views)
	assert.Equal(t, int64(25000), rep.RevenueCents)
	assert.Equal(t, int64(2), rep.CheckedIn)

	rep, err = svc.EventReport(ctx, 50, 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, 90, rep.Days)

	_, err = svc.EventReport(ctx, 51, 1, 7)
	assert.ErrorIs(t, err, repository.ErrEventNotFound)
}
