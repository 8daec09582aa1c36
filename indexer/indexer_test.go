package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"offerkiosk/core/events"
	"offerkiosk/core/types"
)

type wireEvent struct{ evt *types.Event }

func (w wireEvent) EventType() string   { return w.evt.Type }
func (w wireEvent) Event() *types.Event { return w.evt }

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func openTestSink(t *testing.T) *Sink {
	t.Helper()
	sink, err := Open(filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, sink.Close()) })
	return sink
}

func kioskEvent(typ, kioskID, assetID, amount string) events.Event {
	attrs := map[string]string{"kioskId": kioskID, "timestamp": "1700000000"}
	if assetID != "" {
		attrs["assetId"] = assetID
	}
	if amount != "" {
		attrs["amount"] = amount
	}
	return wireEvent{evt: &types.Event{Type: typ, Attributes: attrs}}
}

func TestSinkRecordsAndFilters(t *testing.T) {
	sink := openTestSink(t)

	sink.Emit(kioskEvent("kiosk.created", "aa", "", ""))
	sink.Emit(kioskEvent("kiosk.offer.placed", "aa", "01", "100"))
	sink.Emit(kioskEvent("kiosk.offer.placed", "bb", "02", "7"))
	sink.Emit(kioskEvent("kiosk.offer.accepted", "aa", "01", "100"))
	sink.Emit(bareEvent{})

	all, err := sink.List(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	byKiosk, err := sink.List(context.Background(), Query{KioskID: "AA"})
	require.NoError(t, err)
	require.Len(t, byKiosk, 3)
	require.Equal(t, "kiosk.created", byKiosk[0].Type)
	require.Equal(t, "kiosk.offer.accepted", byKiosk[2].Type)
	require.Equal(t, int64(1700000000), byKiosk[2].Timestamp)

	attrs, err := byKiosk[1].Decode()
	require.NoError(t, err)
	require.Equal(t, "100", attrs["amount"])

	placed, err := sink.List(context.Background(), Query{Type: "kiosk.offer.placed"})
	require.NoError(t, err)
	require.Len(t, placed, 2)

	page, err := sink.List(context.Background(), Query{KioskID: "aa", AfterID: byKiosk[0].ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, byKiosk[1].ID, page[0].ID)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", nil)
	require.Error(t, err)
}

func TestSinkInMemory(t *testing.T) {
	sink, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.Record(&types.Event{Type: "kiosk.closed", Attributes: map[string]string{"kioskId": "cc"}}))
	out, err := sink.List(context.Background(), Query{KioskID: "cc"})
	require.NoError(t, err)
	require.Len(t, out, 1)
}
