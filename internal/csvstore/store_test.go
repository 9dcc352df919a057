package csvstore

import (
	"os"
	"path/filepath"
	"testing"
	"trbowatch/internal/components/telemetry"
	"trbowatch/internal/roster"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, contents string) (Store, *telemetry.RecordingAPI) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "code_plug.csv")
	if contents != "" {
		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	}
	rec := telemetry.NewRecordingAPI()
	return New(path, rec), rec
}

func TestLoadMissingFile(t *testing.T) {
	store, _ := newStore(t, "")
	users, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, users)

	keys, err := store.Keys()
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestLoad(t *testing.T) {
	store, rec := newStore(t, "STATE,RADIO_ID,CALLSIGN,FIRST_NAME\nAZ,1001,KX1AA,Alice\nNM,2002.0,KX1BB,Bob\n,oops,,\n,,,\n")

	users, err := store.Load()
	require.NoError(t, err)

	expected := []roster.User{
		{RadioID: 1001, Callsign: "KX1AA", FirstName: "Alice", State: "AZ"},
		{RadioID: 2002, Callsign: "KX1BB", FirstName: "Bob", State: "NM"},
	}
	if diff := cmp.Diff(expected, users); diff != "" {
		t.Fatalf("loaded users (-want +got):\n%s", diff)
	}
	require.Len(t, rec.WarningsFor(report_store_load), 1)
}

func TestLoadRequiresRadioIDColumn(t *testing.T) {
	store, _ := newStore(t, "CALLSIGN\nKX1AA\n")
	_, err := store.Load()
	require.Error(t, err)
}

func TestAppendCreatesFileWithHeader(t *testing.T) {
	store, _ := newStore(t, "")

	written, err := store.Append([]roster.User{
		{RadioID: 2002, Callsign: "KX1BB", FirstName: "Bob", State: "NM"},
		{RadioID: 3003},
	})
	require.NoError(t, err)
	require.Len(t, written, 2)

	contents, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.Equal(t, "RADIO_ID,CALLSIGN,FIRST_NAME,STATE\n2002,KX1BB,Bob,NM\n3003,,,\n", string(contents))
}

func TestAppendSkipsExistingAndBatchDuplicates(t *testing.T) {
	store, _ := newStore(t, "RADIO_ID,CALLSIGN,FIRST_NAME,STATE\n1001,KX1AA,Alice,AZ\n")

	written, err := store.Append([]roster.User{
		{RadioID: 1001, Callsign: "CHANGED"},
		{RadioID: 2002, Callsign: "KX1BB"},
		{RadioID: 2002, Callsign: "DUPLICATE"},
	})
	require.NoError(t, err)
	require.Equal(t, []roster.User{{RadioID: 2002, Callsign: "KX1BB"}}, written)

	users, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, []roster.User{
		{RadioID: 1001, Callsign: "KX1AA", FirstName: "Alice", State: "AZ"},
		{RadioID: 2002, Callsign: "KX1BB"},
	}, users)

	// a second run with the same input writes nothing
	written, err = store.Append([]roster.User{{RadioID: 2002}, {RadioID: 1001}})
	require.NoError(t, err)
	require.Empty(t, written)
}

func TestAppendWithoutTrailingNewline(t *testing.T) {
	store, _ := newStore(t, "RADIO_ID,CALLSIGN,FIRST_NAME,STATE\n1001,KX1AA,Alice,AZ")

	_, err := store.Append([]roster.User{{RadioID: 2002, Callsign: "KX1BB", FirstName: "Bob", State: "NM"}})
	require.NoError(t, err)

	contents, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.Equal(t, "RADIO_ID,CALLSIGN,FIRST_NAME,STATE\n1001,KX1AA,Alice,AZ\n2002,KX1BB,Bob,NM\n", string(contents))
}

func TestAppendFollowsExistingHeaderOrder(t *testing.T) {
	store, _ := newStore(t, "CALLSIGN,RADIO_ID,NOTES\nKX1AA,1001,net control\n")

	written, err := store.Append([]roster.User{{RadioID: 3003, Callsign: "KX1CC", FirstName: "Carol", State: "AZ"}})
	require.NoError(t, err)
	require.Len(t, written, 1)

	contents, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.Equal(t, "CALLSIGN,RADIO_ID,NOTES\nKX1AA,1001,net control\nKX1CC,3003,\n", string(contents))

	keys, err := store.Keys()
	require.NoError(t, err)
	require.Equal(t, roster.NewIDSet(1001, 3003), keys)

	written, err = store.Append([]roster.User{{RadioID: 3003, Callsign: "KX1CC"}})
	require.NoError(t, err)
	require.Empty(t, written)
}

func TestNewRequiresPath(t *testing.T) {
	require.Panics(t, func() {
		New("", telemetry.NewRecordingAPI())
	})
}
