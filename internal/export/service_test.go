package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/transform"
)

var fixedNow = func() time.Time { return time.Date(2024, 5, 1, 13, 4, 5, 0, time.FixedZone("PDT", -7*3600)) }

func trips(t *testing.T, raws ...string) []domain.TripRecord {
	t.Helper()
	out := make([]domain.TripRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := domain.ParseRecord([]byte(raw))
		require.NoError(t, err)
		out = append(out, domain.NewTripRecord(rec))
	}
	return out
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestProcessWritesOneFilePerKindWithRows(t *testing.T) {
	dir := t.TempDir()
	service := NewService(transform.NewPipeline(domain.Profile{}), nil, WithExportDirectory(dir), WithClock(fixedNow))

	result, err := service.Process(context.Background(), trips(t,
		`{"id": 1, "status": "Active", "customer_mobility_factors": ["cane", "walker"], "trip_claims": [{"id": 10, "status": "pending"}], "trip_ticket_comments": [], "trip_result": {}}`,
		`{"id": 2, "status": "Active", "trip_claims": [], "trip_result": {"id": 5, "outcome": "Completed"}}`,
	))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "trip_tickets.2024-05-01.200405.csv"),
		filepath.Join(dir, "trip_claims.2024-05-01.200405.csv"),
		filepath.Join(dir, "trip_results.2024-05-01.200405.csv"),
	}, result.Files)
	assert.Equal(t, 2, result.Rows[domain.KindTripTicket])
	assert.Equal(t, 0, result.Rows[domain.KindTripComment])

	_, err = os.Stat(filepath.Join(dir, "trip_ticket_comments.2024-05-01.200405.csv"))
	assert.True(t, os.IsNotExist(err), "kinds without rows produce no file")

	tickets := readCSV(t, result.Files[0])
	assert.Equal(t, [][]string{
		{"id", "status", "customer_mobility_factors_1", "customer_mobility_factors_2"},
		{"1", "Active", "cane", "walker"},
		{"2", "Active", "", ""},
	}, tickets)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "temp files must not be left behind")
}

func TestProcessSkipsTicketsWithOnlyAnID(t *testing.T) {
	dir := t.TempDir()
	service := NewService(transform.NewPipeline(domain.Profile{}), nil, WithExportDirectory(dir), WithClock(fixedNow))

	result, err := service.Process(context.Background(), trips(t,
		`{"id": 1, "trip_claims": [{"id": 10}]}`,
	))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "trip_claims.2024-05-01.200405.csv")}, result.Files)
}

func TestProcessNothingToExport(t *testing.T) {
	dir := t.TempDir()
	service := NewService(transform.NewPipeline(domain.Profile{}), nil, WithExportDirectory(dir))

	result, err := service.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Files)
}

func TestProcessRequiresExistingFolder(t *testing.T) {
	service := NewService(transform.NewPipeline(domain.Profile{}), nil)
	_, err := service.Process(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	service = NewService(transform.NewPipeline(domain.Profile{}), nil, WithExportDirectory(filepath.Join(t.TempDir(), "missing")))
	_, err = service.Process(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.True(t, domain.IsForeseen(err))
}

func TestProcessAppliesMappingAndNormalization(t *testing.T) {
	dir := t.TempDir()
	profile := domain.Profile{
		Mappings: map[domain.EntityKind]domain.MappingTable{
			domain.KindTripTicket: {{Target: "customer_sex", Source: "customer_gender"}},
		},
		Normalizations: map[domain.EntityKind]domain.NormalizationRuleSet{
			domain.KindTripTicket: {{
				Field:       "customer_sex",
				OutputField: "gender",
				Rules:       []domain.NormalizationRule{{Replacement: "Male", Match: domain.MatchSpec{Values: []string{"m"}}}},
			}},
		},
	}
	service := NewService(transform.NewPipeline(profile), nil, WithExportDirectory(dir), WithClock(fixedNow))

	result, err := service.Process(context.Background(), trips(t, `{"id": 1, "customer_gender": "M"}`))
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, [][]string{
		{"id", "customer_sex", "gender"},
		{"1", "M", "Male"},
	}, readCSV(t, result.Files[0]))
}

func TestProcessWritesXLSX(t *testing.T) {
	dir := t.TempDir()
	service := NewService(transform.NewPipeline(domain.Profile{}), nil, WithExportDirectory(dir), WithClock(fixedNow), WithFormat(FormatXLSX))

	result, err := service.Process(context.Background(), trips(t, `{"id": 1, "status": "Active"}`))
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "trip_tickets.2024-05-01.200405.xlsx")}, result.Files)

	book, err := excelize.OpenFile(result.Files[0])
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("trip_tickets")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "status"}, {"1", "Active"}}, rows)
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)
	format, err = ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, format)
	_, err = ParseFormat("json")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSplitTripsPlucksAssociations(t *testing.T) {
	batches := SplitTrips(trips(t,
		`{"id": 1, "status": "x", "trip_claims": [{"id": 1}, {"id": 2}], "trip_ticket_comments": [{"id": 3}], "trip_result": {"id": 4}}`,
	))
	require.Len(t, batches[domain.KindTripTicket], 1)
	assert.Equal(t, []string{"id", "status"}, batches[domain.KindTripTicket][0].Keys())
	assert.Len(t, batches[domain.KindTripClaim], 2)
	assert.Len(t, batches[domain.KindTripComment], 1)
	assert.Len(t, batches[domain.KindTripResult], 1)
}
