package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/formreports/internal/forms"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fy_year", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"fy_year":{"id":1,"fy_name":"2024-25"}},{"fy_year":null},{"fy_year":{"id":2,"fy_name":"2025-26"}}]`))
	})
	mux.HandleFunc("/month", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"month":{"id":4,"month_name":"April"}}]`))
	})
	mux.HandleFunc("/forms/filter", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-25", r.URL.Query().Get("fy_year"))
		assert.Equal(t, "April", r.URL.Query().Get("month"))
		_, _ = w.Write([]byte(`[
			{"id":7,"date":"03-04-2024","particulars":"Diesel","amount":"1500.50","head_cat":{"head_cat_name":"Fuel"},"sub_cat":null,"departments":{"dept_full_name":"Transport"},"vehicles":{"vehicle_name":"TN-01"},"files":"fuel-7.pdf"},
			{"id":8,"date":"05-04-2024","particulars":"Stationery","amount":320,"files":""}
		]`))
	})
	mux.HandleFunc("/date_filter", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "01-04-2024", r.URL.Query().Get("from_date"))
		assert.Equal(t, "", r.URL.Query().Get("to_date"))
		_, _ = w.Write([]byte(`[{"id":9,"date":"02-04-2024","particulars":"Tyres","amount":null}]`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientOptions(t *testing.T) {
	srv := newBackend(t)
	client := NewClient(srv.URL+"/", time.Second)

	years, err := client.FiscalYears(context.Background())
	require.NoError(t, err)
	require.Len(t, years, 2)
	assert.Equal(t, "2025-26", years[1].Name)

	months, err := client.Months(context.Background())
	require.NoError(t, err)
	require.Equal(t, []forms.Month{{ID: 4, Name: "April"}}, months)
}

func TestClientByPeriodDecodesRecords(t *testing.T) {
	srv := newBackend(t)
	client := NewClient(srv.URL, time.Second)

	records, err := client.ByPeriod(context.Background(), forms.Period{FiscalYear: "2024-25", Month: "April"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "Diesel", first.Particulars)
	assert.True(t, first.Amount.Valid)
	assert.Equal(t, "1500.5", first.Amount.Decimal.String())
	require.NotNil(t, first.HeadCat)
	assert.Equal(t, "Fuel", first.HeadCat.Name)
	assert.Nil(t, first.SubCat)
	assert.Equal(t, "fuel-7.pdf", first.AttachmentName())

	assert.Equal(t, "320", records[1].Amount.Decimal.String())
	assert.Empty(t, records[1].AttachmentName())
}

func TestClientByDateRangeSendsEmptyBound(t *testing.T) {
	srv := newBackend(t)
	client := NewClient(srv.URL, time.Second)

	rng := forms.DateRange{From: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	records, err := client.ByDateRange(context.Background(), rng)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Amount.Valid)
}

func TestClientErrorStatus(t *testing.T) {
	srv := newBackend(t)
	client := NewClient(srv.URL, time.Second).WithEndpoints(Endpoints{FiscalYears: "/broken"})

	_, err := client.FiscalYears(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, forms.ErrUnavailable)
	assert.Contains(t, err.Error(), "500")
}

func TestClientNotConfigured(t *testing.T) {
	client := NewClient("", 0)
	_, err := client.Months(context.Background())
	require.ErrorIs(t, err, forms.ErrUnavailable)
}
