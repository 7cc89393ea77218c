package reportshttp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/formreports/internal/forms"
	"github.com/odyssey-erp/formreports/internal/reports"
	"github.com/odyssey-erp/formreports/internal/shared"
	"github.com/odyssey-erp/formreports/internal/view"
)

type stubReports struct {
	options      reports.Options
	optionsErr   error
	result       reports.Result
	err          error
	listing      reports.Listing
	periods      []forms.Period
	ranges       []forms.DateRange
	summaryCalls int
	consolCalls  int
}

func (s *stubReports) Options(ctx context.Context) (reports.Options, error) {
	return s.options, s.optionsErr
}

func (s *stubReports) Summary(ctx context.Context, period forms.Period) (reports.Result, error) {
	s.summaryCalls++
	s.periods = append(s.periods, period)
	return s.result, s.err
}

func (s *stubReports) Consolidated(ctx context.Context, period forms.Period) (reports.Result, error) {
	s.consolCalls++
	s.periods = append(s.periods, period)
	return s.result, s.err
}

func (s *stubReports) Filter(ctx context.Context, rng forms.DateRange) (reports.Listing, error) {
	s.ranges = append(s.ranges, rng)
	return s.listing, s.err
}

type stubPacks struct {
	pack       reports.Pack
	err        error
	requested  []forms.Period
	readyError error
}

func (s *stubPacks) Request(ctx context.Context, period forms.Period) (reports.Pack, error) {
	s.requested = append(s.requested, period)
	return s.pack, s.err
}

func (s *stubPacks) Get(ctx context.Context, id string) (reports.Pack, error) {
	if id != s.pack.ID {
		return reports.Pack{}, reports.ErrPackNotFound
	}
	return s.pack, nil
}

func (s *stubPacks) Ready(ctx context.Context, id string) (reports.Pack, error) {
	pack, err := s.Get(ctx, id)
	if err != nil {
		return reports.Pack{}, err
	}
	return pack, s.readyError
}

func sampleOptions() reports.Options {
	return reports.Options{
		FiscalYears: []forms.FiscalYear{{ID: 1, Name: "2023-24"}, {ID: 2, Name: "2024-25"}},
		Months:      []forms.Month{{ID: 4, Name: "April"}, {ID: 5, Name: "May"}},
	}
}

type harness struct {
	router  http.Handler
	session *shared.Session
}

func newHarness(t *testing.T, svc *stubReports, opts ...Option) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	templates, err := view.NewEngine()
	require.NoError(t, err)

	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, svc, templates, shared.NewCSRFManager("csrfsecret"), opts...)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	handler.MountRoutes(router)
	return &harness{router: router, session: sess}
}

func (h *harness) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	return h.send(method, target, form, nil)
}

// script posts the way the page script does.
func (h *harness) script(target string, form url.Values) *httptest.ResponseRecorder {
	return h.send(http.MethodPost, target, form, http.Header{ScriptedHeader: {"fetch"}})
}

func (h *harness) send(method, target string, form url.Values, header http.Header) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func TestShowScreenRendersOptionsAndStickySelection(t *testing.T) {
	h := newHarness(t, &stubReports{options: sampleOptions()})
	h.session.Set(keySummaryFyYear, "2024-25")

	rr := h.do(http.MethodGet, "/reports", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "SUMMARY")
	assert.Contains(t, body, "CONSOLIDATE")
	assert.Contains(t, body, "FILTER")
	assert.Contains(t, body, `<option value="2024-25" selected>`)
	assert.Contains(t, body, `<option value="April">`)
	assert.NotContains(t, body, "Queue in background")
}

func TestShowScreenSurvivesOptionFailure(t *testing.T) {
	h := newHarness(t, &stubReports{optionsErr: forms.ErrUnavailable})

	rr := h.do(http.MethodGet, "/reports", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "2023-24")
}

func TestSummaryValidationSkipsGeneration(t *testing.T) {
	svc := &stubReports{options: sampleOptions()}
	h := newHarness(t, svc)

	rr := h.do(http.MethodPost, "/reports/summary", url.Values{"fy_year": {""}, "month": {""}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Fy Year is required")
	assert.Contains(t, body, "Month is required")
	assert.Contains(t, body, "Please fill in all required fields for Summary.")
	assert.Contains(t, body, `data-autohide="3000"`)
	assert.Zero(t, svc.summaryCalls)
}

func TestConsolidateValidationReportsMissingMonthOnly(t *testing.T) {
	svc := &stubReports{options: sampleOptions()}
	h := newHarness(t, svc)

	rr := h.do(http.MethodPost, "/reports/consolidate", url.Values{"fy_year": {"2023-24"}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := rr.Body.String()
	assert.NotContains(t, body, "Fy Year is required")
	assert.Contains(t, body, "Month is required")
	assert.Contains(t, body, "Please fill in all required fields for Consolidation.")
	assert.Zero(t, svc.consolCalls)
	assert.Equal(t, "2023-24", h.session.Get(keyConsolidateFyYear))
}

func TestSummarySuccessStreamsPDF(t *testing.T) {
	svc := &stubReports{result: reports.Result{
		Kind:     reports.KindSummary,
		Filename: reports.SummaryFilename,
		PDF:      []byte("%PDF-summary"),
	}}
	h := newHarness(t, svc)

	rr := h.do(http.MethodPost, "/reports/summary", url.Values{"fy_year": {"2023-24"}, "month": {"April"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "summary-report.pdf")
	assert.Equal(t, "%PDF-summary", rr.Body.String())
	require.Len(t, svc.periods, 1)
	assert.Equal(t, forms.Period{FiscalYear: "2023-24", Month: "April"}, svc.periods[0])

	assert.Empty(t, h.session.Get(keySummaryFyYear))
	assert.Empty(t, h.session.Get(keySummaryMonth))
	flash := h.session.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashSuccess, flash.Kind)
	assert.Equal(t, "Summary PDF generated successfully.", flash.Message)
}

func TestConsolidateSuccessReportsWarnings(t *testing.T) {
	svc := &stubReports{result: reports.Result{
		Kind:     reports.KindConsolidated,
		Filename: reports.ConsolidatedFilename,
		PDF:      []byte("%PDF-merged"),
		Warnings: []string{"attachment a.pdf not found", "attachment b.pdf not found"},
	}}
	h := newHarness(t, svc)

	rr := h.do(http.MethodPost, "/reports/consolidate", url.Values{"fy_year": {"2023-24"}, "month": {"April"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "consolidated-report.pdf")
	assert.Equal(t, "2", rr.Header().Get(WarningsHeader))
	flash := h.session.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Consolidation PDF generated successfully.", flash.Message)
}

func TestConsolidateFailureRedirectsWithError(t *testing.T) {
	svc := &stubReports{err: errors.New("merge failed")}
	h := newHarness(t, svc)
	h.session.Set(keyConsolidateFyYear, "2023-24")

	rr := h.do(http.MethodPost, "/reports/consolidate", url.Values{"fy_year": {"2023-24"}, "month": {"April"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/reports", rr.Header().Get("Location"))
	assert.Equal(t, "2023-24", h.session.Get(keyConsolidateFyYear))
	flash := h.session.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashError, flash.Kind)
	assert.Equal(t, "Error generating Consolidation PDF.", flash.Message)
}

func TestFilterRendersRows(t *testing.T) {
	svc := &stubReports{listing: reports.Listing{Rows: []reports.Row{
		{Serial: 1, Date: "03-04-2023", Particulars: "Diesel refill", Amount: "1,250.00"},
	}}}
	h := newHarness(t, svc)

	rr := h.do(http.MethodGet, "/reports/filter?from=2023-04-01&to=2023-04-30", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Diesel refill")
	assert.Contains(t, body, "1,250.00")
	require.Len(t, svc.ranges, 1)
	assert.Equal(t, "01-04-2023", svc.ranges[0].FromParam())
	assert.Equal(t, "30-04-2023", svc.ranges[0].ToParam())
	assert.Equal(t, "2023-04-01", h.session.Get(keyFilterFrom))
}

func TestFilterAllowsOpenBounds(t *testing.T) {
	svc := &stubReports{}
	h := newHarness(t, svc)

	rr := h.do(http.MethodGet, "/reports/filter?to=2023-04-30", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.ranges, 1)
	assert.Empty(t, svc.ranges[0].FromParam())
	assert.Contains(t, rr.Body.String(), "No forms in this range.")
}

func TestFilterRejectsBadRanges(t *testing.T) {
	svc := &stubReports{}
	h := newHarness(t, svc)

	rr := h.do(http.MethodGet, "/reports/filter?from=2023-05-01&to=2023-04-01", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "To date must not be before from date")

	rr = h.do(http.MethodGet, "/reports/filter?from=31-12-2023", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "From date is not a valid date")
	assert.Empty(t, svc.ranges)
}

func TestClearRoutesResetSelections(t *testing.T) {
	h := newHarness(t, &stubReports{})
	h.session.Set(keySummaryFyYear, "2023-24")
	h.session.Set(keySummaryMonth, "April")
	h.session.Set(keyFilterFrom, "2023-04-01")

	rr := h.do(http.MethodPost, "/reports/summary/clear", url.Values{})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Empty(t, h.session.Get(keySummaryFyYear))
	assert.Empty(t, h.session.Get(keySummaryMonth))
	assert.Equal(t, "2023-04-01", h.session.Get(keyFilterFrom))

	h.do(http.MethodPost, "/reports/filter/clear", url.Values{})
	assert.Empty(t, h.session.Get(keyFilterFrom))
}

func TestOptionsJSON(t *testing.T) {
	h := newHarness(t, &stubReports{options: sampleOptions()})

	rr := h.do(http.MethodGet, "/reports/options", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{
		"fy_years": [{"id": 1, "fy_name": "2023-24"}, {"id": 2, "fy_name": "2024-25"}],
		"months": [{"id": 4, "month_name": "April"}, {"id": 5, "month_name": "May"}]
	}`, rr.Body.String())

	h = newHarness(t, &stubReports{optionsErr: forms.ErrUnavailable})
	rr = h.do(http.MethodGet, "/reports/options", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestQueueConsolidatedRedirectsToPack(t *testing.T) {
	packs := &stubPacks{pack: reports.Pack{ID: "pack-1", Status: reports.PackPending}}
	h := newHarness(t, &stubReports{options: sampleOptions()}, WithPacks(packs))

	rr := h.do(http.MethodGet, "/reports", nil)
	assert.Contains(t, rr.Body.String(), "Queue in background")

	rr = h.do(http.MethodPost, "/reports/consolidate/queue", url.Values{"fy_year": {"2023-24"}, "month": {"April"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/reports/packs/pack-1", rr.Header().Get("Location"))
	require.Len(t, packs.requested, 1)

	rr = h.do(http.MethodGet, "/reports/packs/pack-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Consolidation queued.")
	assert.Contains(t, rr.Body.String(), "PENDING")

	rr = h.do(http.MethodGet, "/reports/packs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQueueValidatesSelection(t *testing.T) {
	packs := &stubPacks{}
	h := newHarness(t, &stubReports{}, WithPacks(packs))

	rr := h.do(http.MethodPost, "/reports/consolidate/queue", url.Values{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, packs.requested)
}

func TestDownloadPack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consolidated-pack-1.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-pack"), 0o600))
	packs := &stubPacks{
		pack:       reports.Pack{ID: "pack-1", Status: reports.PackInProgress},
		readyError: reports.ErrPackNotReady,
	}
	h := newHarness(t, &stubReports{}, WithPacks(packs))

	rr := h.do(http.MethodGet, "/reports/packs/pack-1/download", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	packs.pack = reports.Pack{ID: "pack-1", Status: reports.PackReady, FilePath: path, Warnings: []string{"missing"}}
	packs.readyError = nil
	rr = h.do(http.MethodGet, "/reports/packs/pack-1/download", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "%PDF-pack", rr.Body.String())
	assert.Equal(t, "1", rr.Header().Get(WarningsHeader))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".pdf")
}

func TestGenerationIsRateLimitedPerSession(t *testing.T) {
	svc := &stubReports{result: reports.Result{Filename: reports.SummaryFilename, PDF: []byte("%PDF")}}
	h := newHarness(t, svc, WithGenerationLimit(2))

	form := url.Values{"fy_year": {"2023-24"}, "month": {"April"}}
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/reports/summary", form).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/reports/summary", form).Code)
	rr := h.do(http.MethodPost, "/reports/summary", form)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), rateLimitMessage)
	assert.Contains(t, rr.Body.String(), `class="flash flash-error"`)
	assert.Equal(t, 2, svc.summaryCalls)
}

func TestScriptedValidationKeepsErrorsOnReturnedPage(t *testing.T) {
	svc := &stubReports{options: sampleOptions()}
	h := newHarness(t, svc)

	rr := h.script("/reports/summary", url.Values{"fy_year": {""}, "month": {""}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	body := rr.Body.String()
	assert.Contains(t, body, `<p class="field-error">Fy Year is required</p>`)
	assert.Contains(t, body, `<p class="field-error">Month is required</p>`)
	assert.Contains(t, body, "Please fill in all required fields for Summary.")
	assert.Zero(t, svc.summaryCalls)

	// the script shows this page as-is, so nothing is left queued for later
	assert.Nil(t, h.session.PopFlash())
}

func TestScriptedFailureRendersNotificationInline(t *testing.T) {
	svc := &stubReports{options: sampleOptions(), err: errors.New("backend down")}
	h := newHarness(t, svc)

	rr := h.script("/reports/summary", url.Values{"fy_year": {"2023-24"}, "month": {"April"}})
	require.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Empty(t, rr.Header().Get("Location"))
	body := rr.Body.String()
	assert.Contains(t, body, `class="flash flash-error"`)
	assert.Contains(t, body, "Error generating Summary PDF.")
	assert.Contains(t, body, `<option value="2023-24" selected>`)

	next := h.do(http.MethodGet, "/reports", nil)
	require.Equal(t, http.StatusOK, next.Code)
	assert.NotContains(t, next.Body.String(), "Error generating Summary PDF.")
}

func TestPlainFailureShowsNotificationAfterRedirect(t *testing.T) {
	svc := &stubReports{options: sampleOptions(), err: errors.New("backend down")}
	h := newHarness(t, svc)

	rr := h.do(http.MethodPost, "/reports/summary", url.Values{"fy_year": {"2023-24"}, "month": {"April"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	followed := h.do(http.MethodGet, rr.Header().Get("Location"), nil)
	assert.Contains(t, followed.Body.String(), "Error generating Summary PDF.")
	again := h.do(http.MethodGet, "/reports", nil)
	assert.NotContains(t, again.Body.String(), "Error generating Summary PDF.")
}

func TestSelectionAcceptsMultipartForms(t *testing.T) {
	svc := &stubReports{result: reports.Result{Filename: reports.SummaryFilename, PDF: []byte("%PDF")}}
	h := newHarness(t, svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("fy_year", "2023-24"))
	require.NoError(t, mw.WriteField("month", "April"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/reports/summary", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.periods, 1)
	assert.Equal(t, forms.Period{FiscalYear: "2023-24", Month: "April"}, svc.periods[0])
}
