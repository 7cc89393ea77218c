// Package reportshttp serves the report screen and its generation endpoints.
package reportshttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/formreports/internal/forms"
	"github.com/odyssey-erp/formreports/internal/platform/httpx"
	"github.com/odyssey-erp/formreports/internal/reports"
	"github.com/odyssey-erp/formreports/internal/shared"
	"github.com/odyssey-erp/formreports/internal/view"
)

// ReportService is the report behaviour the screen depends on.
type ReportService interface {
	Options(ctx context.Context) (reports.Options, error)
	Summary(ctx context.Context, period forms.Period) (reports.Result, error)
	Consolidated(ctx context.Context, period forms.Period) (reports.Result, error)
	Filter(ctx context.Context, rng forms.DateRange) (reports.Listing, error)
}

// PackService queues consolidated reports for background assembly.
type PackService interface {
	Request(ctx context.Context, period forms.Period) (reports.Pack, error)
	Get(ctx context.Context, id string) (reports.Pack, error)
	Ready(ctx context.Context, id string) (reports.Pack, error)
}

// Session keys holding the screen selections between requests.
const (
	keySummaryFyYear     = "reports.summary.fy_year"
	keySummaryMonth      = "reports.summary.month"
	keyConsolidateFyYear = "reports.consolidate.fy_year"
	keyConsolidateMonth  = "reports.consolidate.month"
	keyFilterFrom        = "reports.filter.from"
	keyFilterTo          = "reports.filter.to"
)

// maxFormMemory bounds multipart selection forms.
const maxFormMemory = 1 << 20

// inputDateLayout is the format of <input type="date"> values.
const inputDateLayout = "2006-01-02"

// WarningsHeader carries the number of skipped attachments.
const WarningsHeader = "X-Report-Warnings"

// ScriptedHeader marks generation requests sent by the page script. Those get
// the screen back inline instead of a redirect, since the script replaces the
// document with whatever HTML it receives.
const ScriptedHeader = "X-Requested-With"

const (
	scriptedValue    = "fetch"
	rateLimitMessage = "Too many report requests. Please wait a minute and try again."
)

// Handler wires the report screen routes.
type Handler struct {
	logger    *slog.Logger
	service   ReportService
	packs     PackService
	templates *view.Engine
	csrf      *shared.CSRFManager
	validator *validator.Validate
	limit     int
}

// Option customises a Handler.
type Option func(*Handler)

// WithPacks enables background consolidation.
func WithPacks(packs PackService) Option {
	return func(h *Handler) { h.packs = packs }
}

// WithGenerationLimit sets the per-session generation requests allowed per
// minute. Zero disables the limiter.
func WithGenerationLimit(perMinute int) Option {
	return func(h *Handler) { h.limit = perMinute }
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service ReportService, templates *view.Engine, csrf *shared.CSRFManager, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		validator: validator.New(),
		limit:     10,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MountRoutes registers the report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.showScreen)
		r.Get("/options", h.options)
		r.Get("/filter", h.filter)
		r.Post("/summary/clear", h.clear(keySummaryFyYear, keySummaryMonth))
		r.Post("/consolidate/clear", h.clear(keyConsolidateFyYear, keyConsolidateMonth))
		r.Post("/filter/clear", h.clear(keyFilterFrom, keyFilterTo))

		r.Group(func(r chi.Router) {
			if h.limit > 0 {
				r.Use(httprate.Limit(h.limit, time.Minute,
					httprate.WithKeyFuncs(sessionKey),
					httprate.WithLimitHandler(h.tooManyRequests)))
			}
			r.Post("/summary", h.generateSummary)
			r.Post("/consolidate", h.generateConsolidated)
			if h.packs != nil {
				r.Post("/consolidate/queue", h.queueConsolidated)
			}
		})

		if h.packs != nil {
			r.Get("/packs/{id}", h.showPack)
			r.Get("/packs/{id}/download", h.downloadPack)
		}
	})
}

type selection struct {
	FiscalYear string
	Month      string
}

type filterState struct {
	From     string
	To       string
	Searched bool
	Rows     []reports.Row
}

type screenData struct {
	Options      reports.Options
	Summary      selection
	Consolidate  selection
	Filter       filterState
	Errors       map[string]string
	QueueEnabled bool
}

// selectionForm is a submitted fiscal year + month pair.
type selectionForm struct {
	FiscalYear string `validate:"required"`
	Month      string `validate:"required"`
}

// panel describes one generation panel of the screen.
type panel struct {
	name       string
	fyKey      string
	monthKey   string
	errPrefix  string
	incomplete string
	success    string
	failure    string
}

var (
	summaryPanel = panel{
		name:       "summary",
		fyKey:      keySummaryFyYear,
		monthKey:   keySummaryMonth,
		errPrefix:  "summary",
		incomplete: "Please fill in all required fields for Summary.",
		success:    "Summary PDF generated successfully.",
		failure:    "Error generating Summary PDF.",
	}
	consolidatePanel = panel{
		name:       "consolidate",
		fyKey:      keyConsolidateFyYear,
		monthKey:   keyConsolidateMonth,
		errPrefix:  "consolidate",
		incomplete: "Please fill in all required fields for Consolidation.",
		success:    "Consolidation PDF generated successfully.",
		failure:    "Error generating Consolidation PDF.",
	}
)

var fieldMessages = map[string]struct{ suffix, message string }{
	"FiscalYear": {"FyYear", "Fy Year is required"},
	"Month":      {"Month", "Month is required"},
}

func (h *Handler) showScreen(w http.ResponseWriter, r *http.Request) {
	data := h.screen(r)
	h.render(w, r, http.StatusOK, "pages/reports.html", "Reports", data, nil)
}

func (h *Handler) options(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.Options(r.Context())
	if err != nil {
		if len(opts.FiscalYears) == 0 && len(opts.Months) == 0 {
			h.logger.Error("load report options", slog.Any("error", err))
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUpstream, err))
			return
		}
		h.logger.Warn("partial report options", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, opts)
}

func (h *Handler) generateSummary(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, summaryPanel, h.service.Summary)
}

func (h *Handler) generateConsolidated(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, consolidatePanel, h.service.Consolidated)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request, p panel, produce func(context.Context, forms.Period) (reports.Result, error)) {
	period, ok := h.readSelection(w, r, p)
	if !ok {
		return
	}
	res, err := produce(r.Context(), period)
	if err != nil {
		h.logger.Error("generate report",
			slog.String("report", p.name),
			slog.String("period", period.Key()),
			slog.Any("error", err))
		h.fail(w, r, http.StatusBadGateway, p.failure)
		return
	}
	if len(res.Warnings) > 0 {
		h.logger.Warn("report generated with warnings",
			slog.String("report", p.name),
			slog.Int("warnings", len(res.Warnings)))
	}

	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		sess.Delete(p.fyKey, p.monthKey)
		sess.AddFlash(shared.FlashSuccess, p.success)
	}
	writePDF(w, res.Filename, res.PDF, len(res.Warnings))
}

func (h *Handler) queueConsolidated(w http.ResponseWriter, r *http.Request) {
	period, ok := h.readSelection(w, r, consolidatePanel)
	if !ok {
		return
	}
	pack, err := h.packs.Request(r.Context(), period)
	if err != nil {
		h.logger.Error("queue consolidated pack", slog.String("period", period.Key()), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/reports", shared.FlashError, "Error queueing Consolidation PDF.")
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Delete(consolidatePanel.fyKey, consolidatePanel.monthKey)
	}
	h.redirectWithFlash(w, r, "/reports/packs/"+pack.ID, shared.FlashSuccess, "Consolidation queued.")
}

// readSelection parses and validates a panel submission. On failure it
// re-renders the screen with field errors and reports false.
func (h *Handler) readSelection(w http.ResponseWriter, r *http.Request, p panel) (forms.Period, bool) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return forms.Period{}, false
	}
	form := selectionForm{
		FiscalYear: strings.TrimSpace(r.PostFormValue("fy_year")),
		Month:      strings.TrimSpace(r.PostFormValue("month")),
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Set(p.fyKey, form.FiscalYear)
		sess.Set(p.monthKey, form.Month)
	}

	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			h.logger.Error("validate selection", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return forms.Period{}, false
		}
		for _, fieldErr := range verrs {
			if m, ok := fieldMessages[fieldErr.Field()]; ok {
				errs[p.errPrefix+m.suffix] = m.message
			}
		}
	}
	if len(errs) > 0 {
		data := h.screen(r)
		data.Errors = errs
		flash := &shared.FlashMessage{Kind: shared.FlashError, Message: p.incomplete}
		h.render(w, r, http.StatusBadRequest, "pages/reports.html", "Reports", data, flash)
		return forms.Period{}, false
	}
	return forms.Period{FiscalYear: form.FiscalYear, Month: form.Month}, true
}

func (h *Handler) filter(w http.ResponseWriter, r *http.Request) {
	fromRaw := strings.TrimSpace(r.URL.Query().Get("from"))
	toRaw := strings.TrimSpace(r.URL.Query().Get("to"))
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Set(keyFilterFrom, fromRaw)
		sess.Set(keyFilterTo, toRaw)
	}

	errs := make(map[string]string)
	from, err := parseInputDate(fromRaw)
	if err != nil {
		errs["fromDate"] = "From date is not a valid date"
	}
	to, err := parseInputDate(toRaw)
	if err != nil {
		errs["toDate"] = "To date is not a valid date"
	}
	rng := forms.DateRange{From: from, To: to}
	if len(errs) == 0 && errors.Is(rng.Validate(), forms.ErrInvertedRange) {
		errs["toDate"] = "To date must not be before from date"
	}

	data := h.screen(r)
	if len(errs) > 0 {
		data.Errors = errs
		flash := &shared.FlashMessage{Kind: shared.FlashError, Message: "Please correct the date range."}
		h.render(w, r, http.StatusBadRequest, "pages/reports.html", "Reports", data, flash)
		return
	}

	listing, err := h.service.Filter(r.Context(), rng)
	if err != nil {
		h.logger.Error("filter forms",
			slog.String("from", rng.FromParam()),
			slog.String("to", rng.ToParam()),
			slog.Any("error", err))
		h.redirectWithFlash(w, r, "/reports", shared.FlashError, "Error filtering forms.")
		return
	}
	data.Filter.Searched = true
	data.Filter.Rows = listing.Rows
	h.render(w, r, http.StatusOK, "pages/reports.html", "Reports", data, nil)
}

func (h *Handler) clear(keys ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			sess.Delete(keys...)
		}
		http.Redirect(w, r, "/reports", http.StatusSeeOther)
	}
}

func (h *Handler) showPack(w http.ResponseWriter, r *http.Request) {
	pack, err := h.packs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, reports.ErrPackNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("get pack", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "pages/pack.html", "Consolidated pack", map[string]any{"Pack": pack}, nil)
}

func (h *Handler) downloadPack(w http.ResponseWriter, r *http.Request) {
	pack, err := h.packs.Ready(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, reports.ErrPackNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
		return
	case errors.Is(err, reports.ErrPackNotReady):
		httpx.RespondError(w, fmt.Errorf("%w: pack is %s", httpx.ErrConflict, pack.Status))
		return
	case err != nil:
		h.logger.Error("download pack", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	file, err := os.Open(pack.FilePath)
	if err != nil {
		h.logger.Error("open pack", slog.Any("error", err), slog.String("path", pack.FilePath))
		httpx.RespondError(w, fmt.Errorf("%w: pack file is gone", httpx.ErrNotFound))
		return
	}
	defer file.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+pack.Filename()+`"`)
	w.Header().Set(WarningsHeader, strconv.Itoa(len(pack.Warnings)))
	if pack.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(pack.FileSize, 10))
	}
	if _, err := io.Copy(w, file); err != nil {
		h.logger.Warn("stream pack", slog.Any("error", err))
	}
}

// screen assembles the page state from the session and the option lists.
// Option failures are logged and leave the lists empty.
func (h *Handler) screen(r *http.Request) screenData {
	sess := shared.SessionFromContext(r.Context())
	opts, err := h.service.Options(r.Context())
	if err != nil {
		h.logger.Error("load report options", slog.Any("error", err))
	}
	return screenData{
		Options: opts,
		Summary: selection{
			FiscalYear: sess.Get(keySummaryFyYear),
			Month:      sess.Get(keySummaryMonth),
		},
		Consolidate: selection{
			FiscalYear: sess.Get(keyConsolidateFyYear),
			Month:      sess.Get(keyConsolidateMonth),
		},
		Filter: filterState{
			From: sess.Get(keyFilterFrom),
			To:   sess.Get(keyFilterTo),
		},
		QueueEnabled: h.packs != nil,
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, tpl, title string, data any, flash *shared.FlashMessage) {
	sess := shared.SessionFromContext(r.Context())
	var csrfToken string
	if sess != nil && h.csrf != nil {
		token, err := h.csrf.EnsureToken(sess)
		if err != nil {
			h.logger.Warn("issue csrf token", slog.Any("error", err))
		}
		csrfToken = token
	}
	if queued := sess.PopFlash(); flash == nil {
		flash = queued
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.Render(w, status, tpl, viewData); err != nil {
		h.logger.Error("render reports template", slog.String("template", tpl), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// fail reports a generation failure. Plain form posts are redirected back to
// the screen with a queued flash; scripted posts get the screen inline.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	if r.Header.Get(ScriptedHeader) != scriptedValue {
		h.redirectWithFlash(w, r, "/reports", shared.FlashError, message)
		return
	}
	flash := &shared.FlashMessage{Kind: shared.FlashError, Message: message}
	h.render(w, r, status, "pages/reports.html", "Reports", h.screen(r), flash)
}

func (h *Handler) tooManyRequests(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("report generation rate limited", slog.String("path", r.URL.Path))
	flash := &shared.FlashMessage{Kind: shared.FlashError, Message: rateLimitMessage}
	h.render(w, r, http.StatusTooManyRequests, "pages/reports.html", "Reports", h.screen(r), flash)
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(kind, message)
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func writePDF(w http.ResponseWriter, filename string, pdf []byte, warnings int) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Header().Set(WarningsHeader, strconv.Itoa(warnings))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func parseInputDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(inputDateLayout, raw)
}

// sessionKey rate limits per session, falling back to the client address.
func sessionKey(r *http.Request) (string, error) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.ID != "" {
		return "session:" + sess.ID, nil
	}
	return httprate.KeyByIP(r)
}
