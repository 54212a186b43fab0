package api

import (
	"burnbin/pkg/domain"
	"burnbin/svc/util"
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

//go:embed templates/*.html
var templateFS embed.FS

const expiresDisplay = "2006-01-02 15:04:05 UTC"

type pages struct {
	index    *template.Template
	paste    *template.Template
	notFound *template.Template
}
type indexView struct {
	Content    string
	TTLSeconds string
	MaxViews   string
	Error      string
	URL        string
}
type pasteView struct {
	Content    string
	Remaining  string
	Expires    string
	ExpiresISO string
}
type notFoundView struct {
	Reason string
}

func loadPages() (*pages, error) {
	load := func(name string) (*template.Template, error) {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		return t, errors.Wrapf(err, "parse template %s", name)
	}
	var (
		p   pages
		err error
	)
	if p.index, err = load("index.html"); err != nil {
		return nil, err
	}
	if p.paste, err = load("paste.html"); err != nil {
		return nil, err
	}
	if p.notFound, err = load("notfound.html"); err != nil {
		return nil, err
	}
	return &p, nil
}
func (p *pages) render(w http.ResponseWriter, r *http.Request, t *template.Template, status int, data interface{}) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("template render failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
func (h *Hdl) Index(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, h.pages.index, http.StatusOK, indexView{})
}

// CreateForm is the no-script create path behind the index form. Empty
// ttl_seconds and max_views fields mean unset.
func (h *Hdl) CreateForm(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit())
	if err := r.ParseForm(); err != nil {
		log.Warn().Err(err).Msg("invalid form")
		h.pages.render(w, r, h.pages.index, http.StatusBadRequest, indexView{Error: "invalid form submission"})
		return
	}
	view := indexView{
		Content:    r.PostForm.Get("content"),
		TTLSeconds: strings.TrimSpace(r.PostForm.Get("ttl_seconds")),
		MaxViews:   strings.TrimSpace(r.PostForm.Get("max_views")),
	}
	in, err := parseCreateForm(view)
	if err == nil {
		var id string
		if id, err = h.create(r, in); err == nil {
			log.Info().Str("paste_id", id).Msg("paste created from form")
			h.pages.render(w, r, h.pages.index, http.StatusCreated, indexView{URL: h.pasteURL(r, id)})
			return
		}
	}
	status := domain.HTTPStatus(err)
	view.Error = domain.ToResp(err).Error
	if status >= 500 {
		util.Error().Err(err).Str("request_id", util.GetRequestID(r.Context())).Msg("form create failed")
		view.Error = "Failed to create paste, please try again"
	}
	h.pages.render(w, r, h.pages.index, status, view)
}
func parseCreateForm(v indexView) (createInput, error) {
	in := createInput{Content: v.Content}
	if strings.TrimSpace(v.Content) == "" {
		return in, domain.NewValidationErr("content must be a non-empty string")
	}
	if v.TTLSeconds != "" {
		n, err := strconv.ParseInt(v.TTLSeconds, 10, 64)
		if err != nil || n < 1 {
			return in, domain.NewValidationErr("ttl_seconds must be an integer >= 1")
		}
		in.TTLSeconds = &n
	}
	if v.MaxViews != "" {
		n, err := strconv.ParseInt(v.MaxViews, 10, 64)
		if err != nil || n < 1 {
			return in, domain.NewValidationErr("max_views must be an integer >= 1")
		}
		in.MaxViews = &n
	}
	return in, nil
}

// PastePage renders a paste. Like the API read, it spends one view.
func (h *Hdl) PastePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out, err := h.consume(r, id)
	if err != nil {
		util.Error().Err(err).Str("request_id", util.GetRequestID(r.Context())).Msg("paste page failed")
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if !out.OK() {
		hlog.FromRequest(r).Info().Str("paste_id", id).Str("outcome", out.Status.String()).Msg("paste unavailable")
		view := notFoundView{}
		if h.cfg.RevealUnavailableReason {
			view.Reason = out.Status.String()
		}
		h.pages.render(w, r, h.pages.notFound, http.StatusNotFound, view)
		return
	}
	view := pasteView{Content: out.Content, Remaining: "unlimited"}
	if out.RemainingViews != nil {
		view.Remaining = strconv.FormatInt(*out.RemainingViews, 10)
	}
	if t := out.ExpiresAt(); t != nil {
		view.Expires = t.Format(expiresDisplay)
		view.ExpiresISO = *out.ExpiresAtISO()
	}
	h.pages.render(w, r, h.pages.paste, http.StatusOK, view)
}
