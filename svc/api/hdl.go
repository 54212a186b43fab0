package api

import (
	"burnbin/cfg"
	"burnbin/pkg/domain"
	"burnbin/svc/ledger"
	"burnbin/svc/util"
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

// maxExactInt is the largest integer a JSON number carries without loss.
const maxExactInt = 1 << 53

type Hdl struct {
	ledger *ledger.Ledger
	cfg    *cfg.Cfg
	clock  util.Clock
	pages  *pages
}
type CreateResp struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
type PasteResp struct {
	Content        string  `json:"content"`
	RemainingViews *int64  `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

// createInput is a create request after shape checks.
type createInput struct {
	Content    string
	TTLSeconds *int64
	MaxViews   *int64
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit())
	var body json.RawMessage
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			log.Warn().Int64("limit", tooBig.Limit).Msg("request body too large")
			writeErr(w, r, domain.ErrPasteTooLarge)
			return
		}
		log.Warn().Err(err).Msg("request body is not JSON")
		writeErr(w, r, domain.ErrNotJSON)
		return
	}
	in, err := parseCreateBody(body)
	if err != nil {
		log.Warn().Err(err).Msg("invalid create request")
		writeErr(w, r, err)
		return
	}
	id, err := h.create(r, in)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	log.Info().
		Str("paste_id", id).
		Bool("ttl", in.TTLSeconds != nil).
		Bool("max_views", in.MaxViews != nil).
		Msg("paste created")
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreateResp{ID: id, URL: h.pasteURL(r, id)})
}

// create runs the shared create path of the API and the form: size check,
// then ledger inserts under fresh ids until one is free. Content is stored
// exactly as submitted.
func (h *Hdl) create(r *http.Request, in createInput) (string, error) {
	if int64(len(in.Content)) > h.cfg.MaxPasteSize {
		return "", domain.ErrPasteTooLarge
	}
	params := domain.CreateParams{
		Content:    in.Content,
		TTLSeconds: in.TTLSeconds,
		MaxViews:   in.MaxViews,
		NowMs:      util.RequestNowMs(r, h.clock, h.cfg.TestMode),
	}
	return util.GenID(func(id string) (bool, error) {
		params.ID = id
		err := h.ledger.Create(r.Context(), params)
		if errors.Is(err, domain.ErrPasteExists) {
			hlog.FromRequest(r).Warn().Str("paste_id", id).Msg("paste id collision, retrying")
			return true, nil
		}
		return false, err
	})
}
func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	id := chi.URLParam(r, "id")
	out, err := h.consume(r, id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !out.OK() {
		log.Info().Str("paste_id", id).Str("outcome", out.Status.String()).Msg("paste unavailable")
		h.writeUnavailable(w, r, out)
		return
	}
	log.Info().Str("paste_id", id).Msg("paste retrieved")
	render.JSON(w, r, PasteResp{
		Content:        out.Content,
		RemainingViews: out.RemainingViews,
		ExpiresAt:      out.ExpiresAtISO(),
	})
}
func (h *Hdl) consume(r *http.Request, id string) (domain.Outcome, error) {
	return h.ledger.ConsumeView(r.Context(), id, util.RequestNowMs(r, h.clock, h.cfg.TestMode))
}

// writeUnavailable answers a non-ok outcome. Missing, expired and exhausted
// all look the same unless RevealUnavailableReason is set.
func (h *Hdl) writeUnavailable(w http.ResponseWriter, r *http.Request, out domain.Outcome) {
	resp := domain.ErrResp{Error: domain.ErrPasteNotFound.Msg}
	if h.cfg.RevealUnavailableReason {
		resp.Reason = out.Status.String()
	}
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, resp)
}
func (h *Hdl) Healthz(w http.ResponseWriter, r *http.Request) {
	ok := h.ledger.Ping(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]bool{"ok": ok})
}
func (h *Hdl) bodyLimit() int64 {
	// JSON escaping can inflate content up to six bytes per input byte
	return h.cfg.MaxPasteSize*6 + 1024
}

// pasteURL prefers the configured base URL and otherwise rebuilds it from
// the request, honoring X-Forwarded-Proto.
func (h *Hdl) pasteURL(r *http.Request, id string) string {
	base := h.cfg.BaseURL
	if base == "" {
		proto := r.Header.Get("X-Forwarded-Proto")
		if proto == "" {
			proto = "http"
		}
		host := r.Host
		if host == "" {
			host = "localhost:" + h.cfg.Port
		}
		base = proto + "://" + host
	}
	return base + "/p/" + id
}

// parseCreateBody applies the JSON shape rules: content must be a non-blank
// string; ttl_seconds and max_views, when present, must be integers >= 1.
// A body that is valid JSON but not an object has no content.
func parseCreateBody(body json.RawMessage) (createInput, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		fields = nil
	}
	var in createInput
	content, ok := jsonString(fields["content"])
	if !ok || strings.TrimSpace(content) == "" {
		return in, domain.NewValidationErr("content must be a non-empty string")
	}
	in.Content = content
	if raw, present := fields["ttl_seconds"]; present {
		v, ok := jsonPositiveInt(raw)
		if !ok {
			return in, domain.NewValidationErr("ttl_seconds must be an integer >= 1")
		}
		in.TTLSeconds = &v
	}
	if raw, present := fields["max_views"]; present {
		v, ok := jsonPositiveInt(raw)
		if !ok {
			return in, domain.NewValidationErr("max_views must be an integer >= 1")
		}
		in.MaxViews = &v
	}
	return in, nil
}
func jsonString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// jsonPositiveInt accepts a JSON number with an integral value >= 1, so 5
// and 5.0 pass while "5", null and 5.5 do not.
func jsonPositiveInt(raw json.RawMessage) (int64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := num.Int64(); err == nil {
		return i, i >= 1
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < 1 || f > maxExactInt {
		return 0, false
	}
	return int64(f), true
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	requestID := util.GetRequestID(r.Context())
	statusCode := domain.HTTPStatus(err)
	resp := domain.ToResp(err)
	if statusCode >= 500 {
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("request failed")
		if statusCode != http.StatusServiceUnavailable {
			resp = domain.ToResp(domain.ErrInternalServer)
		}
	}
	render.Status(r, statusCode)
	render.JSON(w, r, resp)
}
