package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/aretw0/humus/pkg/core"
)

const maxBodyBytes = 16 << 20

type (
	writeResponse struct {
		OK  bool   `json:"ok"`
		ID  string `json:"id"`
		Rev string `json:"rev,omitempty"`
	}

	listRow struct {
		ID  string         `json:"id"`
		Rev string         `json:"rev"`
		Doc *core.Document `json:"doc,omitempty"`
	}

	listResponse struct {
		TotalRows int       `json:"total_rows"`
		Rows      []listRow `json:"rows"`
	}

	errorResponse struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
)

func (a *api) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.store.Info(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, info)
}

func (a *api) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, id, _, err := readDocument(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	id, rev, err := a.store.Create(r.Context(), body, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(rev.String()))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, writeResponse{OK: true, ID: id, Rev: rev.String()})
}

// docID returns the document id addressed by the wildcard route. chi
// matches against the escaped path whenever the request carried escapes,
// so the value is decoded only in that case.
func docID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return id, nil
	}
	decoded, err := url.PathUnescape(id)
	if err != nil {
		return "", fmt.Errorf("%w: malformed id %q", core.ErrInvalidDocument, id)
	}
	return decoded, nil
}

func (a *api) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := docID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	doc, err := a.store.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(doc.Rev.String()))
	render.JSON(w, r, doc)
}

func (a *api) handlePut(w http.ResponseWriter, r *http.Request) {
	id, err := docID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	body, bodyID, bodyRev, err := readDocument(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if bodyID != "" && bodyID != id {
		a.writeError(w, r, fmt.Errorf("%w: body _id %q does not match path", core.ErrInvalidDocument, bodyID))
		return
	}

	revText := requestRev(r)
	if revText == "" {
		revText = bodyRev
	}

	if revText == "" {
		_, rev, err := a.store.Create(r.Context(), body, id)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		w.Header().Set("ETag", strconv.Quote(rev.String()))
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, writeResponse{OK: true, ID: id, Rev: rev.String()})
		return
	}

	rev, err := core.ParseRevision(revText)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	next, err := a.store.Update(r.Context(), id, rev, body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(next.String()))
	render.JSON(w, r, writeResponse{OK: true, ID: id, Rev: next.String()})
}

func (a *api) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := docID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	rev, err := core.ParseRevision(requestRev(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.Delete(r.Context(), id, rev); err != nil {
		a.writeError(w, r, err)
		return
	}
	render.JSON(w, r, writeResponse{OK: true, ID: id})
}

func (a *api) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := core.ListOptions{
		Pattern:     q.Get("pattern"),
		IncludeDocs: q.Get("include_docs") == "true",
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			a.writeError(w, r, fmt.Errorf("%w: bad limit %q", core.ErrInvalidDocument, s))
			return
		}
		opts.Limit = limit
	}

	docs, err := a.store.List(r.Context(), opts)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := listResponse{TotalRows: len(docs), Rows: make([]listRow, len(docs))}
	for i := range docs {
		resp.Rows[i] = listRow{ID: docs[i].ID, Rev: docs[i].Rev.String()}
		if opts.IncludeDocs {
			resp.Rows[i].Doc = &docs[i]
		}
	}
	render.JSON(w, r, resp)
}

// requestRev returns the revision from the rev query parameter or the
// If-Match header.
func requestRev(r *http.Request) string {
	if rev := r.URL.Query().Get("rev"); rev != "" {
		return rev
	}
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}

// readDocument decodes the request body and splits off the "_id" and
// "_rev" members.
func readDocument(r *http.Request) (body core.Value, id, rev string, err error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return core.Value{}, "", "", err
	}
	if len(data) > maxBodyBytes {
		return core.Value{}, "", "", fmt.Errorf("%w: body larger than %d bytes", core.ErrInvalidDocument, maxBodyBytes)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return core.Object(nil), "", "", nil
	}

	body, err = core.ParseJSON(data)
	if err != nil {
		return core.Value{}, "", "", err
	}
	if body.Kind() != core.KindObject {
		return body, "", "", nil
	}

	fields := body.Fields()
	rest := make(map[string]core.Value, len(fields))
	for k, v := range fields {
		switch k {
		case "_id":
			s, ok := v.AsString()
			if !ok {
				return core.Value{}, "", "", fmt.Errorf("%w: _id must be a string", core.ErrInvalidDocument)
			}
			id = s
		case "_rev":
			s, ok := v.AsString()
			if !ok {
				return core.Value{}, "", "", fmt.Errorf("%w: _rev must be a string", core.ErrInvalidDocument)
			}
			rev = s
		default:
			rest[k] = v
		}
	}
	return core.Object(rest), id, rev, nil
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrInvalidDocument):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, core.ErrReadOnly):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, core.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: kind, Reason: err.Error()})
}
