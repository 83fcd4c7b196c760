package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/timecapsule/internal/capsule"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/apierr"
	"github.com/MrSnakeDoc/timecapsule/internal/httpserver/deps"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

const (
	// multipartMemory is kept in memory; larger parts spill to temp files.
	multipartMemory = 8 << 20
	// formOverhead covers the text fields of the creation form.
	formOverhead = 1 << 20
)

// ListCapsules returns the caller's capsules and those shared with them.
func ListCapsules(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(w, r)
		if !ok {
			return
		}
		listing, err := d.Capsules.List(r.Context(), sess)
		if err != nil {
			apierr.FromError(w, err, d.Logger)
			return
		}
		writeJSON(w, http.StatusOK, listing)
	}
}

// CapsuleStats returns the dashboard counters.
func CapsuleStats(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(w, r)
		if !ok {
			return
		}
		st, err := d.Capsules.Stats(r.Context(), sess)
		if err != nil {
			apierr.FromError(w, err, d.Logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GetCapsule returns one capsule projected for the caller.
func GetCapsule(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(w, r)
		if !ok {
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			apierr.NotFound(w, "capsule not found")
			return
		}
		v, err := d.Capsules.Get(r.Context(), sess, id)
		if err != nil {
			apierr.FromError(w, err, d.Logger)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// DeleteCapsule removes a capsule owned by the caller.
func DeleteCapsule(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(w, r)
		if !ok {
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			apierr.NotFound(w, "capsule not found")
			return
		}
		if err := d.Capsules.Delete(r.Context(), sess, id); err != nil {
			apierr.FromError(w, err, d.Logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CreateCapsule accepts the multipart creation form.
//
// Fields: title, description, notes, unlock_date, unlock_time, timezone,
// tags and shared_emails (comma separated), is_shared, and repeated media
// file parts.
func CreateCapsule(d deps.Deps) http.HandlerFunc {
	limit := int64(formOverhead)
	if d.MaxMediaSize > 0 && d.MaxMediaFiles > 0 {
		// One extra file's worth so oversized parts are reported as
		// skipped rather than failing the whole form.
		limit += d.MaxMediaSize * int64(d.MaxMediaFiles+1)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				apierr.FileTooLarge(w, "request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			case errors.Is(err, http.ErrNotMultipart):
				apierr.ValidationError(w, "expected a multipart/form-data body")
			default:
				apierr.ValidationError(w, "malformed form: "+err.Error())
			}
			return
		}
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				d.Logger.Debug("multipart cleanup failed", logger.Error(err))
			}
		}()

		in, err := readCreateForm(r.MultipartForm)
		if err != nil {
			apierr.ValidationError(w, err.Error())
			return
		}

		res, err := d.Capsules.Create(r.Context(), sess, in)
		if err != nil {
			apierr.FromError(w, err, d.Logger)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func readCreateForm(form *multipart.Form) (capsule.CreateInput, error) {
	get := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	in := capsule.CreateInput{
		Title:        get("title"),
		Description:  get("description"),
		Notes:        get("notes"),
		Tags:         capsule.SplitList(get("tags")),
		UnlockDate:   get("unlock_date"),
		UnlockTime:   get("unlock_time"),
		Timezone:     get("timezone"),
		SharedEmails: capsule.SplitList(get("shared_emails")),
	}

	shared, err := parseFormBool(get("is_shared"))
	if err != nil {
		return in, errors.New("invalid is_shared: expected a boolean")
	}
	in.IsShared = shared

	for _, fh := range form.File["media"] {
		in.Media = append(in.Media, capsule.Upload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open:        func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return in, nil
}

// parseFormBool accepts strconv booleans plus the HTML checkbox value "on".
func parseFormBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return false, nil
	case "on", "yes":
		return true, nil
	}
	return strconv.ParseBool(strings.TrimSpace(v))
}
