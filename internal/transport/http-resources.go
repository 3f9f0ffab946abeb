package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/codec"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/shortcut"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/view"
)

const (
	maxImportSize = 10 << 20
	keepAlive     = 25 * time.Second
)

type (
	// ResourceReq is the add form. Tags arrive comma separated.
	ResourceReq struct {
		Name        string `json:"name" form:"name" validate:"required"`
		URL         string `json:"url" form:"url" validate:"required"`
		Description string `json:"description" form:"description" validate:"required"`
		Category    string `json:"category" form:"category" validate:"required,category"`
		Tags        string `json:"tags" form:"tags"`
	}

	// ResourcePatchReq is the edit form; absent fields stay untouched.
	ResourcePatchReq struct {
		Name        *string `json:"name"`
		URL         *string `json:"url"`
		Description *string `json:"description"`
		Category    *string `json:"category"`
		Tags        *string `json:"tags"`
	}

	ShortcutResp struct {
		shortcut.Binding
		Label string `json:"label"`
	}

	// ShortcutDispatchResp names the action a key press triggers. Handled
	// tells the client to suppress the key's default behaviour.
	ShortcutDispatchResp struct {
		Action  shortcut.Action `json:"action,omitempty"`
		Handled bool            `json:"handled"`
	}
)

func (s *HTTPServer) ResourceList(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	list, err := s.resources.Snapshot(c.Request().Context(), user.ID)
	if err != nil {
		return s.httpError(c, err, "Failed to load resources")
	}
	return c.JSON(http.StatusOK, queryFromRequest(c).Apply(list))
}

func (s *HTTPServer) ResourceStats(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	list, err := s.resources.Snapshot(c.Request().Context(), user.ID)
	if err != nil {
		return s.httpError(c, err, "Failed to load resources")
	}
	return c.JSON(http.StatusOK, view.Summarize(list, time.Now()))
}

// ResourceEvents streams the derived view as server-sent events, one
// "snapshot" event per change. A load failure is sent as an "error" event
// and ends the stream.
func (s *HTTPServer) ResourceEvents(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	sub, err := s.resources.Subscribe(ctx, user.ID)
	if err != nil {
		return s.httpError(c, err, "Failed to load resources")
	}
	defer sub.Close()

	query := queryFromRequest(c)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-sub.C:
			if !ok {
				return nil
			}
			if snap.Err != nil {
				s.logger.Errorw("resource stream", "user_id", user.ID, "error", snap.Err)
				return writeEvent(w, "error", map[string]string{"message": "Failed to load resources"})
			}
			if err := writeEvent(w, "snapshot", query.Apply(snap.Resources)); err != nil {
				return nil
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func writeEvent(w *echo.Response, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func (s *HTTPServer) ResourceCreate(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := ResourceReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	id, err := s.resources.Create(c.Request().Context(), user.ID, models.ResourceFields{
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
		Category:    models.Category(req.Category),
		Tags:        models.ParseTags(req.Tags),
	})
	if err != nil {
		return s.httpError(c, err, "Failed to save resource. Please try again.")
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (s *HTTPServer) ResourceUpdate(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := ResourcePatchReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	patch := models.ResourcePatch{
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
	}
	if req.Category != nil {
		category := models.Category(*req.Category)
		patch.Category = &category
	}
	if req.Tags != nil {
		tags := models.ParseTags(*req.Tags)
		patch.Tags = &tags
	}
	if patch.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to update")
	}

	if err := s.resources.Update(c.Request().Context(), user.ID, id, patch); err != nil {
		return s.httpError(c, err, "Failed to save resource. Please try again.")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) ResourceDelete(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	if err := s.resources.Delete(c.Request().Context(), user.ID, id); err != nil {
		return s.httpError(c, err, "Failed to delete resource. Please try again.")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) ResourceExport(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	format, err := codec.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	basename := c.QueryParam("basename")
	if basename == "" {
		basename = s.cfg.ExportBasename
	}

	buf := bytes.Buffer{}
	if err := s.transfer.Export(c.Request().Context(), user.ID, &buf, format); err != nil {
		return s.httpError(c, err, "Failed to export resources")
	}

	filename := codec.Filename(basename, format, time.Now())
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

// ResourceImport takes the file either as the multipart field "file" or as
// the raw request body.
func (s *HTTPServer) ResourceImport(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	data, err := readImport(c, s.importLimit)
	if err != nil {
		if errors.Is(err, errImportTooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Import file is too large")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := s.transfer.Import(c.Request().Context(), user.ID, data)
	if err != nil {
		return s.httpError(c, err, "Failed to import resources")
	}
	return c.JSON(http.StatusOK, res)
}

var errImportTooLarge = errors.New("import is too large")

// readImport returns the uploaded file or raw body. Anything over limit
// bytes is rejected rather than truncated.
func readImport(c echo.Context, limit int64) ([]byte, error) {
	var r io.Reader = c.Request().Body
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, errors.Wrap(err, "read form file")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrap(err, "open form file")
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.Wrap(err, "read import")
	}
	if int64(len(data)) > limit {
		return nil, errImportTooLarge
	}
	return data, nil
}

func (s *HTTPServer) Shortcuts(c echo.Context) error {
	platform := c.Request().Header.Get("Sec-CH-UA-Platform")
	if platform == "" {
		platform = c.Request().UserAgent()
	}

	bindings := s.shortcuts.Bindings()
	resp := make([]ShortcutResp, len(bindings))
	for i, b := range bindings {
		resp[i] = ShortcutResp{Binding: b, Label: b.Label(platform)}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) ShortcutDispatch(c echo.Context) error {
	ev := shortcut.KeyEvent{}
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if ev.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}

	action, handled := s.shortcuts.Dispatch(ev)
	return c.JSON(http.StatusOK, ShortcutDispatchResp{Action: action, Handled: handled})
}

func queryFromRequest(c echo.Context) view.Query {
	return view.ParseQuery(c.QueryParam("search"), c.QueryParam("category"), c.QueryParam("sort"))
}
