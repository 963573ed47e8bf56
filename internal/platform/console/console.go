// Package console holds the echo plumbing shared by the admin console's
// domain handlers: id parsing, payload binding and the generic
// get/patch/delete routes over a store.Slice.
package console

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pedsclinic/clinicadmin/internal/platform/listview"
	"github.com/pedsclinic/clinicadmin/internal/platform/middleware"
	"github.com/pedsclinic/clinicadmin/internal/platform/store"
)

// ParseID reads a positive integer path parameter.
func ParseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// QueryInt reads an optional integer query parameter. Absent means 0.
func QueryInt(c echo.Context, name string) (int64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return n, nil
}

// Payload binds the JSON body as a free-form object. Only the body is
// bound so path and query parameters never leak into what is sent to the
// backend.
func Payload(c echo.Context) (map[string]any, error) {
	payload := map[string]any{}
	if err := (&echo.DefaultBinder{}).BindBody(c, &payload); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return payload, nil
}

func Query(c echo.Context, def listview.Sort) listview.Query {
	return listview.ParseQuery(c.QueryParams(), def)
}

// Get handles GET /<resource>/:id by selecting the record in the slice.
func Get[T store.Entity](sl *store.Slice[T]) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := ParseID(c, "id")
		if err != nil {
			return err
		}
		item, err := sl.FetchByID(c.Request().Context(), id)
		if err != nil {
			return middleware.HTTPError(err)
		}
		return c.JSON(http.StatusOK, item)
	}
}

// Patch handles PATCH /<resource>/:id with a partial payload.
func Patch[T store.Entity](sl *store.Slice[T]) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := ParseID(c, "id")
		if err != nil {
			return err
		}
		payload, err := Payload(c)
		if err != nil {
			return err
		}
		item, err := sl.Update(c.Request().Context(), id, payload)
		if err != nil {
			return middleware.HTTPError(err)
		}
		return c.JSON(http.StatusOK, item)
	}
}

// Delete handles DELETE /<resource>/:id.
func Delete[T store.Entity](sl *store.Slice[T]) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := ParseID(c, "id")
		if err != nil {
			return err
		}
		if err := sl.Delete(c.Request().Context(), id); err != nil {
			return middleware.HTTPError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// Items fetches the whole collection into the slice and returns it.
func Items[T store.Entity](c echo.Context, sl *store.Slice[T]) ([]T, error) {
	items, err := sl.FetchAll(c.Request().Context())
	if err != nil {
		return nil, middleware.HTTPError(err)
	}
	return items, nil
}
