package httpapi

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/wunderlog/wunderlog/internal/store"
	"github.com/wunderlog/wunderlog/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the read-only archive and run-history handlers into
// the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/archive/records", func(c *fiber.Ctx) error {
		var req recordsQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		metas, err := service.Records(req.toLocation(), req.kind, req.From, req.To)
		if err != nil {
			if errors.Is(err, weather.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no archive records for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list archive records")
		}

		return c.JSON(fiber.Map{
			"location": req.toLocation(),
			"kind":     req.kind,
			"from":     req.From,
			"to":       req.To,
			"records":  metas,
		})
	})

	v1.Get("/archive/latest", func(c *fiber.Ctx) error {
		req, err := parseArchiveQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		meta, err := service.LatestRecord(req.toLocation(), req.kind)
		if err != nil {
			if errors.Is(err, weather.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no archive records for requested location")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to query archive")
		}

		payload, err := service.ReadPayload(meta)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read archived payload")
		}

		return c.JSON(fiber.Map{
			"meta":    meta,
			"payload": json.RawMessage(payload),
		})
	})

	v1.Get("/runs", func(c *fiber.Ctx) error {
		var req runsQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		runs, err := service.RunRange(req.toLocation(), req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no cycle history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch cycle history")
		}

		return c.JSON(fiber.Map{
			"location": req.toLocation(),
			"from":     req.From,
			"to":       req.To,
			"runs":     runs,
		})
	})

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		loc, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		run, err := service.LatestRun(loc.toLocation())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no cycle history for requested location")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch cycle history")
		}

		return c.JSON(run)
	})
}

// locationQuery holds the query parameter identifying a location.
type locationQuery struct {
	Location string `validate:"required"`
}

func (l locationQuery) toLocation() weather.Location {
	return weather.Location{Query: l.Location}
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	q := locationQuery{Location: c.Query("location")}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// archiveQuery adds the record kind to a location query.
type archiveQuery struct {
	locationQuery
	kind weather.RecordKind
}

func parseArchiveQuery(c *fiber.Ctx) (archiveQuery, error) {
	var q archiveQuery

	loc, err := parseLocationQuery(c)
	if err != nil {
		return q, err
	}
	q.locationQuery = loc

	kind, err := weather.ParseKind(c.Query("kind", string(weather.KindObservation)))
	if err != nil {
		return q, err
	}
	q.kind = kind
	return q, nil
}

// recordsQuery holds query parameters for the archive listing endpoint.
type recordsQuery struct {
	archiveQuery
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (r *recordsQuery) bind(c *fiber.Ctx) error {
	q, err := parseArchiveQuery(c)
	if err != nil {
		return err
	}
	r.archiveQuery = q

	if err := bindTimeRange(c, &r.From, &r.To); err != nil {
		return err
	}
	return validate.Struct(r)
}

// runsQuery holds query parameters for the run history endpoint.
type runsQuery struct {
	locationQuery
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (r *runsQuery) bind(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	r.locationQuery = loc

	if err := bindTimeRange(c, &r.From, &r.To); err != nil {
		return err
	}
	return validate.Struct(r)
}

func bindTimeRange(c *fiber.Ctx, from, to *time.Time) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	f, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	t, err := parseTime(toStr)
	if err != nil {
		return err
	}

	*from = f
	*to = t
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
