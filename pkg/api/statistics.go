package api

import (
	"errors"
	"fmt"
	"time"

	"com.aviebrantz.statistics/pkg/core/stats"
	"com.aviebrantz.statistics/pkg/core/store/historical"
	"github.com/gofiber/fiber"
)

var errBadParameter = errors.New("bad parameter")

const dateLayout = "2006-01-02"

// parseInstant accepts RFC 3339 instants, or plain dates taken as midnight in
// loc.
func parseInstant(name, value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", errBadParameter, name)
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s %q is not an ISO-8601 instant", errBadParameter, name, value)
}

func (as *ApiServer) parseQuery(ctx *fiber.Ctx) (stats.TimeSeriesQuery, error) {
	q := stats.TimeSeriesQuery{
		ResourceID: ctx.Params("id"),
		Location:   as.defaultLocation(),
	}
	if q.ResourceID == "" {
		return q, fmt.Errorf("%w: resource id is required", errBadParameter)
	}
	if tz := ctx.Query("timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return q, fmt.Errorf("%w: unknown timezone %q", errBadParameter, tz)
		}
		q.Location = loc
	}

	var err error
	if q.From, err = parseInstant("from", ctx.Query("from"), q.Location); err != nil {
		return q, err
	}
	if q.To, err = parseInstant("to", ctx.Query("to"), q.Location); err != nil {
		return q, err
	}
	if q.Resolution, err = stats.ParseResolution(ctx.Query("resolution")); err != nil {
		return q, fmt.Errorf("%w: %v", errBadParameter, err)
	}
	return q, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadParameter),
		errors.Is(err, stats.ErrInvalidRange),
		errors.Is(err, stats.ErrInvalidResolution),
		errors.Is(err, stats.ErrUnsupportedResolution):
		return fiber.StatusBadRequest
	case errors.Is(err, stats.ErrUnknownStatistic):
		return fiber.StatusNotFound
	case errors.Is(err, historical.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func (as *ApiServer) fail(ctx *fiber.Ctx, err error) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case fiber.StatusServiceUnavailable:
		message = "statistics store unavailable"
	case fiber.StatusInternalServerError:
		as.logger.Errorf("err answering %s: %v", ctx.OriginalURL(), err)
		message = "internal error"
	}
	ctx.Status(status)
	ctx.JSON(fiber.Map{"message": message})
}

func (as *ApiServer) reply(ctx *fiber.Ctx, series *stats.TimeSeries, err error) {
	if err != nil {
		as.fail(ctx, err)
		return
	}
	ctx.JSON(series)
}

func (as *ApiServer) resourceType(ctx *fiber.Ctx) (stats.ResourceType, bool) {
	resourceType, err := stats.ParseResourceType(ctx.Params("resourceType"))
	if err != nil {
		as.fail(ctx, err)
		return "", false
	}
	return resourceType, true
}

func (as *ApiServer) getViews(ctx *fiber.Ctx) {
	defer as.observe(ctx, "views", time.Now())

	resourceType, ok := as.resourceType(ctx)
	if !ok {
		return
	}
	q, err := as.parseQuery(ctx)
	if err != nil {
		as.fail(ctx, err)
		return
	}
	series, err := as.service.Views(ctx.Fasthttp, resourceType, q)
	as.reply(ctx, series, err)
}

func (as *ApiServer) getStatistic(ctx *fiber.Ctx) {
	defer as.observe(ctx, "statistic", time.Now())

	resourceType, ok := as.resourceType(ctx)
	if !ok {
		return
	}
	q, err := as.parseQuery(ctx)
	if err != nil {
		as.fail(ctx, err)
		return
	}
	series, err := as.service.TimeSeries(ctx.Fasthttp, resourceType, ctx.Params("kind"), q)
	as.reply(ctx, series, err)
}

func (as *ApiServer) getProviderStatistic(ctx *fiber.Ctx) {
	defer as.observe(ctx, "provider", time.Now())

	q, err := as.parseQuery(ctx)
	if err != nil {
		as.fail(ctx, err)
		return
	}
	series, err := as.service.ProviderTimeSeries(ctx.Fasthttp, ctx.Params("providerID"), q)
	as.reply(ctx, series, err)
}
