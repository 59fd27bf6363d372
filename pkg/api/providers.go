package api

import (
	"time"

	"com.aviebrantz.statistics/pkg/core/stats"
	"github.com/gofiber/fiber"
)

type providerView struct {
	ID           string             `json:"id"`
	ResourceType stats.ResourceType `json:"resourceType"`
	Kind         string             `json:"kind"`
	Title        string             `json:"title,omitempty"`
	Description  string             `json:"description,omitempty"`
	Aggregation  string             `json:"aggregation"`
	Resolutions  []stats.Resolution `json:"resolutions"`
}

var allResolutions = []stats.Resolution{stats.Hourly, stats.Daily, stats.Weekly, stats.Monthly, stats.Yearly}

func (as *ApiServer) listProviders(ctx *fiber.Ctx) {
	defer as.observe(ctx, "providers", time.Now())

	var resourceType stats.ResourceType
	if raw := ctx.Query("resourceType"); raw != "" {
		t, err := stats.ParseResourceType(raw)
		if err != nil {
			as.fail(ctx, err)
			return
		}
		resourceType = t
	}

	providers := as.service.Registry().Providers(resourceType)
	list := make([]providerView, 0, len(providers))
	for _, p := range providers {
		resolutions := p.Resolutions
		if len(resolutions) == 0 {
			resolutions = allResolutions
		}
		list = append(list, providerView{
			ID:           p.ID,
			ResourceType: p.ResourceType,
			Kind:         p.Kind,
			Title:        p.Title,
			Description:  p.Description,
			Aggregation:  p.AggregationFunction,
			Resolutions:  resolutions,
		})
	}
	ctx.JSON(list)
}
