package stats

import (
	"context"
)

// Service answers statistic queries for resources.
type Service struct {
	registry  *Registry
	assembler *Assembler
}

func NewService(registry *Registry, assembler *Assembler) *Service {
	return &Service{
		registry:  registry,
		assembler: assembler,
	}
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// TimeSeries resolves the provider of kind for resourceType and assembles its
// series.
func (s *Service) TimeSeries(ctx context.Context, resourceType ResourceType, kind string, q TimeSeriesQuery) (*TimeSeries, error) {
	config, err := s.registry.Resolve(resourceType, kind)
	if err != nil {
		return nil, err
	}
	return s.assembler.Assemble(ctx, config, q)
}

// Views is the view count series of a resource.
func (s *Service) Views(ctx context.Context, resourceType ResourceType, q TimeSeriesQuery) (*TimeSeries, error) {
	return s.TimeSeries(ctx, resourceType, KindViews, q)
}

// ProviderTimeSeries assembles the series of the provider with the given id.
func (s *Service) ProviderTimeSeries(ctx context.Context, providerID string, q TimeSeriesQuery) (*TimeSeries, error) {
	config, err := s.registry.ByID(providerID)
	if err != nil {
		return nil, err
	}
	return s.assembler.Assemble(ctx, config, q)
}
