package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/duco-commerce/fulfillment/internal/platform/config"
	pfirestore "github.com/duco-commerce/fulfillment/internal/platform/firestore"
	"github.com/duco-commerce/fulfillment/internal/provider"
	"github.com/duco-commerce/fulfillment/internal/repositories"
	firestoreRepo "github.com/duco-commerce/fulfillment/internal/repositories/firestore"
	"github.com/duco-commerce/fulfillment/internal/services"
)

// Deps carries the externally managed resources the container wires together.
type Deps struct {
	Firestore *pfirestore.Provider
	Events    services.SubmissionEventPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Container assembles the fulfillment pipeline for runtime use.
type Container struct {
	Config      config.Config
	Provider    *provider.Client
	Mappings    repositories.MappingRepository
	Fulfillment services.FulfillmentService
}

// NewContainer constructs the runtime dependencies. Tests can supply stub
// repositories and publishers through Deps.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Firestore == nil {
		return nil, errors.New("di: firestore provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	providerClient, err := provider.NewClient(provider.ClientConfig{
		BaseURL:  cfg.Provider.BaseURL,
		Email:    cfg.Provider.Email,
		Password: cfg.Provider.Password,
		Timeout:  cfg.Provider.Timeout,
		Clock:    clock,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build provider client: %w", err)
	}

	mappings, err := firestoreRepo.NewMappingRepository(deps.Firestore)
	if err != nil {
		return nil, fmt.Errorf("build mapping repository: %w", err)
	}

	settings := merchantSettings(cfg.Merchant)

	resolver, err := services.NewCatalogResolver(services.CatalogResolverDeps{
		Uploader: providerClient,
		Catalog:  providerClient,
		Mappings: mappings,
		Settings: settings,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build catalog resolver: %w", err)
	}

	estimator, err := services.NewCostEstimator(services.CostEstimatorDeps{
		Catalog:  providerClient,
		Settings: settings,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build cost estimator: %w", err)
	}

	assembler, err := services.NewPayloadAssembler(services.PayloadAssemblerDeps{
		Settings: settings,
		Clock:    clock,
	})
	if err != nil {
		return nil, fmt.Errorf("build payload assembler: %w", err)
	}

	fulfillment, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
		Tokens:    providerClient,
		Resolver:  resolver,
		Estimator: estimator,
		Assembler: assembler,
		Submitter: providerClient,
		Events:    deps.Events,
		Settings:  settings,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build fulfillment service: %w", err)
	}

	return &Container{
		Config:      cfg,
		Provider:    providerClient,
		Mappings:    mappings,
		Fulfillment: fulfillment,
	}, nil
}

func merchantSettings(cfg config.MerchantConfig) services.MerchantSettings {
	return services.MerchantSettings{
		EmergencyVariantID:        cfg.EmergencyVariantID,
		DesignOrderVariantID:      cfg.DesignOrderVariantID,
		FallbackUnitCost:          cfg.FallbackUnitCost,
		PriceTolerancePercent:     cfg.PriceTolerancePercent,
		AllowCrossProductFallback: cfg.AllowCrossProductFallback,
		CanvasWidth:               cfg.CanvasWidth,
		CanvasHeight:              cfg.CanvasHeight,
		ArtworkTop:                cfg.ArtworkTop,
		ArtworkLeft:               cfg.ArtworkLeft,
	}
}
