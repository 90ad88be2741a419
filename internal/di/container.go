package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oakmarket/api/internal/payments"
	"github.com/oakmarket/api/internal/platform/config"
	"github.com/oakmarket/api/internal/repositories"
	"github.com/oakmarket/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart          services.CartService
	Checkout      services.CheckoutService
	Orders        services.OrderService
	Reconcile     services.ReconciliationService
	Notifications services.NotificationService
	System        services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerDeps carries the externally constructed collaborators the container
// cannot build itself.
type ContainerDeps struct {
	Registry  repositories.Registry
	Provider  payments.Provider
	Publisher services.NotificationPublisher
	Logger    func(ctx context.Context, event string, fields map[string]any)
	Clock     func() time.Time
	Build     services.BuildInfo
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries and stub providers.
func NewContainer(ctx context.Context, cfg config.Config, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("payment provider is required")
	}

	svc, err := buildServices(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, deps ContainerDeps) (Services, error) {
	var svc Services

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	reg := deps.Registry

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository:      reg.Carts(),
		Shipping:        services.FlatRateShipping{Amount: cfg.Checkout.ShippingFlatRate},
		Clock:           clock,
		DefaultCurrency: cfg.Checkout.Currency,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:     reg.Carts(),
		Orders:    reg.Orders(),
		Counters:  reg.Counters(),
		Provider:  deps.Provider,
		Clock:     clock,
		Logger:    deps.Logger,
		ReturnURL: cfg.Checkout.ReturnURL,
		CancelURL: cfg.Checkout.CancelURL,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(),
		Clock:  clock,
		Logger: deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if deps.Publisher != nil {
		notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
			Publisher: deps.Publisher,
			Clock:     clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification service: %w", err)
		}
		svc.Notifications = notificationSvc
	}

	reconcileSvc, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Orders:        reg.Orders(),
		Provider:      deps.Provider,
		Carts:         svc.Cart,
		Notifications: svc.Notifications,
		Clock:         clock,
		Logger:        deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build reconciliation service: %w", err)
	}
	svc.Reconcile = reconcileSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := deps.Build
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
