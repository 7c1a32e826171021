package container

import (
	"log/slog"

	"github.com/alexnikon/wgbot/internal/cache"
	"github.com/alexnikon/wgbot/internal/database/repositories"
	"github.com/alexnikon/wgbot/internal/overrides"
	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/alexnikon/wgbot/internal/wgdashboard"
	"github.com/alexnikon/wgbot/internal/yookassa"
	"github.com/alexnikon/wgbot/pkg/config"
	"gorm.io/gorm"
)

type AppContainer struct {
	Config *config.Config
	DB     *gorm.DB
	Log    *slog.Logger

	UserRepo         *repositories.UserRepository
	SubscriptionRepo *repositories.SubscriptionRepository
	PaymentRepo      *repositories.PaymentRepository

	// ## CACHE ## \\
	IntentService *cache.Service

	Overrides  *overrides.Resolver
	WGClient   *wgdashboard.Client
	Gateway    *yookassa.Client
	Lifecycle  *subscription.Lifecycle
	Reconciler *subscription.Reconciler
}

func NewAppContainer(cfg *config.Config, db *gorm.DB, log *slog.Logger) *AppContainer {
	resolver := overrides.NewResolver(cfg.PromoFile, cfg.CustomClientsFile, log)
	wgClient := wgdashboard.NewClient(cfg.WGDashboardURL, cfg.WGDashboardAPIKey, cfg.WGConfigName, log)

	subRepo := repositories.NewSubscriptionRepository(db)
	payRepo := repositories.NewPaymentRepository(db)

	lifecycle := subscription.NewLifecycle(subRepo, wgClient, log)
	reconciler := subscription.NewReconciler(subRepo, payRepo, resolver, lifecycle, log)

	var gateway *yookassa.Client
	if cfg.YooKassaEnabled() {
		gateway = yookassa.NewClient(cfg.YooKassaShopID, cfg.YooKassaSecretKey, cfg.YooKassaReturnURL, log)
	}

	return &AppContainer{
		Config: cfg,
		DB:     db,
		Log:    log,

		UserRepo:         repositories.NewUserRepository(db),
		SubscriptionRepo: subRepo,
		PaymentRepo:      payRepo,

		IntentService: cache.NewService(cache.GetRedisClient(), cfg.PendingPaymentTTL),

		Overrides:  resolver,
		WGClient:   wgClient,
		Gateway:    gateway,
		Lifecycle:  lifecycle,
		Reconciler: reconciler,
	}
}
