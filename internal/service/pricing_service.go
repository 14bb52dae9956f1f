package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"
	"github.com/manodhiambo/carwash-pos-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PriceQuote is a resolved price for one service and vehicle type.
type PriceQuote struct {
	ServiceID   uuid.UUID       `json:"service_id"`
	ServiceName string          `json:"service_name"`
	VehicleType string          `json:"vehicle_type"`
	Price       decimal.Decimal `json:"price"`
	// Source: "override" | "base"
	Source string `json:"source"`
}

type PricingService interface {
	Price(ctx context.Context, serviceID uuid.UUID, vehicleType string) (decimal.Decimal, error)
	Resolve(ctx context.Context, serviceID uuid.UUID, vehicleType string) (*PriceQuote, error)
	// InvalidatePrice drops every cached quote of a service. Called by the
	// catalog owner after editing prices.
	InvalidatePrice(ctx context.Context, serviceID uuid.UUID) error
}

type pricingService struct {
	catalog repository.CatalogRepository
	rdb     *redis.Client
	ttl     time.Duration
}

// NewPricingService builds the resolver. A nil rdb disables caching.
func NewPricingService(catalog repository.CatalogRepository, rdb *redis.Client, ttl time.Duration) PricingService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &pricingService{catalog: catalog, rdb: rdb, ttl: ttl}
}

var vehicleTypeList = []string{
	model.VehicleSaloon, model.VehicleSUV, model.VehicleVan, model.VehicleTruck,
	model.VehiclePickup, model.VehicleMotorcycle, model.VehicleBus, model.VehicleTrailer,
}

func priceCacheKey(serviceID uuid.UUID, vehicleType string) string {
	return "price:" + serviceID.String() + ":" + vehicleType
}

// NormalizeVehicleType lower-cases t and checks it against the enumeration.
func NormalizeVehicleType(t string) (string, error) {
	vt := strings.ToLower(strings.TrimSpace(t))
	if !model.ValidVehicleType(vt) {
		return "", apierror.Validation("unknown vehicle type %q", t)
	}
	return vt, nil
}

func (s *pricingService) Price(ctx context.Context, serviceID uuid.UUID, vehicleType string) (decimal.Decimal, error) {
	q, err := s.Resolve(ctx, serviceID, vehicleType)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}

// ── Resolve ──────────────────────────────────────────────────────────────────
// Override for the vehicle type first, then the base price.

func (s *pricingService) Resolve(ctx context.Context, serviceID uuid.UUID, vehicleType string) (*PriceQuote, error) {
	vt, err := NormalizeVehicleType(vehicleType)
	if err != nil {
		return nil, err
	}
	key := priceCacheKey(serviceID, vt)

	// 1. Redis, best effort
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var q PriceQuote
			if json.Unmarshal(cached, &q) == nil {
				return &q, nil
			}
		}
	}

	// 2. Catalog
	svc, err := s.catalog.FindService(ctx, serviceID)
	if err != nil {
		return nil, notFound(err, "service %s not found", serviceID)
	}
	if svc.Status != model.ServiceActive {
		return nil, apierror.NotFound("service %s is not active", serviceID)
	}

	q := &PriceQuote{
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		VehicleType: vt,
		Price:       money(svc.BasePrice),
		Source:      "base",
	}
	override, err := s.catalog.FindOverride(ctx, serviceID, vt)
	switch {
	case err == nil:
		q.Price = money(override.Price)
		q.Source = "override"
	case !repository.IsNotFound(err):
		return nil, err
	}

	// 3. Populate cache, ignore errors
	if s.rdb != nil {
		if b, err := json.Marshal(q); err == nil {
			if err := s.rdb.Set(ctx, key, b, s.ttl).Err(); err != nil {
				log.Debug().Err(err).Str("key", key).Msg("price cache write failed")
			}
		}
	}
	return q, nil
}

func (s *pricingService) InvalidatePrice(ctx context.Context, serviceID uuid.UUID) error {
	if s.rdb == nil {
		return nil
	}
	keys := make([]string, 0, len(vehicleTypeList))
	for _, vt := range vehicleTypeList {
		keys = append(keys, priceCacheKey(serviceID, vt))
	}
	return s.rdb.Del(ctx, keys...).Err()
}
