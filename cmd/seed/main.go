// cmd/seed/main.go seeds a demo branch with bays and a small service menu.
// Usage: go run ./cmd/seed
package main

import (
	"github.com/manodhiambo/carwash-pos-sub000/internal/config"
	"github.com/manodhiambo/carwash-pos-sub000/internal/infra"
	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type menuItem struct {
	name      string
	category  string
	base      int64
	minutes   int
	overrides map[string]int64
}

var menu = []menuItem{
	{"Exterior Wash", "wash", 250, 20, map[string]int64{model.VehicleSUV: 400, model.VehicleVan: 450, model.VehicleTruck: 800, model.VehicleMotorcycle: 100}},
	{"Full Wash", "wash", 500, 40, map[string]int64{model.VehicleSUV: 700, model.VehicleVan: 800, model.VehicleBus: 1500}},
	{"Interior Vacuum", "detailing", 150, 15, map[string]int64{model.VehicleSUV: 250}},
	{"Engine Wash", "detailing", 600, 30, nil},
	{"Wax & Polish", "detailing", 1500, 60, map[string]int64{model.VehicleSUV: 2000}},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		branch := model.Branch{Name: "Demo Branch", Code: "DEMO", Active: true}
		if err := tx.Where(model.Branch{Code: branch.Code}).FirstOrCreate(&branch).Error; err != nil {
			return err
		}
		for _, n := range []string{"B1", "B2", "B3", "B4"} {
			bay := model.Bay{BranchID: branch.ID, BayNumber: n, BayType: "standard", Status: model.BayAvailable}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&bay).Error; err != nil {
				return err
			}
		}
		for _, item := range menu {
			svc := model.Service{Name: item.name, Category: item.category, BasePrice: decimal.NewFromInt(item.base), DurationMinutes: item.minutes, Status: model.ServiceActive}
			if err := tx.Where(model.Service{Name: item.name}).FirstOrCreate(&svc).Error; err != nil {
				return err
			}
			for vt, price := range item.overrides {
				p := model.ServicePricing{ServiceID: svc.ID, VehicleType: vt, Price: decimal.NewFromInt(price)}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "service_id"}, {Name: "vehicle_type"}},
					DoUpdates: clause.AssignmentColumns([]string{"price", "updated_at"}),
				}).Create(&p).Error; err != nil {
					return err
				}
			}
		}
		log.Info().Str("branch_id", branch.ID.String()).Msg("seeded demo branch")
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
}
