package repository

import (
	"context"

	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CustomerRepository covers the slice of the customer/vehicle directory the
// engine touches: lookup-or-create at check-in and the spend/loyalty totals.
type CustomerRepository interface {
	// FindOrCreateVehicle returns the vehicle for the registration, inserting v
	// when none exists. Concurrent inserts converge on one row.
	FindOrCreateVehicle(ctx context.Context, tx *gorm.DB, v *model.Vehicle) (*model.Vehicle, error)
	FindOrCreateCustomer(ctx context.Context, tx *gorm.DB, c *model.Customer) (*model.Customer, error)
	// LinkVehicle sets the owner only when the vehicle has none yet.
	LinkVehicle(ctx context.Context, tx *gorm.DB, vehicleID, customerID uuid.UUID) (bool, error)
	// SetVehicleType records the class the vehicle was last checked in as.
	SetVehicleType(ctx context.Context, tx *gorm.DB, id uuid.UUID, vehicleType string) error
	FindVehicleByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Vehicle, error)
	FindCustomerByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Customer, error)
	LockCustomer(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Customer, error)
	AddSpend(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount decimal.Decimal, visits int) error
	// SubtractSpend decrements total_spent, flooring at zero.
	SubtractSpend(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount decimal.Decimal) error
	SetPoints(ctx context.Context, tx *gorm.DB, id uuid.UUID, points int) error
	CreateLoyaltyTransaction(ctx context.Context, tx *gorm.DB, t *model.LoyaltyTransaction) error
	ListLoyaltyTransactions(ctx context.Context, customerID uuid.UUID) ([]model.LoyaltyTransaction, error)
	DB() *gorm.DB
}

type customerRepo struct{ db *gorm.DB }

func NewCustomerRepository(db *gorm.DB) CustomerRepository { return &customerRepo{db: db} }

func (r *customerRepo) DB() *gorm.DB { return r.db }

func (r *customerRepo) FindOrCreateVehicle(ctx context.Context, tx *gorm.DB, v *model.Vehicle) (*model.Vehicle, error) {
	db := conn(ctx, r.db, tx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "registration_no"}},
		DoNothing: true,
	}).Create(v).Error
	if err != nil {
		return nil, err
	}
	var out model.Vehicle
	if err := db.Where("registration_no = ?", v.RegistrationNo).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *customerRepo) FindOrCreateCustomer(ctx context.Context, tx *gorm.DB, c *model.Customer) (*model.Customer, error) {
	db := conn(ctx, r.db, tx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoNothing: true,
	}).Create(c).Error
	if err != nil {
		return nil, err
	}
	var out model.Customer
	if err := db.Where("phone = ?", c.Phone).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *customerRepo) LinkVehicle(ctx context.Context, tx *gorm.DB, vehicleID, customerID uuid.UUID) (bool, error) {
	res := conn(ctx, r.db, tx).Model(&model.Vehicle{}).
		Where("id = ? AND customer_id IS NULL", vehicleID).
		Update("customer_id", customerID)
	return res.RowsAffected == 1, res.Error
}

func (r *customerRepo) SetVehicleType(ctx context.Context, tx *gorm.DB, id uuid.UUID, vehicleType string) error {
	return conn(ctx, r.db, tx).Model(&model.Vehicle{}).
		Where("id = ?", id).
		Update("vehicle_type", vehicleType).Error
}

func (r *customerRepo) FindVehicleByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Vehicle, error) {
	var v model.Vehicle
	if err := conn(ctx, r.db, tx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *customerRepo) FindCustomerByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Customer, error) {
	var c model.Customer
	if err := conn(ctx, r.db, tx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *customerRepo) LockCustomer(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Customer, error) {
	var c model.Customer
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *customerRepo) AddSpend(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount decimal.Decimal, visits int) error {
	return conn(ctx, r.db, tx).Model(&model.Customer{}).Where("id = ?", id).
		Updates(map[string]any{
			"total_spent":  gorm.Expr("total_spent + ?", amount),
			"total_visits": gorm.Expr("total_visits + ?", visits),
		}).Error
}

func (r *customerRepo) SubtractSpend(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount decimal.Decimal) error {
	return conn(ctx, r.db, tx).Model(&model.Customer{}).Where("id = ?", id).
		Update("total_spent", gorm.Expr(
			"CASE WHEN total_spent - ? < 0 THEN 0 ELSE total_spent - ? END", amount, amount,
		)).Error
}

func (r *customerRepo) SetPoints(ctx context.Context, tx *gorm.DB, id uuid.UUID, points int) error {
	return conn(ctx, r.db, tx).Model(&model.Customer{}).Where("id = ?", id).
		Update("loyalty_points", points).Error
}

func (r *customerRepo) CreateLoyaltyTransaction(ctx context.Context, tx *gorm.DB, t *model.LoyaltyTransaction) error {
	return conn(ctx, r.db, tx).Create(t).Error
}

func (r *customerRepo) ListLoyaltyTransactions(ctx context.Context, customerID uuid.UUID) ([]model.LoyaltyTransaction, error) {
	var txs []model.LoyaltyTransaction
	err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("created_at ASC").Find(&txs).Error
	return txs, err
}
