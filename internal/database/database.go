package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"propertyfinder/server/internal/geometry"
	"propertyfinder/server/internal/models"
)

var (
	ErrNotFound       = errors.New("property not found")
	ErrDuplicatePoint = errors.New("another property already has this location")
)

type Database struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return open(sqlite.Open(dbPath), logger)
}

func open(dialector gorm.Dialector, logger *logrus.Logger) (*Database, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection avoids "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return &Database{db: db, logger: logger}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// CreateProperty inserts a new record and fills in its ID.
func (d *Database) CreateProperty(ctx context.Context, p *models.Property) error {
	if err := d.db.WithContext(ctx).Create(p).Error; err != nil {
		return translate(err)
	}
	return nil
}

// SaveProperty writes every column of an existing record.
func (d *Database) SaveProperty(ctx context.Context, p *models.Property) error {
	if err := d.db.WithContext(ctx).Save(p).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (d *Database) GetProperty(ctx context.Context, id int64) (*models.Property, error) {
	var p models.Property
	err := d.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListFilter narrows the admin listing. Nil fields are not applied.
type ListFilter struct {
	Search       string
	Bedrooms     *int
	Bathrooms    *int
	CarSpaces    *int
	PropertyType *models.PropertyType
}

func (d *Database) ListProperties(ctx context.Context, f ListFilter) ([]models.Property, error) {
	q := d.db.WithContext(ctx).Model(&models.Property{})
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("address LIKE ? OR description LIKE ?", like, like)
	}
	if f.Bedrooms != nil {
		q = q.Where("bedrooms = ?", *f.Bedrooms)
	}
	if f.Bathrooms != nil {
		q = q.Where("bathrooms = ?", *f.Bathrooms)
	}
	if f.CarSpaces != nil {
		q = q.Where("car_spaces = ?", *f.CarSpaces)
	}
	if f.PropertyType != nil {
		q = q.Where("property_type = ?", *f.PropertyType)
	}

	var properties []models.Property
	if err := q.Order("id").Find(&properties).Error; err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return properties, nil
}

// ListingQuery is the store side of the map filter. Nil bounds are not applied.
type ListingQuery struct {
	Box                       geometry.BoundingBox
	MinBedrooms               *int
	MaxBedrooms               *int
	MinBathrooms              *int
	MinCarSpaces              *int
	PropertyTypes             []models.PropertyType
	SchoolDistanceBelow       *float64
	TrainStationDistanceBelow *float64
}

// FindListings returns the records whose point lies inside the query box and
// whose attributes match. Distance bounds are strict and never match NULL.
func (d *Database) FindListings(ctx context.Context, lq ListingQuery) ([]models.Property, error) {
	bound := lq.Box.Bound()

	q := d.db.WithContext(ctx).Model(&models.Property{}).
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Where("latitude BETWEEN ? AND ?", bound.Min.Lat(), bound.Max.Lat()).
		Where("longitude BETWEEN ? AND ?", bound.Min.Lon(), bound.Max.Lon())

	if lq.MinBedrooms != nil {
		q = q.Where("bedrooms >= ?", *lq.MinBedrooms)
	}
	if lq.MaxBedrooms != nil {
		q = q.Where("bedrooms <= ?", *lq.MaxBedrooms)
	}
	if lq.MinBathrooms != nil {
		q = q.Where("bathrooms >= ?", *lq.MinBathrooms)
	}
	if lq.MinCarSpaces != nil {
		q = q.Where("car_spaces >= ?", *lq.MinCarSpaces)
	}
	if lq.PropertyTypes != nil {
		q = q.Where("property_type IN ?", lq.PropertyTypes)
	}
	if lq.SchoolDistanceBelow != nil {
		q = q.Where("nearest_school_distance < ?", *lq.SchoolDistanceBelow)
	}
	if lq.TrainStationDistanceBelow != nil {
		q = q.Where("nearest_train_station_distance < ?", *lq.TrainStationDistanceBelow)
	}

	var candidates []models.Property
	if err := q.Order("id").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}

	// The column ranges only prefilter; containment is decided on the polygon.
	properties := make([]models.Property, 0, len(candidates))
	for _, p := range candidates {
		if lq.Box.Contains(*p.Point()) {
			properties = append(properties, p)
		}
	}
	return properties, nil
}

// Points returns the location of every record that has one.
func (d *Database) Points(ctx context.Context) ([]geometry.Coordinate, error) {
	var rows []struct {
		Latitude  float64
		Longitude float64
	}
	err := d.db.WithContext(ctx).Model(&models.Property{}).
		Select("latitude, longitude").
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load points: %w", err)
	}

	points := make([]geometry.Coordinate, len(rows))
	for i, r := range rows {
		points[i] = geometry.Coordinate{Lat: r.Latitude, Lng: r.Longitude}
	}
	return points, nil
}

func (d *Database) CountProperties(ctx context.Context) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.Property{}).Count(&count).Error
	return count, err
}

// DeleteProperties removes the given records and reports how many existed.
func (d *Database) DeleteProperties(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := d.db.WithContext(ctx).Delete(&models.Property{}, ids)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete properties: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (d *Database) DeleteAllProperties(ctx context.Context) (int64, error) {
	return DeleteAllProperties(d.db.WithContext(ctx))
}

// DeleteAllProperties empties the table inside the given session or transaction.
func DeleteAllProperties(tx *gorm.DB) (int64, error) {
	res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Property{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete properties: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// InsertProperties inserts a batch of properties inside the given session or transaction.
func InsertProperties(tx *gorm.DB, properties []*models.Property) error {
	if len(properties) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(properties, 100).Error; err != nil {
		return fmt.Errorf("failed to insert properties: %w", translate(err))
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicatePoint, err)
	}
	return err
}
