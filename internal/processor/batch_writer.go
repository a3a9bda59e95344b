package processor

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"propertyfinder/server/config"
	"propertyfinder/server/internal/database"
	"propertyfinder/server/internal/models"
)

// Transactor is the part of *gorm.DB the writer needs.
type Transactor interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// BatchWriter stores a batch of properties in a single transaction,
// retrying the whole batch on failure.
type BatchWriter struct {
	db     Transactor
	logger *logrus.Logger
	config *config.Config
}

func NewBatchWriter(db Transactor, config *config.Config, logger *logrus.Logger) *BatchWriter {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &BatchWriter{
		db:     db,
		config: config,
		logger: logger,
	}
}

// WriteBatch inserts the batch. With replaceExisting set, every stored property
// is deleted in the same transaction first.
func (w *BatchWriter) WriteBatch(ctx context.Context, batch []*models.Property, replaceExisting bool) error {
	var err error
	maxRetries := w.config.BatchProcessing.MaxRetries
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			w.logger.Infof("Retrying batch insert, attempt %d of %d", attempt, maxRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay()):
			}
		}

		err = w.db.Transaction(func(tx *gorm.DB) error {
			tx = tx.WithContext(ctx)
			if replaceExisting {
				deleted, err := database.DeleteAllProperties(tx)
				if err != nil {
					return err
				}
				w.logger.Infof("Deleting %d old properties", deleted)
			}
			if err := database.InsertProperties(tx, batch); err != nil {
				return fmt.Errorf("failed to insert properties batch: %w", err)
			}
			return nil
		})

		if err == nil {
			w.logger.Infof("Inserted %d properties", len(batch))
			return nil
		}

		w.logger.Errorf("Batch insert failed: %v", err)
	}

	return fmt.Errorf("failed to insert batch after %d attempts: %w", maxRetries+1, err)
}
