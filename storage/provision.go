package storage

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

// Resources names what Provision creates. Empty fields are skipped.
type Resources struct {
	SQLitePath            string
	TableConnectionString string
	TableName             string
	QueueConnectionString string
	QueueName             string
}

type queueCreator interface {
	Create(ctx context.Context, options *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

// Provision creates the sqlite schema, the azure table and the azure event
// queue. Resources that already exist are left alone.
func Provision(ctx context.Context, r Resources) error {
	if r.SQLitePath != "" {
		slot, err := OpenSQLite(ctx, r.SQLitePath)
		if err != nil {
			return err
		}
		_ = slot.Close()
		log.WithField("path", r.SQLitePath).Info("sqlite schema ready")
	}
	if r.TableConnectionString != "" && r.TableName != "" {
		slot, err := NewTableSlot(r.TableConnectionString, r.TableName, "")
		if err != nil {
			return err
		}
		if err := slot.EnsureTable(ctx); err != nil {
			return err
		}
		log.WithField("table", r.TableName).Info("table ready")
	}
	if r.QueueConnectionString != "" && r.QueueName != "" {
		q, err := azqueue.NewQueueClientFromConnectionString(r.QueueConnectionString, r.QueueName, nil)
		if err != nil {
			return err
		}
		if err := ensureQueue(ctx, q); err != nil {
			return err
		}
		log.WithField("queue", r.QueueName).Info("queue ready")
	}
	return nil
}

func ensureQueue(ctx context.Context, q queueCreator) error {
	if _, err := q.Create(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			return nil
		}
		return err
	}
	return nil
}
