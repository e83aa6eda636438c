package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// DefaultTablePartition is the partition key used when none is configured.
const DefaultTablePartition = "prism-todo"

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

// TableSlot stores each key as one entity of an Azure Storage table:
// PartitionKey is fixed, RowKey is the slot key, Value holds the payload.
type TableSlot struct {
	client    tableClient
	partition string
}

type slotEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Value        string `json:"Value"`
}

// NewTableSlot connects to table using an Azure Storage connection string.
func NewTableSlot(connStr, table, partition string) (*TableSlot, error) {
	if connStr == "" || table == "" {
		return nil, errors.New("table slot: missing connection string or table name")
	}
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return newTableSlot(svc.NewClient(table), partition), nil
}

func newTableSlot(client tableClient, partition string) *TableSlot {
	if partition == "" {
		partition = DefaultTablePartition
	}
	return &TableSlot{client: client, partition: partition}
}

func (t *TableSlot) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := t.client.GetEntity(ctx, t.partition, key, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	var ent slotEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, false, err
	}
	return []byte(ent.Value), true, nil
}

func (t *TableSlot) Set(ctx context.Context, key string, value []byte) error {
	ent := slotEntity{
		PartitionKey: t.partition,
		RowKey:       key,
		Value:        string(value),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = t.client.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// EnsureTable creates the backing table, tolerating one that already exists.
func (t *TableSlot) EnsureTable(ctx context.Context) error {
	if _, err := t.client.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}
