package domain

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// EncodeTasks serializes the collection as a single JSON array.
func EncodeTasks(tasks []Task) ([]byte, error) {
	if tasks == nil {
		tasks = []Task{}
	}
	data, err := sonic.ConfigStd.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	return data, nil
}

// DecodeTasks parses a payload produced by EncodeTasks. A JSON null decodes
// to an empty collection.
func DecodeTasks(data []byte) ([]Task, error) {
	var tasks []Task
	if err := sonic.ConfigStd.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

// EncodeEvent serializes an event for transports.
func EncodeEvent(ev Event) ([]byte, error) {
	return sonic.ConfigStd.Marshal(ev)
}
