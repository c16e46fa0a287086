package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"aeminvert/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns the version stamp for newly written records.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeModel(m model.ModelRecord) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeModel(data []byte) (model.ModelRecord, error) {
	var record model.ModelRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.ModelRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.ModelRecord{}, err
	}
	return record, nil
}

func EncodeHistoryBlock(b model.HistoryBlockRecord) ([]byte, error) {
	return json.Marshal(b)
}

func DecodeHistoryBlock(data []byte) (model.HistoryBlockRecord, error) {
	var block model.HistoryBlockRecord
	if err := json.Unmarshal(data, &block); err != nil {
		return model.HistoryBlockRecord{}, err
	}
	if err := checkVersion(block.VersionedRecord); err != nil {
		return model.HistoryBlockRecord{}, err
	}
	return block, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
