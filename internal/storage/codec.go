package storage

import (
	"encoding/json"
	"errors"

	"caevo/internal/model"
	"caevo/internal/rule"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion stamps new records.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRunStat(s model.RunStat) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeRunStat(data []byte) (model.RunStat, error) {
	var stat model.RunStat
	if err := json.Unmarshal(data, &stat); err != nil {
		return model.RunStat{}, err
	}
	if err := checkVersion(stat.VersionedRecord); err != nil {
		return model.RunStat{}, err
	}
	return stat, nil
}

func EncodeFitnessHistory(history []model.FitnessRecord) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]model.FitnessRecord, error) {
	var history []model.FitnessRecord
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// EncodeGenomes stores genomes in their 512-character string form.
func EncodeGenomes(genomes []rule.Table) ([]byte, error) {
	encoded := make([]string, len(genomes))
	for i := range genomes {
		encoded[i] = genomes[i].String()
	}
	return json.Marshal(encoded)
}

func DecodeGenomes(data []byte) ([]rule.Table, error) {
	var encoded []string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, err
	}
	genomes := make([]rule.Table, len(encoded))
	for i, s := range encoded {
		t, err := rule.Parse(s)
		if err != nil {
			return nil, err
		}
		genomes[i] = t
	}
	return genomes, nil
}

func EncodePivotRun(bits []int) ([]byte, error) {
	return json.Marshal(bits)
}

func DecodePivotRun(data []byte) ([]int, error) {
	var bits []int
	if err := json.Unmarshal(data, &bits); err != nil {
		return nil, err
	}
	return bits, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
