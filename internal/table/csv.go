package table

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// ReadCSV streams CSV input into raw row-array form (first row = header).
// Ragged records are tolerated here; the normalizer decides what to drop.
func ReadCSV(r io.Reader) (Raw, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // ragged input is the normalizer's problem
	reader.TrimLeadingSpace = true

	var rows [][]interface{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Raw{}, fmt.Errorf("failed to read csv: %w", err)
		}
		row := make([]interface{}, len(record))
		for i, cell := range record {
			row[i] = cell
		}
		rows = append(rows, row)
	}
	return FromRows(rows), nil
}

// ReadJSON decodes JSON input into raw form. Accepts either an array of
// arrays (first row = header) or an array of objects (record form).
func ReadJSON(r io.Reader) (Raw, error) {
	var payload interface{}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return Raw{}, fmt.Errorf("failed to decode json: %w", err)
	}

	arr, ok := payload.([]interface{})
	if !ok || len(arr) == 0 {
		return Raw{}, fmt.Errorf("expected a non-empty json array")
	}

	switch arr[0].(type) {
	case []interface{}:
		rows := make([][]interface{}, 0, len(arr))
		for _, item := range arr {
			row, ok := item.([]interface{})
			if !ok {
				continue
			}
			rows = append(rows, normalizeJSONNumbers(row))
		}
		return FromRows(rows), nil
	case map[string]interface{}:
		records := make([]map[string]interface{}, 0, len(arr))
		for _, item := range arr {
			rec, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			for k, v := range rec {
				rec[k] = jsonNumberToFloat(v)
			}
			records = append(records, rec)
		}
		return FromRecords(records), nil
	default:
		return Raw{}, fmt.Errorf("expected an array of arrays or objects")
	}
}

func normalizeJSONNumbers(row []interface{}) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = jsonNumberToFloat(v)
	}
	return out
}

func jsonNumberToFloat(v interface{}) interface{} {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}
