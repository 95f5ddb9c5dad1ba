package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/azzy787/task-board-mvp/domain"
)

const (
	edmDouble   = "Edm.Double"
	edmDateTime = "Edm.DateTime"
	edmInt64    = "Edm.Int64"
	odataSuffix = "@odata.type"
)

var entityJSON = sonic.Config{UseNumber: true}.Froze()

// encodeEntity turns record fields into a table entity payload. Floats are
// annotated as Edm.Double and times as Edm.DateTime. Nil fields are
// omitted since table properties cannot hold null.
func encodeEntity(pk, rk string, fields map[string]any) ([]byte, error) {
	ent := map[string]any{"PartitionKey": pk, "RowKey": rk}
	for k, v := range fields {
		switch x := v.(type) {
		case nil:
		case float64:
			ent[k+odataSuffix] = edmDouble
			ent[k] = encodeDouble(x)
		case time.Time:
			ent[k+odataSuffix] = edmDateTime
			ent[k] = x.UTC().Format(time.RFC3339Nano)
		case *time.Time:
			if x != nil {
				ent[k+odataSuffix] = edmDateTime
				ent[k] = x.UTC().Format(time.RFC3339Nano)
			}
		default:
			ent[k] = v
		}
	}
	return entityJSON.Marshal(ent)
}

func encodeDouble(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

// decodeEntity parses a table entity into a record. System properties are
// dropped. Annotated doubles, dates and longs are converted to native types,
// other numbers become float64.
func decodeEntity(data []byte) (domain.Record, error) {
	var raw map[string]any
	if err := entityJSON.Unmarshal(data, &raw); err != nil {
		return domain.Record{}, fmt.Errorf("decode entity: %w", err)
	}
	rec := domain.Record{Fields: map[string]any{}}
	if rk, ok := raw["RowKey"].(string); ok {
		rec.ID = rk
	}
	for k, v := range raw {
		if k == "PartitionKey" || k == "RowKey" || k == "Timestamp" || k == "odata.etag" ||
			strings.HasPrefix(k, "odata.") || strings.HasSuffix(k, odataSuffix) {
			continue
		}
		typ, _ := raw[k+odataSuffix].(string)
		rec.Fields[k] = decodeValue(typ, v)
	}
	return rec, nil
}

func decodeValue(typ string, v any) any {
	switch typ {
	case edmDateTime:
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
		return v
	case edmDouble:
		switch x := v.(type) {
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
			return v
		}
	case edmInt64:
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return float64(n)
			}
		}
	}
	if n, ok := v.(interface{ Float64() (float64, error) }); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}
