package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/nicolaschoi7042/itNswinventory-sub002/utils"
	"github.com/shopspring/decimal"
)

// Statistics summarizes one validation pass over a record set.
type Statistics struct {
	TotalRecords     int `json:"total_records"`
	ValidRecords     int `json:"valid_records"`
	InvalidRecords   int `json:"invalid_records"`
	DuplicateRecords int `json:"duplicate_records"`
	MissingFields    int `json:"missing_fields"`
}

// DataQuality holds the 0-100 quality dimensions. Accuracy is defined as
// identical to completeness; this mirrors the product definition and must
// not silently diverge.
type DataQuality struct {
	Completeness float64 `json:"completeness"`
	Consistency  float64 `json:"consistency"`
	Accuracy     float64 `json:"accuracy"`
	Overall      float64 `json:"overall"`
}

// Result is created fresh per validation call and immutable once returned.
type Result struct {
	IsValid    bool        `json:"is_valid"`
	Errors     []string    `json:"errors"`
	Warnings   []string    `json:"warnings"`
	Statistics Statistics  `json:"statistics"`
	Quality    DataQuality `json:"quality"`
}

// Validate applies the rule set registered for dataTypeName to every
// record, detects duplicates and missing required fields, computes quality
// scores and finally runs format-specific checks for the target format.
//
// Data problems are reported, never raised. Malformed rule definitions are
// programmer errors and surface as an invalid result whose sole error is
// the rule failure message.
func Validate(records []models.Record, dataTypeName string, req models.ExportRequest) *Result {
	result := &Result{Errors: []string{}, Warnings: []string{}}

	if len(records) == 0 {
		result.Errors = append(result.Errors, "no records to validate")
		return result
	}

	rules := RulesFor(dataTypeName)
	required := RequiredFieldsFor(dataTypeName)

	result.Statistics.TotalRecords = len(records)
	seenHashes := map[string]int{}
	cleanRecords := 0 // records with neither errors nor warnings

	for i, rec := range records {
		recordErrors := 0
		recordWarnings := 0

		for _, rule := range rules {
			pass, ruleErr := applyRule(rule, rec)
			if ruleErr != nil {
				return &Result{Errors: []string{ruleErr.Error()}, Warnings: []string{}}
			}
			if pass {
				continue
			}
			msg := fmt.Sprintf("row %d: %s failed for field %q", i, rule.Name, rule.Field)
			if rule.Severity == SeverityError {
				result.Errors = append(result.Errors, msg)
				recordErrors++
			} else {
				result.Warnings = append(result.Warnings, msg)
				recordWarnings++
			}
		}

		hash := canonicalHash(rec)
		if firstIdx, dup := seenHashes[hash]; dup {
			result.Statistics.DuplicateRecords++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: duplicate of row %d", i, firstIdx))
			recordWarnings++
		} else {
			seenHashes[hash] = i
		}

		for _, field := range required {
			if !fieldPresent(rec, field) {
				result.Statistics.MissingFields++
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("row %d: missing required field %q", i, field))
				recordWarnings++
			}
		}

		if recordErrors == 0 {
			result.Statistics.ValidRecords++
		} else {
			result.Statistics.InvalidRecords++
		}
		if recordErrors == 0 && recordWarnings == 0 {
			cleanRecords++
		}
	}

	total := float64(result.Statistics.TotalRecords)
	result.Quality.Completeness = utils.Round2(float64(result.Statistics.ValidRecords) / total * 100)
	result.Quality.Consistency = utils.Round2(float64(cleanRecords) / total * 100)
	result.Quality.Accuracy = result.Quality.Completeness
	result.Quality.Overall = utils.Round2((result.Quality.Completeness + result.Quality.Consistency + result.Quality.Accuracy) / 3)

	// Format checks run last and only append to the error/warning lists.
	checkFormatConstraints(result, records, req)

	result.IsValid = len(result.Errors) == 0
	return result
}

// applyRule evaluates one rule against one record. The returned error is
// reserved for malformed rule definitions (programmer errors).
func applyRule(rule Rule, rec models.Record) (bool, error) {
	value, ok := rec.Get(rule.Field)
	present := ok && !isEmptyValue(value)

	if rule.Kind == RuleKindRequired {
		return present, nil
	}
	// Optional-field policy: absent values pass every non-required rule.
	if !present {
		return true, nil
	}

	switch rule.Kind {
	case RuleKindType:
		return checkType(rule.ValueType, value), nil
	case RuleKindFormat:
		return checkFormat(rule.Format, strings.TrimSpace(fmt.Sprint(value)))
	case RuleKindRange:
		if rule.Min == nil && rule.Max == nil {
			return false, fmt.Errorf("malformed range rule %q: neither min nor max set", rule.Name)
		}
		n, err := toFloat(value)
		if err != nil {
			return false, nil
		}
		if rule.Min != nil && n < *rule.Min {
			return false, nil
		}
		if rule.Max != nil && n > *rule.Max {
			return false, nil
		}
		return true, nil
	case RuleKindEnum:
		if len(rule.Enum) == 0 {
			return false, fmt.Errorf("malformed enum rule %q: empty value set", rule.Name)
		}
		s := strings.TrimSpace(fmt.Sprint(value))
		for _, allowed := range rule.Enum {
			if s == allowed {
				return true, nil
			}
		}
		return false, nil
	case RuleKindCustom:
		if rule.Check == nil {
			return false, fmt.Errorf("malformed custom rule %q: no check function", rule.Name)
		}
		return rule.Check(value, rec) == nil, nil
	default:
		return false, fmt.Errorf("malformed rule %q: unknown kind %q", rule.Name, rule.Kind)
	}
}

func fieldPresent(rec models.Record, field string) bool {
	v, ok := rec.Get(field)
	return ok && !isEmptyValue(v)
}

func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func checkType(expected models.ColumnType, value interface{}) bool {
	switch expected {
	case models.ColumnTypeString:
		_, ok := value.(string)
		return ok
	case models.ColumnTypeNumber, models.ColumnTypeCurrency:
		_, err := toFloat(value)
		return err == nil
	case models.ColumnTypeDate:
		_, err := parseDateValue(value)
		return err == nil
	case models.ColumnTypeBoolean:
		switch v := value.(type) {
		case bool:
			return true
		case string:
			s := strings.ToLower(strings.TrimSpace(v))
			return s == "true" || s == "false"
		}
		return false
	default:
		return true
	}
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case decimal.Decimal:
		return v.InexactFloat64(), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", value)
	}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseDateString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %q", s)
}

func parseDateValue(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *v, nil
	case string:
		return parseDateString(v)
	default:
		return time.Time{}, fmt.Errorf("not a date: %T", value)
	}
}

// canonicalHash computes a duplicate-detection hash: strings trimmed,
// numbers normalized through decimal, nil fields dropped, keys sorted by
// the JSON encoder.
func canonicalHash(rec models.Record) string {
	normalized := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		if v == nil {
			continue
		}
		switch tv := v.(type) {
		case string:
			trimmed := strings.TrimSpace(tv)
			if n, err := decimal.NewFromString(trimmed); err == nil {
				normalized[k] = n.String()
			} else {
				normalized[k] = trimmed
			}
		case float64, float32, int, int64, json.Number:
			n, _ := toFloat(tv)
			normalized[k] = decimal.NewFromFloat(n).String()
		default:
			normalized[k] = tv
		}
	}
	// Map keys marshal in sorted order, so equal content means equal bytes.
	raw, err := json.Marshal(normalized)
	if err != nil {
		raw = []byte(fmt.Sprint(normalized))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
