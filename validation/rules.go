package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/ttacon/libphonenumber"
)

type RuleKind string

const (
	RuleKindRequired RuleKind = "required"
	RuleKindType     RuleKind = "type"
	RuleKindFormat   RuleKind = "format"
	RuleKindRange    RuleKind = "range"
	RuleKindEnum     RuleKind = "enum"
	RuleKindCustom   RuleKind = "custom"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule is one declarative validation rule for a single field. Rules are
// registered per data type at startup and never mutated afterwards.
type Rule struct {
	Name     string
	Kind     RuleKind
	Field    string
	Severity Severity

	ValueType models.ColumnType // kind=type
	Format    string            // kind=format: email|date|phone|pattern:<regexp>
	Min       *float64          // kind=range
	Max       *float64          // kind=range
	Enum      []string          // kind=enum
	Check     func(value interface{}, record models.Record) error // kind=custom
}

var (
	ruleRegistry   = map[string][]Rule{}
	requiredFields = map[string][]string{}
	emailPattern   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// RulesFor returns the rule set registered for a data type. Unknown types
// get an empty set and therefore always pass.
func RulesFor(dataType string) []Rule {
	return ruleRegistry[dataType]
}

// RequiredFieldsFor returns the static required-field list for a data type.
func RequiredFieldsFor(dataType string) []string {
	return requiredFields[dataType]
}

// KnownDataTypes lists every data type with a registered rule set.
func KnownDataTypes() []string {
	types := make([]string, 0, len(requiredFields))
	for t := range requiredFields {
		types = append(types, t)
	}
	return types
}

func IsKnownDataType(dataType string) bool {
	_, ok := requiredFields[dataType]
	return ok
}

func fp(v float64) *float64 { return &v }

func init() {
	requiredFields["hardware"] = []string{"asset_id", "category", "status"}
	requiredFields["software"] = []string{"license_id", "product_name", "seats"}
	requiredFields["employees"] = []string{"employee_id", "name", "department"}
	requiredFields["assignments"] = []string{"assignment_id", "asset_id", "employee_id"}
	requiredFields["activity"] = []string{"log_id", "action", "timestamp"}

	ruleRegistry["hardware"] = []Rule{
		{Name: "asset_id required", Kind: RuleKindRequired, Field: "asset_id", Severity: SeverityError},
		{Name: "asset_id format", Kind: RuleKindFormat, Field: "asset_id", Format: `pattern:^HW\d{6}$`, Severity: SeverityWarning},
		{Name: "category required", Kind: RuleKindRequired, Field: "category", Severity: SeverityError},
		{Name: "category enum", Kind: RuleKindEnum, Field: "category", Enum: []string{"laptop", "desktop", "monitor", "server", "network", "peripheral"}, Severity: SeverityWarning},
		{Name: "status required", Kind: RuleKindRequired, Field: "status", Severity: SeverityError},
		{Name: "status enum", Kind: RuleKindEnum, Field: "status", Enum: []string{"in_use", "in_stock", "repair", "retired"}, Severity: SeverityError},
		{Name: "purchase_date format", Kind: RuleKindFormat, Field: "purchase_date", Format: "date", Severity: SeverityWarning},
		{Name: "purchase_price range", Kind: RuleKindRange, Field: "purchase_price", Min: fp(0), Severity: SeverityWarning},
	}

	ruleRegistry["software"] = []Rule{
		{Name: "license_id required", Kind: RuleKindRequired, Field: "license_id", Severity: SeverityError},
		{Name: "product_name required", Kind: RuleKindRequired, Field: "product_name", Severity: SeverityError},
		{Name: "seats required", Kind: RuleKindRequired, Field: "seats", Severity: SeverityError},
		{Name: "seats type", Kind: RuleKindType, Field: "seats", ValueType: models.ColumnTypeNumber, Severity: SeverityError},
		{Name: "seats range", Kind: RuleKindRange, Field: "seats", Min: fp(1), Max: fp(100000), Severity: SeverityWarning},
		{Name: "expiry_date format", Kind: RuleKindFormat, Field: "expiry_date", Format: "date", Severity: SeverityWarning},
	}

	ruleRegistry["employees"] = []Rule{
		{Name: "employee_id required", Kind: RuleKindRequired, Field: "employee_id", Severity: SeverityError},
		{Name: "name required", Kind: RuleKindRequired, Field: "name", Severity: SeverityError},
		{Name: "department required", Kind: RuleKindRequired, Field: "department", Severity: SeverityError},
		{Name: "email format", Kind: RuleKindFormat, Field: "email", Format: "email", Severity: SeverityWarning},
		{Name: "phone format", Kind: RuleKindFormat, Field: "phone", Format: "phone", Severity: SeverityWarning},
	}

	ruleRegistry["assignments"] = []Rule{
		{Name: "assignment_id required", Kind: RuleKindRequired, Field: "assignment_id", Severity: SeverityError},
		{Name: "asset_id required", Kind: RuleKindRequired, Field: "asset_id", Severity: SeverityError},
		{Name: "employee_id required", Kind: RuleKindRequired, Field: "employee_id", Severity: SeverityError},
		{Name: "assigned_at format", Kind: RuleKindFormat, Field: "assigned_at", Format: "date", Severity: SeverityWarning},
		{Name: "returned before assigned", Kind: RuleKindCustom, Field: "returned_at", Severity: SeverityWarning,
			Check: func(value interface{}, record models.Record) error {
				returned, rerr := parseDateValue(value)
				assignedRaw, ok := record.Get("assigned_at")
				if rerr != nil || !ok {
					return nil
				}
				assigned, aerr := parseDateValue(assignedRaw)
				if aerr != nil {
					return nil
				}
				if returned.Before(assigned) {
					return fmt.Errorf("returned_at precedes assigned_at")
				}
				return nil
			}},
	}

	ruleRegistry["activity"] = []Rule{
		{Name: "log_id required", Kind: RuleKindRequired, Field: "log_id", Severity: SeverityError},
		{Name: "action required", Kind: RuleKindRequired, Field: "action", Severity: SeverityError},
		{Name: "timestamp required", Kind: RuleKindRequired, Field: "timestamp", Severity: SeverityError},
		{Name: "timestamp format", Kind: RuleKindFormat, Field: "timestamp", Format: "date", Severity: SeverityError},
	}
}

// checkFormat applies a kind=format rule to a string value.
// Returns (pass, error) where error means the rule itself is malformed.
func checkFormat(format string, value string) (bool, error) {
	switch {
	case format == "email":
		return emailPattern.MatchString(value), nil
	case format == "date":
		_, err := parseDateString(value)
		return err == nil, nil
	case format == "phone":
		num, err := libphonenumber.Parse(value, "KR")
		if err != nil {
			return false, nil
		}
		return libphonenumber.IsValidNumber(num), nil
	case strings.HasPrefix(format, "pattern:"):
		re, err := regexp.Compile(strings.TrimPrefix(format, "pattern:"))
		if err != nil {
			return false, fmt.Errorf("malformed format rule: bad pattern %q: %v", format, err)
		}
		return re.MatchString(value), nil
	default:
		return false, fmt.Errorf("malformed format rule: unknown format %q", format)
	}
}
