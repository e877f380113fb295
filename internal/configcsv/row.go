package configcsv

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

// Action is what a plan row does to its mapping.
type Action string

const (
	ActionUpsert  Action = "UPSERT"
	ActionDisable Action = "DISABLE"
	ActionDelete  Action = "DELETE"
)

// Columns lists the recognised plan columns in file order.
var Columns = []string{
	"action", "plan_version", "link_id", "source_group_id", "target_group_id",
	"source_role_id", "target_role_id", "target_role_name_if_create", "create_if_missing",
	"copy_visual", "copy_permissions_mode", "enabled", "sync_mode", "conflict_policy",
	"max_delay_seconds", "target_role_position", "role_type", "notes",
}

// Row is one normalized plan line. RowNumber is the line in the uploaded file.
type Row struct {
	RowNumber              int                        `json:"row_number"`
	Action                 Action                     `json:"action"                     csv:"action"                     validate:"oneof=UPSERT DISABLE DELETE"`
	PlanVersion            string                     `json:"plan_version"               csv:"plan_version"`
	LinkID                 string                     `json:"link_id"                    csv:"link_id"                    validate:"required"`
	SourceGroupID          string                     `json:"source_group_id"            csv:"source_group_id"            validate:"snowflake"`
	TargetGroupID          string                     `json:"target_group_id"            csv:"target_group_id"            validate:"snowflake"`
	SourceRoleID           string                     `json:"source_role_id"             csv:"source_role_id"             validate:"snowflake"`
	TargetRoleID           string                     `json:"target_role_id"             csv:"target_role_id"             validate:"omitempty,snowflake"`
	TargetRoleNameIfCreate string                     `json:"target_role_name_if_create" csv:"target_role_name_if_create"`
	CreateIfMissing        bool                       `json:"create_if_missing"          csv:"create_if_missing"`
	CopyVisual             bool                       `json:"copy_visual"                csv:"copy_visual"`
	CopyPermissionsMode    models.CopyPermissionsMode `json:"copy_permissions_mode"      csv:"copy_permissions_mode"      validate:"oneof=none safe strict"`
	Enabled                bool                       `json:"enabled"                    csv:"enabled"`
	SyncMode               models.SyncMode            `json:"sync_mode"                  csv:"sync_mode"                  validate:"oneof=bidirectional source_to_target target_to_source disabled"`
	ConflictPolicy         models.ConflictPolicy      `json:"conflict_policy"            csv:"conflict_policy"`
	MaxDelaySeconds        int                        `json:"max_delay_seconds"          csv:"max_delay_seconds"          validate:"min=1,max=3600"`
	TargetRolePosition     int                        `json:"target_role_position"       csv:"target_role_position"       validate:"min=-1"`
	RoleType               string                     `json:"role_type,omitempty"        csv:"role_type"`
	Notes                  string                     `json:"notes,omitempty"            csv:"notes"`
}

// RowError lists the problems of one row.
type RowError struct {
	RowNumber int      `json:"row_number"`
	Errors    []string `json:"errors"`
}

const (
	defaultPlanVersion = "v1"
	defaultMaxDelay    = 120
	keepPosition       = -1
	// invalidPosition marks a position cell that is not a number so validation rejects it.
	invalidPosition = -2
)

var snowflake = regexp.MustCompile(`^\d{17,20}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("csv"), ","); name != "" {
			return name
		}

		return f.Name
	})

	_ = v.RegisterValidation("snowflake", func(fl validator.FieldLevel) bool {
		return snowflake.MatchString(fl.Field().String())
	})

	v.RegisterStructValidation(rowRules, Row{})

	return v
}

// rowRules checks the rules spanning more than one column.
func rowRules(sl validator.StructLevel) {
	r, _ := sl.Current().Interface().(Row)

	switch r.Action {
	case ActionUpsert:
		if r.TargetRoleID == "" && !r.CreateIfMissing {
			sl.ReportError(r.CreateIfMissing, "create_if_missing", "CreateIfMissing", "needed_without_target", "")
		}

		if r.TargetRoleID == "" && r.CreateIfMissing && r.TargetRoleNameIfCreate == "" {
			sl.ReportError(r.TargetRoleNameIfCreate, "target_role_name_if_create", "TargetRoleNameIfCreate", "name_for_create", "")
		}
	case ActionDisable, ActionDelete:
		if r.TargetRoleID == "" {
			sl.ReportError(r.TargetRoleID, "target_role_id", "TargetRoleID", "target_for_action", string(r.Action))
		}
	}
}

func message(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return "missing " + field
	case "snowflake":
		return field + " is not a valid id"
	case "oneof":
		return field + " must be one of " + strings.ReplaceAll(fe.Param(), " ", "/")
	case "min", "max":
		if field == "target_role_position" {
			return "target_role_position must be >= 0 (empty or -1 keeps the source position)"
		}

		return field + " must be between 1 and 3600"
	case "needed_without_target":
		return "UPSERT without target_role_id requires create_if_missing=true"
	case "name_for_create":
		return "create_if_missing with empty target_role_id requires target_role_name_if_create"
	case "target_for_action":
		return fe.Param() + " requires target_role_id"
	default:
		return field + " is invalid"
	}
}

// Validate returns the structural problems of a row, nil when it is well formed.
func Validate(r Row) []string {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var out []string

	if errs, ok := err.(validator.ValidationErrors); ok { //nolint:errorlint
		for _, fe := range errs {
			out = append(out, message(fe))
		}

		return out
	}

	return []string{err.Error()}
}

// toBool reads the usual yes/no spellings; anything else yields fallback.
func toBool(s string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

// toInt parses an integer cell. Empty yields fallback, garbage yields ok=false.
func toInt(s string, fallback int) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, true
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fallback, false
		}

		n = int(f)
	}

	return n, true
}

// Normalize turns the raw cells of one line into a Row, applying defaults.
// Cells that cannot be read at all are reported as parse errors.
func Normalize(cells map[string]string, rowNumber int) (Row, []string) {
	get := func(k string) string { return strings.TrimSpace(cells[k]) }
	or := func(k, def string) string {
		if v := get(k); v != "" {
			return v
		}

		return def
	}

	r := Row{
		RowNumber:              rowNumber,
		Action:                 Action(strings.ToUpper(or("action", string(ActionUpsert)))),
		PlanVersion:            or("plan_version", defaultPlanVersion),
		LinkID:                 get("link_id"),
		SourceGroupID:          get("source_group_id"),
		TargetGroupID:          get("target_group_id"),
		SourceRoleID:           get("source_role_id"),
		TargetRoleID:           get("target_role_id"),
		TargetRoleNameIfCreate: get("target_role_name_if_create"),
		CreateIfMissing:        toBool(get("create_if_missing"), false),
		CopyVisual:             toBool(get("copy_visual"), true),
		CopyPermissionsMode:    models.CopyPermissionsMode(strings.ToLower(or("copy_permissions_mode", string(models.CopyPermissionsNone)))),
		Enabled:                toBool(get("enabled"), true),
		SyncMode:               models.SyncMode(or("sync_mode", string(models.SyncSourceToTarget))),
		ConflictPolicy:         models.ConflictPolicy(or("conflict_policy", string(models.PolicySourceOfTruthMain))),
		RoleType:               get("role_type"),
		Notes:                  get("notes"),
	}

	var parseErrs []string

	var ok bool

	if r.MaxDelaySeconds, ok = toInt(get("max_delay_seconds"), defaultMaxDelay); !ok {
		r.MaxDelaySeconds = 0
		parseErrs = append(parseErrs, "max_delay_seconds is not a number")
	}

	if r.TargetRolePosition, ok = toInt(get("target_role_position"), keepPosition); !ok {
		r.TargetRolePosition = invalidPosition
		parseErrs = append(parseErrs, "target_role_position is not a number")
	}

	return r, parseErrs
}

// Intent is the typed form of a valid row.
type Intent interface {
	Base() Row
}

// UpsertIntent creates or updates a mapping, creating the target role when allowed.
type UpsertIntent struct{ Row Row }

// DisableIntent keeps the mapping but switches it off.
type DisableIntent struct{ Row Row }

// DeleteIntent removes the mapping.
type DeleteIntent struct{ Row Row }

func (i UpsertIntent) Base() Row  { return i.Row }
func (i DisableIntent) Base() Row { return i.Row }
func (i DeleteIntent) Base() Row  { return i.Row }

// IntentOf classifies a validated row.
func IntentOf(r Row) Intent {
	switch r.Action {
	case ActionDelete:
		return DeleteIntent{Row: r}
	case ActionDisable:
		return DisableIntent{Row: r}
	default:
		return UpsertIntent{Row: r}
	}
}

// Mapping renders the mapping row stores for targetRoleID.
func (r Row) Mapping(targetRoleID string, enabled bool) models.RoleMapping {
	var policy *models.ConflictPolicy
	if r.ConflictPolicy != "" {
		p := r.ConflictPolicy
		policy = &p
	}

	return models.RoleMapping{
		LinkID:              r.LinkID,
		SourceRoleID:        r.SourceRoleID,
		TargetRoleID:        targetRoleID,
		Enabled:             enabled,
		SyncMode:            r.SyncMode,
		ConflictPolicy:      policy,
		MaxDelaySeconds:     r.MaxDelaySeconds,
		RoleType:            r.RoleType,
		CopyVisual:          r.CopyVisual,
		CopyPermissionsMode: r.CopyPermissionsMode,
		Note:                r.Notes,
	}
}
