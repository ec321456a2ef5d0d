package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/dd0wney/echoaid/pkg/building"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Request limits
	MaxIdentifierLength = 64
	MaxFeatures         = 16
	MaxSimulatedDevices = 50

	// Regular expressions
	nodeIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_.:]+$`)
	cellIDPattern     = regexp.MustCompile(`^cell_-?\d+_-?\d+$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]+$`)
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("node_id", func(fl validator.FieldLevel) bool {
		return nodeIDPattern.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("cell_id", func(fl validator.FieldLevel) bool {
		return cellIDPattern.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("edge_key", func(fl validator.FieldLevel) bool {
		_, err := building.ParseEdgeKey(fl.Field().String())
		return err == nil
	})
}

// ShakingRequest is a device's shaking report. A missing location cell is
// left for the aggregator to reject so the error stays specific.
type ShakingRequest struct {
	// Timestamp is Unix milliseconds; zero means now.
	Timestamp    int64              `json:"timestamp" validate:"gte=0"`
	LocationCell string             `json:"location_cell" validate:"omitempty,cell_id"`
	Intensity    float64            `json:"intensity" validate:"gte=0"`
	DeviceID     string             `json:"device_id" validate:"omitempty,max=64,identifier"`
	Features     map[string]float64 `json:"features" validate:"omitempty,max=16"`
}

// BlockadeRequest reports an impassable corridor segment.
type BlockadeRequest struct {
	Edge       string `json:"edge" validate:"required,edge_key"`
	ReporterID string `json:"reporter_id" validate:"omitempty,max=64,identifier"`
}

// RouteRequest asks for an evacuation route from a node.
type RouteRequest struct {
	OccupantID string `json:"occupant_id" validate:"required,max=64,identifier"`
	Node       string `json:"node" validate:"required,node_id"`
	Mode       string `json:"mode" validate:"omitempty,oneof=global local"`
}

// LocationRequest updates where an occupant is.
type LocationRequest struct {
	Node string `json:"node" validate:"required,node_id"`
}

// SimulateRequest injects a drill earthquake.
type SimulateRequest struct {
	Cell      string  `json:"cell" validate:"omitempty,cell_id"`
	Devices   int     `json:"devices" validate:"omitempty,min=1,max=50"`
	Intensity float64 `json:"intensity" validate:"gte=0"`
}

// ValidateShakingRequest validates a shaking report
func ValidateShakingRequest(req *ShakingRequest) error {
	if req == nil {
		return errors.New("shaking request cannot be nil")
	}
	if math.IsNaN(req.Intensity) || math.IsInf(req.Intensity, 0) {
		return errors.New("Intensity: must be a finite number")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	for key, v := range req.Features {
		if err := ValidateFeatureKey(key); err != nil {
			return fmt.Errorf("Features: %w", err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("Features: value for '%s' must be finite", key)
		}
	}
	return nil
}

// ValidateBlockadeRequest validates a blockade report
func ValidateBlockadeRequest(req *BlockadeRequest) error {
	if req == nil {
		return errors.New("blockade request cannot be nil")
	}
	return Struct(req)
}

// ValidateRouteRequest validates a route request
func ValidateRouteRequest(req *RouteRequest) error {
	if req == nil {
		return errors.New("route request cannot be nil")
	}
	return Struct(req)
}

// ValidateSimulateRequest validates a drill request
func ValidateSimulateRequest(req *SimulateRequest) error {
	if req == nil {
		return errors.New("simulate request cannot be nil")
	}
	if math.IsNaN(req.Intensity) || math.IsInf(req.Intensity, 0) {
		return errors.New("Intensity: must be a finite number")
	}
	return Struct(req)
}

// Struct validates any tagged request struct.
func Struct(req any) error {
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateFeatureKey validates a motion feature name
func ValidateFeatureKey(key string) error {
	if key == "" {
		return errors.New("feature key cannot be empty")
	}
	if len(key) > MaxIdentifierLength {
		return fmt.Errorf("feature key '%s' exceeds maximum length of %d characters", key, MaxIdentifierLength)
	}
	if !nodeIDPattern.MatchString(key) {
		return fmt.Errorf("feature key '%s' is invalid (alphanumeric, underscore, dot and colon only)", key)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Field()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min", "gte":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "node_id":
			return fmt.Errorf("%s: '%v' is not a valid node id", field, e.Value())
		case "cell_id":
			return fmt.Errorf("%s: '%v' is not a valid cell id (cell_<x>_<y>)", field, e.Value())
		case "edge_key":
			return fmt.Errorf("%s: '%v' is not a valid edge (<node>-<node>)", field, e.Value())
		case "identifier":
			return fmt.Errorf("%s: contains invalid characters", field)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}
