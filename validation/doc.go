// Package validation validates configuration and request values and reports
// failures as INVALID_INPUT AppErrors listing every offending field.
//
// Struct tags use go-playground/validator:
//
//	type Params struct {
//	    Task     string `json:"task" validate:"omitempty,oneof=transcribe translate"`
//	    BeamSize int    `json:"beam_size" validate:"omitempty,gte=1,lte=20"`
//	}
//	err := validation.Validate(p)
//
// Cross-field rules use the collector:
//
//	v := validation.New()
//	v.Custom(len(urls) > 0, "engine.sidecar.urls", "is required for the sidecar engine")
//	err := v.Validate()
package validation
