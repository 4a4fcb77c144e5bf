package detector

import "errors"

var (
	ErrPipelineUnavailable = errors.New("detector pipeline unavailable")
	ErrInferenceTimeout    = errors.New("detector inference timeout")
	ErrInvalidResponse     = errors.New("detector returned invalid response")
)
