package typesense

import "errors"

var (
	ErrHealthcheckFailed = errors.New("typesense healthcheck failed")
	ErrInvalidQuery      = errors.New("typesense invalid query")
)
