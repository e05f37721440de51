package service

import (
	"pulsifi/internal/models"
	"pulsifi/internal/observability"
)

func recordValidation(entity string, errs models.ValidationErrors) {
	for _, field := range errs.Fields() {
		observability.ValidationFailures.WithLabelValues(entity, field).Inc()
	}
}
