package monitoring

import (
	"github.com/rs/zerolog/log"
)

// Alert raises an operator alert. Alerts are log events at error level
// carrying an "alert" field that the log pipeline routes to on-call.
func Alert(message string, labels map[string]string) {
	fields := make(map[string]interface{}, len(labels))
	for k, v := range labels {
		fields[k] = v
	}
	log.Error().
		Str("alert", message).
		Fields(fields).
		Msg("ALERT: lead service degradation")
}
