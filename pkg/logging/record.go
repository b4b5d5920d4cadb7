package logging

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// Inference is the structured payload of a per-request inference log line.
// Zero-valued optional fields are omitted from the output.
type Inference struct {
	RequestID      string
	User           string
	PromptLength   int
	ResponseLength *int
	Latency        time.Duration
	Status         string
	Cache          string
}

// Fields converts the record to zap fields.
func (r Inference) Fields() []zap.Field {
	fields := make([]zap.Field, 0, 7)
	if r.RequestID != "" {
		fields = append(fields, zap.String("request_id", r.RequestID))
	}
	fields = append(fields,
		zap.String("user_id", r.User),
		zap.Int("prompt_length", r.PromptLength),
	)
	if r.ResponseLength != nil {
		fields = append(fields, zap.Int("response_length", *r.ResponseLength))
	}
	fields = append(fields, zap.Float64("latency_ms", Millis(r.Latency)))
	if r.Status != "" {
		fields = append(fields, zap.String("status", r.Status))
	}
	if r.Cache != "" {
		fields = append(fields, zap.String("cache", r.Cache))
	}
	return fields
}

// Millis converts d to milliseconds rounded to two decimals.
func Millis(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
