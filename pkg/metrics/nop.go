package metrics

// NopRecorder discards all metrics. Used in tests to avoid duplicate
// Prometheus registration across packages.
type NopRecorder struct{}

func NewNop() *NopRecorder { return &NopRecorder{} }

func (NopRecorder) RecordValidation(string)           {}
func (NopRecorder) RecordCacheHit(string)             {}
func (NopRecorder) RecordCacheMiss(string)            {}
func (NopRecorder) RecordFetchLatency(string, float64) {}
func (NopRecorder) RecordError(string)                {}
