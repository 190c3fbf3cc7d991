// Package obsmetrics provides a channel-based metrics pipeline that
// observes the routing transport's three events -- attempt, success, and
// throttle -- per backend, and exposes them as a JSON snapshot over HTTP.
//
// The collector runs in its own goroutine and drains events from a
// buffered channel so recording a metric never blocks the request path.
// Its RecordAttempt/RecordSuccess/RecordThrottle methods satisfy
// routingtransport.MetricsSink directly, so a Collector can be wired onto
// a Transport or AsyncTransport via SetMetrics and will receive every
// observation the state machine makes without any glue code; EventChannel
// remains available for pushing events from elsewhere.
//
// Example usage:
//
//	collector := obsmetrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	tr := routingtransport.NewTransport(reg, sel, logger, nil)
//	tr.SetMetrics(collector)
//
//	mux.HandleFunc("/metrics", collector.Handler())
package obsmetrics
