package observability

const (
	MUsecaseRequests     MetricKey = "usecase_requests_total"
	MUsecaseDuration     MetricKey = "usecase_duration_seconds"
	MHTTPRequests        MetricKey = "http_requests_total"
	MHTTPRequestDuration MetricKey = "http_request_duration_seconds"
	MEventPublishFailed  MetricKey = "event_publish_failed_total"
	// MStockAdjustFailed counts asynchronous stock adjustments that could not be
	// applied after the cart-side write already committed. A non-zero value means
	// cart and product state have drifted and needs operator attention.
	MStockAdjustFailed MetricKey = "stock_adjust_failed_total"
)
