package observability

const (
	AttrEngineID       = "engine.id"
	AttrOperation      = "engine.operation"
	AttrSuccess        = "success"
	AttrProvider       = "db.system"
	AttrModelName      = "engine.model"
	AttrAction         = "engine.action"
	AttrTxID           = "engine.tx_id"
	AttrRequestID      = "request.id"
	AttrHTTPMethod     = "http.request.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.response.status_code"
	AttrErrorKind      = "error.type"
)
