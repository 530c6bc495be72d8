package constants

const (
	KEY_APP_NAME       = "app"
	KEY_BODY           = "body"
	KEY_CACHE_KEY      = "cacheKey"
	KEY_CART_ITEMS     = "cartItems"
	KEY_CART_LINE      = "cartLine"
	KEY_CART_LINES     = "cartLines"
	KEY_CART_STATE     = "cartState"
	KEY_CART_VERSION   = "cartVersion"
	KEY_CATALOG_ENTRY  = "catalogEntry"
	KEY_COMBO_ID       = "comboId"
	KEY_CONFIG         = "config"
	KEY_DB_URL         = "dbUrl"
	KEY_HEADER         = "header"
	KEY_LINE_KEY       = "lineKey"
	KEY_MERGE_ANOMALY  = "mergeAnomaly"
	KEY_MUTATION       = "mutation"
	KEY_OWNER          = "owner"
	KEY_PROCESS        = "process"
	KEY_PRODUCT_ID     = "productId"
	KEY_QUANTITY       = "quantity"
	KEY_REQUEST        = "request"
	KEY_REQUEST_BODY   = "requestBody"
	KEY_REQUEST_HEADER = "requestHeader"
	KEY_REQUEST_HOST   = "host"
	KEY_REQUEST_ID     = "requestId"
	KEY_REQUEST_IP     = "requesterIP"
	KEY_REQUEST_METHOD = "requestMethod"
	KEY_REQUEST_URI    = "requestURI"
	KEY_REQUEST_URL    = "requestURL"
	KEY_SEQUENCE       = "sequence"
	KEY_SERVICE        = "service"
	KEY_SESSION_ID     = "sessionId"
	KEY_SPAN_ID        = "spanId"
	KEY_TAG            = "tag"
	KEY_TOKEN          = "token"
	KEY_TRACE_ID       = "traceId"
	KEY_USER_ID        = "userId"
	KEY_VARIANT_ID     = "variantId"
)
