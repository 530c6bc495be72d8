package constants

const (
	APP_CART_SERVICE     = "cart-service"
	APP_CART_MIGRATION   = "cart-migration"
	APP_PRODUCT_SERVICE  = "product-service"
	APP_USER_SERVICE     = "user-service"
	APP_MAIN_STOREFRONT  = "main storefront"
	AUDIENCE_USER        = "audience-user"
	HEADER_SESSION_TOKEN = "X-Session-Token"
)
