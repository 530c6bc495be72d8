package cache

const (
	KEY_CATALOG_ENTRY = "catalog:entries:%s"
	KEY_CARTS         = "carts:users:%s"
	KEY_ANONYMOUS     = "carts:anonymous:%s"

	CHANNEL_CHANGED_USER      = "carts:changed:users:%s"
	CHANNEL_CHANGED_ANONYMOUS = "carts:changed:anonymous:%s"
	CHANNEL_CHANGED_PATTERN   = "carts:changed:*"
)
