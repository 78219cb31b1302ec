package common

const (
	// AppName is used as the log and metrics namespace.
	AppName = "tripkeeper"

	// DeviceIDKey is the flat-settings key holding the device identifier.
	DeviceIDKey = "device_id"

	// AutoCleanupKey is the flat-settings key holding the auto-cleanup policy.
	AutoCleanupKey = "storage.auto_cleanup"

	// PersistedKey records whether persistent storage was granted.
	PersistedKey = "storage.persisted"
)
