package config

type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageBadger StorageType = "badger"
	StorageRedis  StorageType = "redis"
)

type StorageConfig interface {
	GetStorageType() StorageType
	GetDataFolder() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetStorageType() StorageType {
	switch StorageType(GetEnv("STORAGE", string(StorageBadger))) {
	case StorageMemory:
		return StorageMemory
	case StorageRedis:
		return StorageRedis
	default:
		return StorageBadger
	}
}

func (Storage) GetDataFolder() string {
	return GetEnv("DATA_FOLDER", "./data")
}

// GetRedisAddr honours REDIS_HOST/REDIS_PORT when both are set, otherwise
// REDIS_ADDR.
func (Storage) GetRedisAddr() string {
	host := GetEnv("REDIS_HOST", "")
	port := GetEnv("REDIS_PORT", "")
	if host != "" && port != "" {
		return host + ":" + port
	}
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetRedisDB() int {
	return GetInt("REDIS_DB", 0)
}

func (Storage) GetRedisPrefix() string {
	return GetEnv("REDIS_PREFIX", "sessionctl")
}
