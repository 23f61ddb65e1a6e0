package config

// ConfigBackend abstracts where non-secret config keys are persisted. The
// only implementation is the JSON file backend.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
