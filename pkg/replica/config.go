package replica

import "time"

const (
	// DefaultStoreName is the name of the local database holding the replica
	DefaultStoreName = "dataset"

	// StructuralVersion is the layout version of local stores created by this package
	StructuralVersion = 1
)

// Config for a replica session
type Config struct {
	// StoreName is the name of the local database
	StoreName string `json:"storeName" yaml:"storeName"`

	// StructuralVersion requested when opening the local database
	StructuralVersion int `json:"structuralVersion" yaml:"structuralVersion"`

	// Concurrency bounds the number of parallel fetches
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// CommitRetries bounds how many times a conflicting commit is retried
	CommitRetries uint64 `json:"commitRetries" yaml:"commitRetries"`

	// CommitRetryInterval is the constant wait between commit retries
	CommitRetryInterval time.Duration `json:"commitRetryInterval" yaml:"commitRetryInterval"`
}

// DefaultConfig for a replica session
func DefaultConfig() Config {
	return Config{
		StoreName:           DefaultStoreName,
		StructuralVersion:   StructuralVersion,
		Concurrency:         4,
		CommitRetries:       5,
		CommitRetryInterval: 20 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StoreName == "" {
		c.StoreName = d.StoreName
	}
	if c.StructuralVersion < 1 {
		c.StructuralVersion = d.StructuralVersion
	}
	if c.Concurrency < 1 {
		c.Concurrency = d.Concurrency
	}
	if c.CommitRetryInterval <= 0 {
		c.CommitRetryInterval = d.CommitRetryInterval
	}
	return c
}
