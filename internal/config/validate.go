package config

import (
	"errors"
)

// Validate ensures the configuration is usable.
//
// A missing synthesis API key is not an error here. Ingestion and
// deduplication keep working without one; submission surfaces its own
// configuration error.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSynthesis(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxUploadMiB <= 0 {
		return errors.New("ingest.max_upload_mib must be positive")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.UploadAttempts <= 0 {
		return errors.New("storage.upload_attempts must be positive")
	}
	if c.Storage.UploadBackoffSeconds <= 0 {
		return errors.New("storage.upload_backoff_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSynthesis() error {
	if c.Synthesis.BaseURL == "" {
		return errors.New("synthesis.base_url must be set")
	}
	if c.Synthesis.TimeoutSeconds <= 0 {
		return errors.New("synthesis.timeout_seconds must be positive")
	}
	if c.Synthesis.PollIntervalSeconds <= 0 {
		return errors.New("synthesis.poll_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.RegistryPollInterval <= 0 {
		return errors.New("workflow.registry_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	return nil
}
