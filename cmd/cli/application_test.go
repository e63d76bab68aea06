package cli_test

import (
	"bytes"
	"testing"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/temirov/ticketbridge/cmd/cli"
)

func decodeEmbeddedConfiguration(testInstance *testing.T) cli.ApplicationConfiguration {
	testInstance.Helper()

	embeddedContent, embeddedType := cli.EmbeddedDefaultConfiguration()
	viperInstance := viper.New()
	viperInstance.SetConfigType(embeddedType)
	require.NoError(testInstance, viperInstance.ReadConfig(bytes.NewReader(embeddedContent)))

	var configuration cli.ApplicationConfiguration
	require.NoError(testInstance, mapstructure.Decode(viperInstance.AllSettings(), &configuration))
	return configuration
}

func TestEmbeddedDefaultConfigurationDecodes(testInstance *testing.T) {
	configuration := decodeEmbeddedConfiguration(testInstance)

	require.Equal(testInstance, "info", configuration.Common.LogLevel)
	require.Equal(testInstance, "structured", configuration.Common.LogFormat)

	require.Empty(testInstance, configuration.Remote.BaseURL)
	require.Equal(testInstance, "FTJM", configuration.Remote.ProjectKey)
	require.Equal(testInstance, 60, configuration.Remote.CallTimeoutSeconds)

	require.Equal(testInstance, "data_to_be_migrated", configuration.Tools.Migrate.DataDirectory)
	require.Equal(testInstance, "tracker/migration_tracker.db", configuration.Tools.Migrate.TrackerPath)
	require.Equal(testInstance, 4, configuration.Tools.Migrate.Workers)
	require.Equal(testInstance, 30, configuration.Tools.Migrate.GracePeriodSeconds)
	require.Equal(testInstance, 3, configuration.Tools.Migrate.MaxAttempts)
	require.Equal(testInstance, 1000, configuration.Tools.Migrate.BaseDelayMilliseconds)
	require.Equal(testInstance, 2.0, configuration.Tools.Migrate.BackoffMultiplier)
	require.False(testInstance, configuration.Tools.Migrate.AttachmentFailuresFatal)

	require.Equal(testInstance, "tracker/migration_tracker.db", configuration.Tools.Cleanup.TrackerPath)
	require.Equal(testInstance, 100, configuration.Tools.Cleanup.PageSize)

	require.Equal(testInstance, "tracker/migration_tracker.db", configuration.Tools.Status.TrackerPath)
}

func TestEmbeddedDefaultConfigurationMatchesSanitizedDefaults(testInstance *testing.T) {
	configuration := decodeEmbeddedConfiguration(testInstance)

	require.Equal(testInstance, configuration.Remote.Sanitize(), configuration.Remote)
	require.Equal(testInstance, configuration.Tools.Migrate.Sanitize(), configuration.Tools.Migrate)
	require.Equal(testInstance, configuration.Tools.Cleanup.Sanitize(), configuration.Tools.Cleanup)
	require.Equal(testInstance, configuration.Tools.Status.Sanitize(), configuration.Tools.Status)
}
