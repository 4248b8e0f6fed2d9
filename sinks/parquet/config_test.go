package parquet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setS3Env(t *testing.T) {
	t.Helper()
	t.Setenv(envEndpoint, "http://minio:9000")
	t.Setenv(envBucket, "dex-parquet")
	t.Setenv(envAccessKey, "access")
	t.Setenv(envSecretKey, "secret")
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testConfig().Validate())

	cfg := testConfig()
	cfg.S3.SecretKey = ""
	require.ErrorContains(t, cfg.Validate(), "credentials")

	cfg = testConfig()
	cfg.BatchRows = 0
	require.Error(t, cfg.Validate())

	require.Error(t, DefaultConfig().Validate(), "defaults carry no S3 location")
}

func TestFromEnv(t *testing.T) {
	setS3Env(t)
	t.Setenv(envPrefix, "archive/")
	t.Setenv(envFlushIntervalS, "600")
	t.Setenv(envPathStyle, "false")
	t.Setenv(envBatchRows, "100")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "archive/", cfg.Prefix)
	require.Equal(t, 10*time.Minute, cfg.FlushInterval)
	require.False(t, cfg.S3.PathStyle)
	require.Equal(t, 100, cfg.BatchRows)
	require.Equal(t, "us-east-1", cfg.S3.Region)

	t.Setenv(envPathStyle, "sometimes")
	_, err = FromEnv()
	require.Error(t, err)
}

func TestServiceConfigFromEnv(t *testing.T) {
	setS3Env(t)
	t.Setenv(envPullBatch, "64")

	cfg, err := ServiceConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, 64, cfg.PullBatch)
	require.Equal(t, "parquet-sink", cfg.Consumer)
	require.Equal(t, "dex.sol", cfg.SubjectRoot)
	require.Equal(t, "dex-parquet", cfg.Writer.S3.Bucket)

	t.Setenv(envPullTimeoutMS, "-5")
	_, err = ServiceConfigFromEnv()
	require.Error(t, err)
}
