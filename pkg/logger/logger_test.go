package logger

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	l := newLogger()
	require.NotNil(t, l)

	formatter, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok, "default formatter should be a TextFormatter")
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestWithLogger(t *testing.T) {
	ctx := context.Background()
	entry := logrus.NewEntry(logrus.New()).WithField("skill", "api-style")

	ctx = WithLogger(ctx, entry)

	got := GetLogger(ctx)
	assert.Equal(t, "api-style", got.Data["skill"])
}

func TestGetLoggerFallsBackToGlobal(t *testing.T) {
	ctx := context.Background()

	got := GetLogger(ctx)
	require.NotNil(t, got)
	assert.Equal(t, L.Logger, got.Logger)
}

func TestGAlias(t *testing.T) {
	ctx := context.Background()
	entry := logrus.NewEntry(logrus.New()).WithField("path", "skills/api-style/sources/docs")

	ctx = WithLogger(ctx, entry)
	assert.Equal(t, "skills/api-style/sources/docs", G(ctx).Data["path"])
}

func TestSetLogLevel(t *testing.T) {
	original := L.Logger.GetLevel()
	defer L.Logger.SetLevel(original)

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	require.NoError(t, SetLogLevel("warn"))
	assert.Equal(t, logrus.WarnLevel, L.Logger.GetLevel())

	assert.Error(t, SetLogLevel("not-a-level"))
}

func TestSetLogFormat(t *testing.T) {
	defer SetLogFormat("fmt")

	SetLogFormat("json")
	jsonFormatter, ok := L.Logger.Formatter.(*logrus.JSONFormatter)
	require.True(t, ok)
	assert.Equal(t, "timestamp", jsonFormatter.FieldMap[logrus.FieldKeyTime])

	SetLogFormat("fmt")
	_, ok = L.Logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}
