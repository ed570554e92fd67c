package shaper

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

func testCtx() context.Context { return context.Background() }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
