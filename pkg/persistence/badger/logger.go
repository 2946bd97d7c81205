package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLoggerAdapter routes Badger's printf-style logging into zap.
// Badger is chatty at info level, so info is demoted to debug.
type badgerLoggerAdapter struct {
	logger *zap.Logger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func newBadgerLoggerAdapter(l *zap.Logger) *badgerLoggerAdapter {
	return &badgerLoggerAdapter{logger: l.With(zap.String("component", "badger"))}
}

// Badger terminates most format strings with a newline.
func badgerMessage(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

func (b *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	b.logger.Error(badgerMessage(format, args))
}

func (b *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	b.logger.Warn(badgerMessage(format, args))
}

func (b *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	b.logger.Debug(badgerMessage(format, args))
}

func (b *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	b.logger.Debug(badgerMessage(format, args))
}
