package logger

import (
	"go.uber.org/zap"

	"github.com/teranos/metagnosis/sym"
)

// Instance logger wrappers. They attach the stage glyph as a structured
// field rather than in the message, which keeps messages clean and logs
// queryable by symbol.
//
//	s.pulseLog = logger.AddPulseSymbol(baseLogger)
//	s.pulseLog.Infow("Scheduler started", "interval", interval)

// AddPulseSymbol wraps a logger with the Pulse symbol (꩜)
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return OrGlobal(l).With(FieldSymbol, sym.Pulse)
}

// AddPulseOpenSymbol wraps a logger with the PulseOpen symbol (✿)
func AddPulseOpenSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return OrGlobal(l).With(FieldSymbol, sym.PulseOpen)
}

// AddPulseCloseSymbol wraps a logger with the PulseClose symbol (❀)
func AddPulseCloseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return OrGlobal(l).With(FieldSymbol, sym.PulseClose)
}

// AddDBSymbol wraps a logger with the DB symbol (⊔)
func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return OrGlobal(l).With(FieldSymbol, sym.DB)
}

// AddStageSymbol wraps a logger with the glyph of a pipeline stage
// ("crawl", "enrich", "publish").
func AddStageSymbol(l *zap.SugaredLogger, stage string) *zap.SugaredLogger {
	return OrGlobal(l).With(FieldSymbol, sym.ForStage(stage))
}
