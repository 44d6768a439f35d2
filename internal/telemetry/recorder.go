// Package telemetry exports copycat logs and metrics over OTLP.
//
// The Record* helpers each emit an OTel log event and increment a metric
// counter.
// With no provider installed (see Init) both go to the global no-op
// providers.
package telemetry

import (
	"context"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterRecorderName = "github.com/copycat-emu/copycat"
	loggerName        = "copycat"
)

// recorderInstruments holds all lazy-initialized OTel metric instruments.
type recorderInstruments struct {
	computerStartTotal   metric.Int64Counter
	computerDisposeTotal metric.Int64Counter
	engineLoadTotal      metric.Int64Counter
	fileOpTotal          metric.Int64Counter
	terminalFlushTotal   metric.Int64Counter
	archiveTotal         metric.Int64Counter
	storeFailureTotal    metric.Int64Counter
	hostSyncTotal        metric.Int64Counter

	engineLoadHist metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     recorderInstruments
)

// initInstruments registers all recorder metric instruments against the
// current global MeterProvider. Init calls it after installing the real
// provider; Record* functions call it lazily.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterRecorderName)

		inst.computerStartTotal, _ = m.Int64Counter("copycat.computer.starts.total",
			metric.WithDescription("Total computer start attempts"),
		)
		inst.computerDisposeTotal, _ = m.Int64Counter("copycat.computer.disposals.total",
			metric.WithDescription("Total computer disposals"),
		)
		inst.engineLoadTotal, _ = m.Int64Counter("copycat.engine.loads.total",
			metric.WithDescription("Total engine runtime loads"),
		)
		inst.fileOpTotal, _ = m.Int64Counter("copycat.fs.ops.total",
			metric.WithDescription("Total filesystem create/delete operations"),
		)
		inst.terminalFlushTotal, _ = m.Int64Counter("copycat.terminal.flushes.total",
			metric.WithDescription("Total terminal flushes"),
		)
		inst.archiveTotal, _ = m.Int64Counter("copycat.archive.ops.total",
			metric.WithDescription("Total archive imports and exports"),
		)
		inst.storeFailureTotal, _ = m.Int64Counter("copycat.store.failures.total",
			metric.WithDescription("Total storage failures that disabled persistence"),
		)
		inst.hostSyncTotal, _ = m.Int64Counter("copycat.sync.ops.total",
			metric.WithDescription("Total host directory sync operations"),
		)

		inst.engineLoadHist, _ = m.Float64Histogram("copycat.engine.load_ms",
			metric.WithDescription("Engine runtime load latency in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
}

// statusStr returns "ok" or "error" depending on whether err is nil.
func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// emit sends an OTel log event with the given body and key-value attributes.
func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

// errKV returns a log KeyValue with the error message, or empty string if nil.
func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", truncate(err.Error(), maxErrorLog))
	}
	return otellog.String("error", "")
}

// severity returns SeverityInfo on success, SeverityError on failure.
func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}

// maxErrorLog is the maximum number of bytes of an error message logged.
const maxErrorLog = 1024

// truncate trims s to limit bytes and appends "…" when truncated.
// Avoids splitting multi-byte UTF-8 characters at the boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "…"
}

// RecordComputerStart records a computer start attempt (metrics + log event).
func RecordComputerStart(ctx context.Context, computerID int, err error) {
	initInstruments()
	status := statusStr(err)
	inst.computerStartTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	emit(ctx, "computer.start", severity(err),
		otellog.Int("computer", computerID),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordComputerDispose records a computer disposal. attached reports
// whether an engine handler was attached at the time.
func RecordComputerDispose(ctx context.Context, computerID int, attached bool) {
	initInstruments()
	inst.computerDisposeTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("attached", attached)),
	)
	emit(ctx, "computer.dispose", otellog.SeverityInfo,
		otellog.Int("computer", computerID),
		otellog.Bool("attached", attached),
	)
}

// RecordEngineLoad records the one-time engine runtime load with its
// duration (metrics + log event).
func RecordEngineLoad(ctx context.Context, version string, durationMs float64, err error) {
	initInstruments()
	status := statusStr(err)
	attrs := metric.WithAttributes(attribute.String("status", status))
	inst.engineLoadTotal.Add(ctx, 1, attrs)
	inst.engineLoadHist.Record(ctx, durationMs, attrs)
	emit(ctx, "engine.load", severity(err),
		otellog.String("version", version),
		otellog.Float64("duration_ms", durationMs),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordFileOp records an engine-initiated filesystem operation. op is
// "create_file", "create_directory" or "delete".
func RecordFileOp(ctx context.Context, op, path string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.fileOpTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
	if err != nil {
		emit(ctx, "fs.op", otellog.SeverityWarn,
			otellog.String("op", op),
			otellog.String("path", path),
			errKV(err),
		)
	}
}

// RecordTerminalFlush counts a terminal flush. Flushes happen every frame,
// so no log event is emitted.
func RecordTerminalFlush(ctx context.Context) {
	initInstruments()
	inst.terminalFlushTotal.Add(ctx, 1)
}

// RecordArchive records an archive import or export (metrics + log event).
// op is "import" or "export"; files is the number of files transferred.
func RecordArchive(ctx context.Context, op string, files int, err error) {
	initInstruments()
	status := statusStr(err)
	inst.archiveTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
	emit(ctx, "archive."+op, severity(err),
		otellog.Int("files", files),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordStoreFailure records a storage failure that disabled persistence.
func RecordStoreFailure(ctx context.Context, op string, err error) {
	initInstruments()
	inst.storeFailureTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
	emit(ctx, "store.failure", otellog.SeverityError,
		otellog.String("op", op),
		errKV(err),
	)
}

// RecordHostSync records one mirrored host change. op is "write",
// "delete" or "skip".
func RecordHostSync(ctx context.Context, op, path string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.hostSyncTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
	emit(ctx, "sync."+op, severity(err),
		otellog.String("path", path),
		otellog.String("status", status),
		errKV(err),
	)
}
