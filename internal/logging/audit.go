// Package logging provides audit logging that outputs Mangle-queryable facts.
// Audit logs are structured events that can be parsed into Mangle predicates
// for declarative querying and analysis of indexing, retrieval, and staleness
// activity.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES - map to Mangle predicates
// =============================================================================

// AuditEventType defines the type of audit event (maps to a Mangle predicate).
type AuditEventType string

const (
	// Indexing lifecycle -> index_op/5
	AuditBootstrapStart  AuditEventType = "bootstrap_start"
	AuditBootstrapDone   AuditEventType = "bootstrap_done"
	AuditReindexStart    AuditEventType = "reindex_start"
	AuditReindexDone     AuditEventType = "reindex_done"
	AuditFileRemoved     AuditEventType = "file_removed"

	// Extraction -> extract_op/5
	AuditExtractOK    AuditEventType = "extract_ok"
	AuditExtractError AuditEventType = "extract_error"

	// Storage transactions -> store_txn/4
	AuditTxnCommit   AuditEventType = "txn_commit"
	AuditTxnRollback AuditEventType = "txn_rollback"

	// Evidence ledger -> ledger_op/5
	AuditLedgerAppend       AuditEventType = "ledger_append"
	AuditLedgerContradict   AuditEventType = "ledger_contradict"
	AuditLedgerOverride     AuditEventType = "ledger_override"
	AuditLedgerTamper       AuditEventType = "ledger_tamper"

	// File watcher -> watch_event/5
	AuditWatchCreated  AuditEventType = "watch_created"
	AuditWatchModified AuditEventType = "watch_modified"
	AuditWatchDeleted  AuditEventType = "watch_deleted"
	AuditWatchRenamed  AuditEventType = "watch_renamed"

	// Retrieval -> retrieval_op/5
	AuditRetrieveL0 AuditEventType = "retrieve_l0"
	AuditRetrieveL1 AuditEventType = "retrieve_l1"
	AuditRetrieveL2 AuditEventType = "retrieve_l2"

	// Pack assembly -> pack_op/5
	AuditPackBuilt      AuditEventType = "pack_built"
	AuditPackCacheHit   AuditEventType = "pack_cache_hit"
	AuditPackInvalidate AuditEventType = "pack_invalidated"

	// Query coordinator -> query_op/6
	AuditQueryRouted   AuditEventType = "query_routed"
	AuditQueryEscalate AuditEventType = "query_escalate"
	AuditQueryDenied   AuditEventType = "query_denied"

	// Performance -> perf_metric/4
	AuditPerfMetric AuditEventType = "perf_metric"
	AuditPerfSlow   AuditEventType = "perf_slow"

	// Errors -> error_event/4
	AuditErrorGeneric  AuditEventType = "error_generic"
	AuditErrorCritical AuditEventType = "error_critical"
	AuditErrorRecovery AuditEventType = "error_recovery"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent is a structured audit log entry that can be parsed to Mangle.
// Format: predicate(timestamp, category, ...args)
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	Category   string                 `json:"cat"`
	RequestID  string                 `json:"req"`
	Target     string                 `json:"target"` // path, symbol id, fingerprint
	Action     string                 `json:"action"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields"`
	MangleFact string                 `json:"mangle"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging with Mangle fact generation.
type AuditLogger struct {
	requestID string
	category  Category
}

// InitAudit initializes the audit logging system.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# audit log started at %s\n# format: mangle-queryable structured events\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRequest creates an audit logger scoped to a request/query id.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// AuditWithContext creates a fully-scoped audit logger.
func AuditWithContext(requestID string, category Category) *AuditLogger {
	return &AuditLogger{requestID: requestID, category: category}
}

// =============================================================================
// AUDIT LOGGING METHODS
// =============================================================================

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RequestID == "" && a.requestID != "" {
		event.RequestID = a.requestID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	event.MangleFact = generateMangleFact(event)

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// generateMangleFact creates a Mangle-compatible fact string from an event.
func generateMangleFact(e AuditEvent) string {
	switch e.EventType {
	case AuditBootstrapStart, AuditBootstrapDone, AuditReindexStart, AuditReindexDone, AuditFileRemoved:
		return fmt.Sprintf("index_op(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, e.Success, e.DurationMs)

	case AuditExtractOK, AuditExtractError:
		return fmt.Sprintf("extract_op(%d, /%s, \"%s\", %v, \"%s\").",
			e.Timestamp, e.EventType, e.Target, e.Success, escapeString(e.Error))

	case AuditTxnCommit, AuditTxnRollback:
		return fmt.Sprintf("store_txn(%d, /%s, %v, %d).",
			e.Timestamp, e.EventType, e.Success, e.DurationMs)

	case AuditLedgerAppend, AuditLedgerContradict, AuditLedgerOverride, AuditLedgerTamper:
		return fmt.Sprintf("ledger_op(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.Target, e.Action, e.Success)

	case AuditWatchCreated, AuditWatchModified, AuditWatchDeleted, AuditWatchRenamed:
		return fmt.Sprintf("watch_event(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, e.Success, e.DurationMs)

	case AuditRetrieveL0, AuditRetrieveL1, AuditRetrieveL2:
		hits := 0
		if h, ok := e.Fields["hits"].(int); ok {
			hits = h
		}
		return fmt.Sprintf("retrieval_op(%d, /%s, \"%s\", %d, %d).",
			e.Timestamp, e.EventType, e.Target, hits, e.DurationMs)

	case AuditPackBuilt, AuditPackCacheHit, AuditPackInvalidate:
		tokens := 0
		if t, ok := e.Fields["tokens"].(int); ok {
			tokens = t
		}
		return fmt.Sprintf("pack_op(%d, /%s, \"%s\", %d, %d).",
			e.Timestamp, e.EventType, e.Target, tokens, e.DurationMs)

	case AuditQueryRouted, AuditQueryEscalate, AuditQueryDenied:
		depth := ""
		if d, ok := e.Fields["depth"].(string); ok {
			depth = d
		}
		return fmt.Sprintf("query_op(%d, /%s, \"%s\", \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, depth, e.Success, e.DurationMs)

	case AuditPerfMetric, AuditPerfSlow:
		return fmt.Sprintf("perf_metric(%d, \"%s\", \"%s\", %d).",
			e.Timestamp, e.Category, e.Action, e.DurationMs)

	case AuditErrorGeneric, AuditErrorCritical, AuditErrorRecovery:
		return fmt.Sprintf("error_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.Category, escapeString(e.Error))

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.Category, escapeString(e.Message), e.Success)
	}
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// BootstrapDone logs the completion of a bootstrap pass.
func (a *AuditLogger) BootstrapDone(workspace string, fileCount int, durationMs int64, success bool) {
	a.Log(AuditEvent{
		EventType:  AuditBootstrapDone,
		Target:     workspace,
		Success:    success,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"file_count": fileCount},
		Message:    fmt.Sprintf("bootstrap done: %s (%d files, %dms)", workspace, fileCount, durationMs),
	})
}

// ReindexDone logs the completion of a reindex pass.
func (a *AuditLogger) ReindexDone(scope string, fileCount int, durationMs int64, success bool) {
	a.Log(AuditEvent{
		EventType:  AuditReindexDone,
		Target:     scope,
		Success:    success,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"file_count": fileCount},
		Message:    fmt.Sprintf("reindex done: scope=%s (%d files, %dms)", scope, fileCount, durationMs),
	})
}

// ExtractResult logs a per-file extraction outcome.
func (a *AuditLogger) ExtractResult(path string, symbolCount int, err error) {
	eventType := AuditExtractOK
	success := true
	errMsg := ""
	if err != nil {
		eventType = AuditExtractError
		success = false
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    path,
		Success:   success,
		Error:     errMsg,
		Fields:    map[string]interface{}{"symbol_count": symbolCount},
		Message:   fmt.Sprintf("extract %s: %d symbols (success=%v)", path, symbolCount, success),
	})
}

// TxnResult logs a storage transaction outcome.
func (a *AuditLogger) TxnResult(committed bool, durationMs int64) {
	eventType := AuditTxnCommit
	if !committed {
		eventType = AuditTxnRollback
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Success:    committed,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("txn %s (%dms)", eventType, durationMs),
	})
}

// LedgerAppend logs an evidence ledger append.
func (a *AuditLogger) LedgerAppend(kind, subject string) {
	a.Log(AuditEvent{
		EventType: AuditLedgerAppend,
		Target:    subject,
		Action:    kind,
		Success:   true,
		Message:   fmt.Sprintf("ledger append: %s %s", kind, subject),
	})
}

// LedgerTamper logs a content-hash mismatch detected on read.
func (a *AuditLogger) LedgerTamper(entryID string) {
	a.Log(AuditEvent{
		EventType: AuditLedgerTamper,
		Target:    entryID,
		Success:   false,
		Message:   fmt.Sprintf("ledger tamper detected: %s", entryID),
	})
}

// WatchEvent logs a settled, debounced filesystem event.
func (a *AuditLogger) WatchEvent(eventType AuditEventType, path string, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     path,
		Success:    true,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("watch %s: %s", eventType, path),
	})
}

// RetrieveResult logs a retrieval pass at a given depth.
func (a *AuditLogger) RetrieveResult(depth AuditEventType, query string, hits int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  depth,
		Target:     query,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"hits": hits},
		Message:    fmt.Sprintf("retrieve %s: %q -> %d hits (%dms)", depth, query, hits, durationMs),
	})
}

// PackResult logs a context pack build or cache event.
func (a *AuditLogger) PackResult(eventType AuditEventType, fingerprint string, tokens int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     fingerprint,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"tokens": tokens},
		Message:    fmt.Sprintf("pack %s: %s (%d tokens, %dms)", eventType, fingerprint, tokens, durationMs),
	})
}

// QueryResult logs a coordinator routing decision.
func (a *AuditLogger) QueryResult(eventType AuditEventType, intent, depth string, success bool, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     intent,
		Success:    success,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"depth": depth},
		Message:    fmt.Sprintf("query %s: intent=%s depth=%s success=%v (%dms)", eventType, intent, depth, success, durationMs),
	})
}

// PerfMetric logs a performance metric, flagging slow operations past threshold.
func (a *AuditLogger) PerfMetric(operation string, durationMs int64, threshold int64) {
	eventType := AuditPerfMetric
	success := true
	if threshold > 0 && durationMs > threshold {
		eventType = AuditPerfSlow
		success = false
	}
	fields := map[string]interface{}{}
	if threshold > 0 {
		fields["threshold_ms"] = threshold
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Action:     operation,
		DurationMs: durationMs,
		Success:    success,
		Fields:     fields,
		Message:    fmt.Sprintf("perf: %s took %dms (threshold=%dms)", operation, durationMs, threshold),
	})
}

// Error logs an error event.
func (a *AuditLogger) Error(category string, err error, critical bool) {
	eventType := AuditErrorGeneric
	if critical {
		eventType = AuditErrorCritical
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  category,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("error in %s: %s (critical=%v)", category, errMsg, critical),
	})
}
