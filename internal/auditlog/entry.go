package auditlog

import "github.com/animus-labs/animus-migrate/internal/domain"

type Entry = domain.AuditEntry
