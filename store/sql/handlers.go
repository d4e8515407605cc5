package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// recordHandlers builds the go-repository-bun handlers shared by every
// record type keyed by a string uuid.
func recordHandlers[T any](newRecord func() T, id func(T) *string) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			ptr := id(record)
			if ptr == nil {
				return uuid.Nil
			}
			return parseUUID(*ptr)
		},
		SetID: func(record T, value uuid.UUID) {
			if ptr := id(record); ptr != nil {
				*ptr = value.String()
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			ptr := id(record)
			if ptr == nil {
				return ""
			}
			return strings.TrimSpace(*ptr)
		},
	}
}

func integrationHandlers() repository.ModelHandlers[*integrationRecord] {
	return recordHandlers(
		func() *integrationRecord { return &integrationRecord{} },
		func(record *integrationRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func connectAttemptHandlers() repository.ModelHandlers[*connectAttemptRecord] {
	return recordHandlers(
		func() *connectAttemptRecord { return &connectAttemptRecord{} },
		func(record *connectAttemptRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func automationHandlers() repository.ModelHandlers[*automationRecord] {
	return recordHandlers(
		func() *automationRecord { return &automationRecord{} },
		func(record *automationRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func asyncRequestHandlers() repository.ModelHandlers[*asyncRequestRecord] {
	return recordHandlers(
		func() *asyncRequestRecord { return &asyncRequestRecord{} },
		func(record *asyncRequestRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func cancellationHandlers() repository.ModelHandlers[*cancellationRecord] {
	return recordHandlers(
		func() *cancellationRecord { return &cancellationRecord{} },
		func(record *cancellationRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
