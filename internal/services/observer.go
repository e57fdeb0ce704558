package services

// Observer receives submission and migration telemetry.
type Observer interface {
	RecordSave(source SubmissionSource, err error)
	RecordMigration(migrated, skipped, failed int)
}

type nopObserver struct{}

func (nopObserver) RecordSave(SubmissionSource, error) {}

func (nopObserver) RecordMigration(int, int, int) {}
