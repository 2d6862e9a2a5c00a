package model

import "context"

// Scorer is the narrow interface over the pre-trained classification model.
// Implementations must be safe for concurrent read-only use or declare
// otherwise via Concurrent().
type Scorer interface {
	Score(v FeatureVector) (AttackType, float64)
	Concurrent() bool
}

// Enforcer applies a block directive against a source address through an
// external enforcement collaborator.
type Enforcer interface {
	Block(ctx context.Context, sourceIP string) error
}

// RecordWriter receives finalized alert records. Implementations are hub
// subscribers and must tolerate being called from a single goroutine.
type RecordWriter interface {
	WriteRecord(rec AlertRecord) error
	Close() error
}
